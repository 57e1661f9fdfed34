package ecs

// EntityID identifies a simulated body or anything logically parented to
// one. IDs are never reused within a session; zero is never allocated.
type EntityID uint64

func (id EntityID) IsZero() bool { return id == 0 }

// EntityPool hands out monotonically increasing IDs. Explicit IDs (masses
// loaded from init data) are reserved so later allocations skip past them.
type EntityPool struct {
	next EntityID
}

func NewEntityPool() *EntityPool {
	return &EntityPool{next: 1}
}

func (p *EntityPool) Create() EntityID {
	id := p.next
	p.next++
	return id
}

// Reserve marks id as taken.
func (p *EntityPool) Reserve(id EntityID) {
	if id >= p.next {
		p.next = id + 1
	}
}
