package world

import (
	"fmt"
	"sort"

	"github.com/orbitsim/server/internal/physics"
)

// Registry is the authoritative set of live masses. Iteration is always in
// ascending mass ID so every peer integrates and resolves in the same order.
type Registry struct {
	masses map[MassID]*Mass
	order  []MassID
}

func NewRegistry() *Registry {
	return &Registry{masses: make(map[MassID]*Mass, 64)}
}

// Load replaces the registry contents with data.
func (r *Registry) Load(data InitData) error {
	r.masses = make(map[MassID]*Mass, len(data))
	r.order = r.order[:0]
	for id, rec := range data {
		if id == 0 {
			return fmt.Errorf("mass id 0 is reserved")
		}
		if rec.Mass <= 0 {
			return fmt.Errorf("mass %d: non-positive mass %v", id, rec.Mass)
		}
		r.masses[id] = newMass(id, rec)
		r.order = append(r.order, id)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return nil
}

func (r *Registry) Get(id MassID) *Mass {
	return r.masses[id]
}

func (r *Registry) Has(id MassID) bool {
	_, ok := r.masses[id]
	return ok
}

func (r *Registry) Len() int {
	return len(r.masses)
}

// IDs returns live mass IDs in ascending order.
func (r *Registry) IDs() []MassID {
	out := make([]MassID, len(r.order))
	copy(out, r.order)
	return out
}

// Each visits live masses in ascending ID order.
func (r *Registry) Each(fn func(*Mass)) {
	for _, id := range r.order {
		fn(r.masses[id])
	}
}

// Bodies returns the physics bodies of all masses in ascending ID order.
// The pointers alias registry state.
func (r *Registry) Bodies(buf []*physics.Body) []*physics.Body {
	buf = buf[:0]
	for _, id := range r.order {
		buf = append(buf, &r.masses[id].Body)
	}
	return buf
}

// Remove deletes a mass and returns it, or nil if it was not present.
func (r *Registry) Remove(id MassID) *Mass {
	m, ok := r.masses[id]
	if !ok {
		return nil
	}
	delete(r.masses, id)
	i := sort.Search(len(r.order), func(i int) bool { return r.order[i] >= id })
	if i < len(r.order) && r.order[i] == id {
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
	return m
}

// TotalMass sums the mass of every live body.
func (r *Registry) TotalMass() float64 {
	var sum float64
	for _, id := range r.order {
		sum += r.masses[id].Mass
	}
	return sum
}

// Inhabitable returns IDs of masses flagged inhabitable, ascending.
func (r *Registry) Inhabitable() []MassID {
	var out []MassID
	for _, id := range r.order {
		if r.masses[id].Inhabitable {
			out = append(out, id)
		}
	}
	return out
}

// ByInhabitant finds the mass a client inhabits.
func (r *Registry) ByInhabitant(c ClientID) *Mass {
	if c == 0 {
		return nil
	}
	for _, id := range r.order {
		if m := r.masses[id]; m.InhabitedBy == c {
			return m
		}
	}
	return nil
}

// Snapshot captures the current state of every live mass as init records,
// the form replicated to clients in a GameConfig.
func (r *Registry) Snapshot() InitData {
	out := make(InitData, len(r.masses))
	for id, m := range r.masses {
		out[id] = InitRecord{
			Inhabitable: m.Inhabitable,
			Position:    m.Position,
			Velocity:    m.Velocity,
			Color:       m.Color,
			Mass:        m.Mass,
		}
	}
	return out
}
