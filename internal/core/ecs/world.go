package ecs

import "fmt"

// World is the ownership tree. Every live entity has at most one parent;
// destroying an entity destroys everything beneath it. Destruction is
// deferred: MarkForDestruction hides the entity from Alive immediately and
// FlushDestroyQueue removes it (and its dependents) at tick end.
type World struct {
	pool         *EntityPool
	alive        map[EntityID]struct{}
	pending      map[EntityID]struct{}
	parent       map[EntityID]EntityID
	children     map[EntityID][]EntityID
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		alive:        make(map[EntityID]struct{}, 64),
		pending:      make(map[EntityID]struct{}, 8),
		parent:       make(map[EntityID]EntityID, 64),
		children:     make(map[EntityID][]EntityID, 64),
		destroyQueue: make([]EntityID, 0, 8),
	}
}

// CreateEntity allocates a fresh root entity.
func (w *World) CreateEntity() EntityID {
	id := w.pool.Create()
	w.alive[id] = struct{}{}
	return id
}

// CreateWithID registers an entity under a caller-chosen ID.
func (w *World) CreateWithID(id EntityID) error {
	if id.IsZero() {
		return fmt.Errorf("entity id 0 is reserved")
	}
	if _, ok := w.alive[id]; ok {
		return fmt.Errorf("entity %d already exists", id)
	}
	w.pool.Reserve(id)
	w.alive[id] = struct{}{}
	return nil
}

// CreateChild allocates an entity owned by parent.
func (w *World) CreateChild(parent EntityID) (EntityID, error) {
	if !w.Alive(parent) {
		return 0, fmt.Errorf("parent entity %d not alive", parent)
	}
	id := w.CreateEntity()
	w.attach(id, parent)
	return id, nil
}

// Reparent moves child (and its subtree) under a new parent.
func (w *World) Reparent(child, parent EntityID) error {
	if !w.Alive(child) {
		return fmt.Errorf("entity %d not alive", child)
	}
	if !w.Alive(parent) {
		return fmt.Errorf("parent entity %d not alive", parent)
	}
	for p := parent; !p.IsZero(); p = w.parent[p] {
		if p == child {
			return fmt.Errorf("reparent %d under %d would form a cycle", child, parent)
		}
	}
	w.detach(child)
	w.attach(child, parent)
	return nil
}

// Alive reports whether id exists and is not queued for destruction.
func (w *World) Alive(id EntityID) bool {
	if _, ok := w.alive[id]; !ok {
		return false
	}
	_, gone := w.pending[id]
	return !gone
}

// Parent returns the owner of id, or zero for roots.
func (w *World) Parent(id EntityID) EntityID {
	return w.parent[id]
}

// Children returns a copy of id's direct dependents in attach order.
func (w *World) Children(id EntityID) []EntityID {
	kids := w.children[id]
	out := make([]EntityID, len(kids))
	copy(out, kids)
	return out
}

// Len is the number of entities not yet flushed.
func (w *World) Len() int {
	return len(w.alive)
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	if !w.Alive(id) {
		return
	}
	w.pending[id] = struct{}{}
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys every queued entity together with its
// dependents and returns all destroyed IDs, each root followed by its
// subtree depth-first in attach order.
func (w *World) FlushDestroyQueue() []EntityID {
	if len(w.destroyQueue) == 0 {
		return nil
	}
	var out []EntityID
	for _, id := range w.destroyQueue {
		if _, ok := w.alive[id]; !ok {
			continue // already removed as part of an earlier subtree
		}
		w.detach(id)
		out = w.destroySubtree(id, out)
	}
	w.destroyQueue = w.destroyQueue[:0]
	clear(w.pending)
	return out
}

func (w *World) destroySubtree(id EntityID, out []EntityID) []EntityID {
	out = append(out, id)
	kids := w.children[id]
	delete(w.children, id)
	delete(w.parent, id)
	delete(w.alive, id)
	for _, k := range kids {
		out = w.destroySubtree(k, out)
	}
	return out
}

func (w *World) attach(child, parent EntityID) {
	w.parent[child] = parent
	w.children[parent] = append(w.children[parent], child)
}

func (w *World) detach(child EntityID) {
	p, ok := w.parent[child]
	if !ok {
		return
	}
	kids := w.children[p]
	for i, k := range kids {
		if k == child {
			w.children[p] = append(kids[:i], kids[i+1:]...)
			break
		}
	}
	if len(w.children[p]) == 0 {
		delete(w.children, p)
	}
	delete(w.parent, child)
}
