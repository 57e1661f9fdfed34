package physics

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Sphere is one collision volume fed to the overlap backend each tick.
type Sphere struct {
	ID     uint64
	Center mgl64.Vec3
	Radius float64
}

type ContactKind uint8

const (
	ContactStarted ContactKind = iota
	ContactStopped
)

// Contact is a backend signal for a pair; A < B always.
type Contact struct {
	A, B uint64
	Kind ContactKind
}

type pairKey struct{ a, b uint64 }

func makePair(a, b uint64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// OverlapBackend is a brute-force sphere-sphere broad phase that remembers
// which pairs overlapped last tick, so it can distinguish a contact that
// just started from one that is continuing. Surfaces that exactly touch
// count as overlapping.
type OverlapBackend struct {
	active  map[pairKey]struct{}
	scratch []Sphere
}

func NewOverlapBackend() *OverlapBackend {
	return &OverlapBackend{active: make(map[pairKey]struct{}, 16)}
}

// Update tests every pair and returns start/stop transitions sorted by
// (A, B). Pairs whose members are no longer present are forgotten silently.
func (o *OverlapBackend) Update(spheres []Sphere) []Contact {
	o.scratch = append(o.scratch[:0], spheres...)
	sort.Slice(o.scratch, func(i, j int) bool { return o.scratch[i].ID < o.scratch[j].ID })

	present := make(map[uint64]struct{}, len(o.scratch))
	for _, s := range o.scratch {
		present[s.ID] = struct{}{}
	}

	var out []Contact
	now := make(map[pairKey]struct{}, len(o.active))
	for i := 0; i < len(o.scratch); i++ {
		a := o.scratch[i]
		for j := i + 1; j < len(o.scratch); j++ {
			b := o.scratch[j]
			reach := a.Radius + b.Radius
			if b.Center.Sub(a.Center).LenSqr() > reach*reach {
				continue
			}
			key := pairKey{a.ID, b.ID}
			now[key] = struct{}{}
			if _, was := o.active[key]; !was {
				out = append(out, Contact{A: a.ID, B: b.ID, Kind: ContactStarted})
			}
		}
	}
	for key := range o.active {
		if _, still := now[key]; still {
			continue
		}
		_, okA := present[key.a]
		_, okB := present[key.b]
		if okA && okB {
			out = append(out, Contact{A: key.a, B: key.b, Kind: ContactStopped})
		}
	}
	o.active = now

	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		if out[i].B != out[j].B {
			return out[i].B < out[j].B
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Forget drops every remembered pair involving id.
func (o *OverlapBackend) Forget(id uint64) {
	for key := range o.active {
		if key.a == id || key.b == id {
			delete(o.active, key)
		}
	}
}

// Overlapping reports whether a and b overlapped on the last Update.
func (o *OverlapBackend) Overlapping(a, b uint64) bool {
	_, ok := o.active[makePair(a, b)]
	return ok
}

// CollisionEvent is one mass-mass contact start.
type CollisionEvent struct {
	A, B uint64
}

// CollisionDetector turns backend contacts into mass collision events. Only
// start transitions are reported, once per physical contact.
type CollisionDetector struct {
	IsMass func(id uint64) bool
}

func (d CollisionDetector) Detect(contacts []Contact) []CollisionEvent {
	var out []CollisionEvent
	for _, c := range contacts {
		if c.Kind != ContactStarted {
			continue
		}
		if d.IsMass(c.A) && d.IsMass(c.B) {
			out = append(out, CollisionEvent{A: c.A, B: c.B})
		}
	}
	return out
}
