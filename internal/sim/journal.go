package sim

import "fmt"

// EventKind classifies a journal entry.
type EventKind uint8

const (
	EventStateChanged EventKind = iota + 1
	EventClientAssigned
	EventClientLeft
	EventMerged
	EventProjectileFired
	EventProjectileArrived
	EventProjectileLost
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventClientAssigned:
		return "client_assigned"
	case EventClientLeft:
		return "client_left"
	case EventMerged:
		return "merged"
	case EventProjectileFired:
		return "projectile_fired"
	case EventProjectileArrived:
		return "projectile_arrived"
	case EventProjectileLost:
		return "projectile_lost"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one notable session occurrence. A and B are the two ids
// involved (client/mass, major/minor, projectile/target); Value carries a
// number where one applies (new state, merged mass).
type Event struct {
	Tick   uint64
	Kind   EventKind
	A, B   uint64
	Value  float64
	Detail string
}
