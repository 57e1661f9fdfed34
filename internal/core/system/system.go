package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain inbound message queues
	PhaseUpdate                  // 1: gravity integration
	PhasePostUpdate              // 2: collisions, merges, projectile flights
	PhaseOutput                  // 3: flush outbound messages
	PhasePersist                 // 4: event log flush
	PhaseCleanup                 // 5: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseOutput:
		return "Output"
	case PhasePersist:
		return "Persist"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Stopper is implemented by systems that can end the session. A non-nil
// Err stops the runner.
type Stopper interface {
	Err() error
}
