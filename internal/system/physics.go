package system

import (
	"time"

	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/sim"
)

// GravitySystem integrates every mass once per tick while the game runs.
// Phase 1 (Update).
type GravitySystem struct {
	sim     *sim.Sim
	running func() bool
}

func NewGravitySystem(s *sim.Sim, running func() bool) *GravitySystem {
	return &GravitySystem{sim: s, running: running}
}

func (s *GravitySystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *GravitySystem) Update(dt time.Duration) {
	if !s.running() {
		return
	}
	s.sim.Integrate(dt)
}
