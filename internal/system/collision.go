package system

import (
	"time"

	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/sim"
	"go.uber.org/zap"
)

// CollisionSystem advances projectiles, resolves merges and completes
// arrivals. Phase 2 (PostUpdate).
type CollisionSystem struct {
	sim     *sim.Sim
	running func() bool
	log     *zap.Logger

	err error
}

func NewCollisionSystem(s *sim.Sim, running func() bool, log *zap.Logger) *CollisionSystem {
	return &CollisionSystem{sim: s, running: running, log: log}
}

func (s *CollisionSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

// Err reports a broken simulation (a projectile launcher vanished).
func (s *CollisionSystem) Err() error { return s.err }

func (s *CollisionSystem) Update(_ time.Duration) {
	if !s.running() || s.err != nil {
		return
	}
	rep, err := s.sim.Collide()
	for _, d := range rep.Merges {
		s.log.Info("merge",
			zap.Uint64("major", d.Major),
			zap.Uint64("minor", d.Minor),
			zap.Float64("mass", d.NewMass),
			zap.Bool("player", d.MajorPlayer),
		)
	}
	for _, a := range rep.Arrivals {
		s.log.Debug("projectile arrived",
			zap.Uint64("projectile", a.Flight.ID),
			zap.Uint64("target", a.Flight.To),
		)
	}
	if err != nil {
		if sim.IsFatal(err) {
			s.log.Error("simulation invariant broken", zap.Error(err))
			s.err = err
			return
		}
		s.log.Warn("collision step", zap.Error(err))
	}
}
