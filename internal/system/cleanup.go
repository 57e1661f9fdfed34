package system

import (
	"time"

	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/sim"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred despawn queue at tick end, so the next
// tick's gravity never sees an absorbed mass. Phase 5 (Cleanup).
type CleanupSystem struct {
	sim *sim.Sim
	log *zap.Logger
}

func NewCleanupSystem(s *sim.Sim, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{sim: s, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	gone := s.sim.Flush()
	if len(gone.Masses) > 0 || len(gone.Projectiles) > 0 {
		s.log.Debug("despawned",
			zap.Int("masses", len(gone.Masses)),
			zap.Int("projectiles", len(gone.Projectiles)),
			zap.Int("remaining", s.sim.Registry().Len()),
		)
	}
}
