package system

import (
	"context"
	"time"

	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/persist"
	"github.com/orbitsim/server/internal/sim"
	"go.uber.org/zap"
)

// EventWriter stores journal batches. *persist.EventRepo satisfies it.
type EventWriter interface {
	WriteEvents(ctx context.Context, sessionID int64, events []persist.EventRecord) error
}

// PersistenceSystem drains the simulation journal every tick and writes
// it to the event log every interval ticks. With no writer the journal is
// only logged. Phase 4 (Persist).
type PersistenceSystem struct {
	sim       *sim.Sim
	writer    EventWriter
	sessionID int64
	interval  int
	log       *zap.Logger

	pending   []persist.EventRecord
	tickCount int
}

func NewPersistenceSystem(s *sim.Sim, writer EventWriter, sessionID int64, intervalTicks int, log *zap.Logger) *PersistenceSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		sim:       s,
		writer:    writer,
		sessionID: sessionID,
		interval:  intervalTicks,
		log:       log,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.sim.DrainJournal(func(e sim.Event) {
		s.log.Debug("journal",
			zap.Uint64("tick", e.Tick),
			zap.Stringer("kind", e.Kind),
			zap.Uint64("a", e.A),
			zap.Uint64("b", e.B),
			zap.Float64("value", e.Value),
		)
		if s.writer != nil {
			s.pending = append(s.pending, persist.EventRecord{
				Tick:   e.Tick,
				Kind:   e.Kind.String(),
				A:      e.A,
				B:      e.B,
				Value:  e.Value,
				Detail: e.Detail,
			})
		}
	})

	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush writes pending entries now. Called on shutdown too.
func (s *PersistenceSystem) Flush() {
	if s.writer == nil || len(s.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writer.WriteEvents(ctx, s.sessionID, s.pending); err != nil {
		s.log.Warn("event log write failed, keeping batch", zap.Int("events", len(s.pending)), zap.Error(err))
		return
	}
	s.pending = s.pending[:0]
}
