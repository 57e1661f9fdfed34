package system

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/handler"
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// ErrServerGone is reported when the server connection drops.
var ErrServerGone = errors.New("server connection closed")

// ClientInputSystem dispatches every queued server message. Phase 0 (Input).
type ClientInputSystem struct {
	server   *net.Session
	registry *packet.Registry
	mirror   *handler.Mirror
	log      *zap.Logger

	err error
}

func NewClientInputSystem(server *net.Session, registry *packet.Registry, mirror *handler.Mirror, log *zap.Logger) *ClientInputSystem {
	return &ClientInputSystem{server: server, registry: registry, mirror: mirror, log: log}
}

func (s *ClientInputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// Err is set once the session is over: turned away, protocol error, or
// the server closed the connection.
func (s *ClientInputSystem) Err() error { return s.err }

func (s *ClientInputSystem) Update(_ time.Duration) {
	if s.err != nil {
		return
	}
	for {
		select {
		case data := <-s.server.InQueue:
			if err := s.registry.Dispatch(s.server, s.server.State(), data); err != nil {
				s.log.Error("bad message from server", zap.String("op", opName(data)), zap.Error(err))
				s.server.Kick(err)
				s.err = fmt.Errorf("protocol error: %w", err)
				return
			}
			if s.mirror.Err != nil {
				s.err = s.mirror.Err
				return
			}
			continue
		default:
		}
		break
	}
	if s.server.IsClosed() && len(s.server.InQueue) == 0 {
		s.err = ErrServerGone
		if cause := s.server.Cause(); cause != nil {
			s.err = fmt.Errorf("%w: %v", ErrServerGone, cause)
		}
	}
}

// ClientIntentSystem plays the local inhabitant: it spins our mass at a
// fixed rate and periodically fires at the nearest other mass. Both only
// happen while the game runs. Phase 0 (Input), after ClientInputSystem.
type ClientIntentSystem struct {
	server       *net.Session
	sim          *sim.Sim
	mirror       *handler.Mirror
	spinRate     float64
	fireInterval time.Duration
	now          func() time.Time
	log          *zap.Logger

	sinceFire time.Duration
}

func NewClientIntentSystem(
	server *net.Session,
	s *sim.Sim,
	mirror *handler.Mirror,
	spinRate float64,
	fireInterval time.Duration,
	now func() time.Time,
	log *zap.Logger,
) *ClientIntentSystem {
	if now == nil {
		now = time.Now
	}
	return &ClientIntentSystem{
		server:       server,
		sim:          s,
		mirror:       mirror,
		spinRate:     spinRate,
		fireInterval: fireInterval,
		now:          now,
		log:          log,
	}
}

func (s *ClientIntentSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ClientIntentSystem) Update(dt time.Duration) {
	if s.mirror.State != world.StateRunning || s.mirror.MassID == 0 {
		return
	}
	own := s.sim.Registry().Get(s.mirror.MassID)
	if own == nil {
		return
	}

	if s.spinRate > 0 {
		step := mgl64.QuatRotate(s.spinRate*dt.Seconds(), mgl64.Vec3{0, 1, 0})
		q := step.Mul(own.Orientation).Normalize()
		s.sim.SetOrientation(own.MassID(), q)
		handler.SendRotation(s.server, q, s.log)
	}

	if s.fireInterval <= 0 {
		return
	}
	s.sinceFire += dt
	if s.sinceFire < s.fireInterval {
		return
	}
	s.sinceFire = 0
	target, ok := s.nearest(own)
	if !ok {
		return
	}
	if err := handler.SendProjectile(s.server, s.sim, own.MassID(), target, s.now(), s.log); err != nil {
		s.log.Debug("fire skipped", zap.Error(err))
	}
}

func (s *ClientIntentSystem) nearest(own *world.Mass) (world.MassID, bool) {
	var (
		best   world.MassID
		bestD2 = math.Inf(1)
	)
	s.sim.Registry().Each(func(m *world.Mass) {
		if m.MassID() == own.MassID() {
			return
		}
		d := m.Position.Sub(own.Position)
		d2 := d.Dot(d)
		if d2 < bestD2 {
			best, bestD2 = m.MassID(), d2
		}
	})
	return best, best != 0
}

// ClientOutputSystem flushes the messages queued for the server.
// Phase 3 (Output).
type ClientOutputSystem struct {
	server *net.Session
}

func NewClientOutputSystem(server *net.Session) *ClientOutputSystem {
	return &ClientOutputSystem{server: server}
}

func (s *ClientOutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *ClientOutputSystem) Update(_ time.Duration) {
	s.server.FlushOutput()
}
