package system

import (
	"fmt"
	"time"

	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// InputSystem admits new sessions, retires closed ones and dispatches up to
// maxPerTick queued messages per session. Phase 0 (Input).
type InputSystem struct {
	newSessions <-chan *net.Session
	registry    *packet.Registry
	store       *net.SessionStore
	lobby       *world.Lobby
	sim         *sim.Sim
	maxPerTick  int
	log         *zap.Logger

	err error
}

func NewInputSystem(
	newSessions <-chan *net.Session,
	registry *packet.Registry,
	store *net.SessionStore,
	lobby *world.Lobby,
	s *sim.Sim,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		newSessions: newSessions,
		registry:    registry,
		store:       store,
		lobby:       lobby,
		sim:         s,
		maxPerTick:  maxPerTick,
		log:         log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// Err is world.ErrSessionEnded once an assigned client has left on its own.
func (s *InputSystem) Err() error { return s.err }

func (s *InputSystem) Update(_ time.Duration) {
	// 接收新連線
	for {
		select {
		case sess := <-s.newSessions:
			s.store.Add(sess)
			continue
		default:
		}
		break
	}

	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			s.handleDisconnect(sess)
			s.store.Remove(sess.ID)
			return
		}
		s.drain(sess)
	})
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				sess.Log().Warn("封包分派錯誤，斷開連線",
					zap.String("op", opName(data)),
					zap.Error(err),
				)
				sess.Kick(fmt.Errorf("protocol error: %w", err))
				return
			}
			if sess.IsClosed() || sess.State() == packet.StateDisconnecting {
				return
			}
		default:
			return
		}
	}
}

// handleDisconnect 釋放離線客戶端的佔用。其天體維持已佔用狀態，不會再分配。
// 已分配的客戶端主動離開時，整個 session 結束。
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	client := world.ClientID(sess.ClientID)
	massID, assigned := s.lobby.Release(client)
	if !assigned {
		sess.Log().Debug("未加入的連線已離線", zap.NamedError("cause", sess.Cause()))
		return
	}
	if m := s.sim.Registry().Get(massID); m != nil && m.InhabitedBy == client {
		m.InhabitedBy = 0
	}
	s.sim.Record(sim.Event{Kind: sim.EventClientLeft, A: uint64(client), B: uint64(massID)})

	cause := sess.Cause()
	if cause != nil {
		sess.Log().Warn("client disconnected by server",
			zap.String("nick", protocol.ToNick(uint64(client))),
			zap.Uint64("mass", uint64(massID)),
			zap.Error(cause),
		)
		return
	}
	sess.Log().Info("client left, ending session",
		zap.String("nick", protocol.ToNick(uint64(client))),
		zap.Uint64("mass", uint64(massID)),
	)
	if s.err == nil {
		s.err = fmt.Errorf("client %d: %w", client, world.ErrSessionEnded)
	}
}

func opName(data []byte) string {
	if len(data) == 0 {
		return "empty"
	}
	return protocol.OpcodeName(data[0])
}
