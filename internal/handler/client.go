package handler

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// Mirror is the client's passive copy of the session state. It is only
// ever changed by server messages.
type Mirror struct {
	ClientID   uint64
	MassID     world.MassID // 0 until our ClientJoined arrives
	State      world.GameState
	Clients    map[world.ClientID]world.MassID
	Configured bool  // SetGameConfig received and loaded
	Err        error // why the server turned us away
}

func NewMirror(clientID uint64) *Mirror {
	return &Mirror{ClientID: clientID, Clients: make(map[world.ClientID]world.MassID)}
}

// ClientDeps holds what the client-side handlers need.
type ClientDeps struct {
	Log    *zap.Logger
	Sim    *sim.Sim
	Mirror *Mirror
	Server *net.Session
}

// RegisterClient registers every server → client handler.
func RegisterClient(reg *packet.Registry, deps *ClientDeps) {
	joined := []packet.SessionState{packet.StateJoined}
	register := func(op byte, fn func(*packet.Reader, *ClientDeps) error) {
		reg.Register(op, joined, func(_ any, r *packet.Reader) error {
			return fn(r, deps)
		})
	}
	register(protocol.S_REJECT, handleReject)
	register(protocol.S_NO_CAPACITY, handleNoCapacity)
	register(protocol.S_SET_GAME_STATE, handleSetGameState)
	register(protocol.S_SET_GAME_CONFIG, handleSetGameConfig)
	register(protocol.S_CLIENT_JOINED, handleClientJoined)
	register(protocol.S_INHABITANT_ROTATION, handleInhabitantRotation)
	register(protocol.S_PROJECTILE_FIRED, handleProjectileRelay)
}

// SendHello opens the handshake. The client session is considered joined
// from here on: every server message is accepted.
func SendHello(sess *net.Session, version, clientID uint64, log *zap.Logger) {
	send(sess, protocol.Hello{Version: version, ClientID: clientID}, log)
	sess.SetState(packet.StateJoined)
}

// SendRotation reports our mass orientation.
func SendRotation(sess *net.Session, q mgl64.Quat, log *zap.Logger) {
	send(sess, protocol.Rotation{Rotation: quat32(q)}, log)
}

// SendProjectile fires at target, aiming at the point of its surface
// that faces the shooter.
func SendProjectile(sess *net.Session, s *sim.Sim, from, to world.MassID, now time.Time, log *zap.Logger) error {
	shooter, target := s.Registry().Get(from), s.Registry().Get(to)
	if shooter == nil || target == nil {
		return fmt.Errorf("fire %d -> %d: unknown mass", from, to)
	}
	toward := shooter.Position.Sub(target.Position)
	if toward.Len() == 0 {
		return fmt.Errorf("fire %d -> %d: coincident bodies", from, to)
	}
	local := target.Orientation.Conjugate().Rotate(toward.Normalize())
	send(sess, protocol.ProjectileFired{
		LaunchTime:     uint64(now.UnixMilli()),
		From:           uint64(from),
		To:             uint64(to),
		LocalImpactDir: vec32(local),
	}, log)
	return nil
}

func handleReject(r *packet.Reader, deps *ClientDeps) error {
	msg, err := protocol.DecodeReject(r)
	if err != nil {
		return err
	}
	deps.Mirror.Err = fmt.Errorf("server rejected us: %s: %s", msg.Reason, msg.Detail)
	deps.Log.Error("rejected", zap.Stringer("reason", msg.Reason), zap.String("detail", msg.Detail))
	deps.Server.Close()
	return nil
}

func handleNoCapacity(r *packet.Reader, deps *ClientDeps) error {
	if _, err := protocol.DecodeNoCapacity(r); err != nil {
		return err
	}
	deps.Mirror.Err = world.ErrNoCapacity
	deps.Log.Warn("server has no free inhabitable mass")
	deps.Server.Close()
	return nil
}

func handleSetGameState(r *packet.Reader, deps *ClientDeps) error {
	msg, err := protocol.DecodeSetGameState(r)
	if err != nil {
		return err
	}
	if msg.State != deps.Mirror.State {
		deps.Log.Info("game state", zap.Stringer("from", deps.Mirror.State), zap.Stringer("to", msg.State))
	}
	deps.Mirror.State = msg.State
	return nil
}

func handleSetGameConfig(r *packet.Reader, deps *ClientDeps) error {
	msg, err := protocol.DecodeSetGameConfig(r)
	if err != nil {
		return err
	}
	cfg := msg.Config
	if err := deps.Sim.Load(cfg.Init); err != nil {
		return fmt.Errorf("%w: game config: %v", protocol.ErrMalformed, err)
	}
	deps.Sim.ApplyPhysics(cfg.Physics)

	deps.Mirror.Clients = make(map[world.ClientID]world.MassID, len(cfg.ClientMassMap))
	for c, m := range cfg.ClientMassMap {
		deps.Mirror.Clients[c] = m
		if mass := deps.Sim.Registry().Get(m); mass != nil {
			mass.InhabitedBy = c
		}
		if uint64(c) == deps.Mirror.ClientID {
			deps.Mirror.MassID = m
		}
	}
	deps.Mirror.Configured = true
	deps.Log.Info("game config loaded",
		zap.Int("masses", len(cfg.Init)),
		zap.Int("clients", len(cfg.ClientMassMap)),
		zap.Uint32("substeps", cfg.Physics.Substeps),
		zap.Bool("zero_gravity", cfg.Physics.ZeroGravity),
	)

	send(deps.Server, protocol.Ready{}, deps.Log)
	return nil
}

func handleClientJoined(r *packet.Reader, deps *ClientDeps) error {
	msg, err := protocol.DecodeClientJoined(r)
	if err != nil {
		return err
	}
	deps.Mirror.Clients[world.ClientID(msg.ClientID)] = world.MassID(msg.MassID)
	if msg.ClientID == deps.Mirror.ClientID {
		deps.Mirror.MassID = world.MassID(msg.MassID)
	}
	deps.Log.Info("client joined",
		zap.String("nick", protocol.ToNick(msg.ClientID)),
		zap.Uint64("mass", msg.MassID),
	)
	return nil
}

func handleInhabitantRotation(r *packet.Reader, deps *ClientDeps) error {
	msg, err := protocol.DecodeInhabitantRotation(r)
	if err != nil {
		return err
	}
	massID, ok := deps.Mirror.Clients[world.ClientID(msg.ClientID)]
	if !ok {
		deps.Log.Debug("rotation for unknown client dropped", zap.Uint64("client", msg.ClientID))
		return nil
	}
	q := msg.Rotation
	deps.Sim.SetOrientation(massID, quat64(q))
	return nil
}

func handleProjectileRelay(r *packet.Reader, deps *ClientDeps) error {
	msg, err := protocol.DecodeProjectileFired(r)
	if err != nil {
		return err
	}
	id, err := deps.Sim.Fire(int64(msg.LaunchTime), world.MassID(msg.From), world.MassID(msg.To), vec64(msg.LocalImpactDir))
	if err != nil {
		deps.Log.Debug("relayed projectile dropped", zap.Error(err))
		return nil
	}
	deps.Log.Info("projectile in flight",
		zap.Uint64("projectile", id),
		zap.Uint64("from", msg.From),
		zap.Uint64("to", msg.To),
	)
	return nil
}
