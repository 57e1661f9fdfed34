package handler

import (
	"errors"
	"fmt"

	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// HandleHello processes the handshake: version check, identity, then mass
// assignment. Refusals are answered, not treated as protocol errors.
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) error {
	hello, err := protocol.DecodeHello(r)
	if err != nil {
		return err
	}

	if err := protocol.CheckVersion(hello.Version, deps.Config.Network.ProtocolVersion); err != nil {
		reject(sess, protocol.RejectVersion, err, deps.Log)
		return nil
	}
	if hello.ClientID == 0 {
		reject(sess, protocol.RejectBadHandshake, errors.New("client id 0 is reserved"), deps.Log)
		return nil
	}
	if other := deps.Sessions.ByClient(hello.ClientID); other != nil && other != sess {
		reject(sess, protocol.RejectDuplicateClient, fmt.Errorf("client %d: %w", hello.ClientID, world.ErrDuplicateClient), deps.Log)
		return nil
	}

	prev := deps.Lobby.State()
	massID, err := deps.Lobby.Assign(world.ClientID(hello.ClientID))
	switch {
	case errors.Is(err, world.ErrNoCapacity):
		sess.Log().Warn("no free inhabitable mass", zap.String("nick", protocol.ToNick(hello.ClientID)))
		send(sess, protocol.NoCapacity{}, deps.Log)
		sess.CloseAfterFlush(err)
		return nil
	case errors.Is(err, world.ErrDuplicateClient):
		reject(sess, protocol.RejectDuplicateClient, fmt.Errorf("client %d: %w", hello.ClientID, err), deps.Log)
		return nil
	case errors.Is(err, world.ErrClientDeparted):
		// Masses are never reassigned, so a departed client stays out.
		reject(sess, protocol.RejectClientDeparted, fmt.Errorf("client %d: %w", hello.ClientID, err), deps.Log)
		return nil
	case err != nil:
		return fmt.Errorf("assign client %d: %w", hello.ClientID, err)
	}

	sess.ClientID = hello.ClientID
	sess.SetState(packet.StateJoined)
	if m := deps.Sim.Registry().Get(massID); m != nil {
		m.InhabitedBy = world.ClientID(hello.ClientID)
	}
	deps.Sim.Record(sim.Event{Kind: sim.EventClientAssigned, A: hello.ClientID, B: uint64(massID)})
	sess.Log().Info("client joined",
		zap.String("nick", protocol.ToNick(hello.ClientID)),
		zap.Uint64("mass", uint64(massID)),
		zap.Int("free", deps.Lobby.Free()),
	)

	// Earlier assignments first so the newcomer knows who inhabits what.
	mapping := deps.Lobby.ClientMassMap()
	for _, c := range deps.Lobby.Clients() {
		if uint64(c) == hello.ClientID {
			continue
		}
		send(sess, protocol.ClientJoined{ClientID: uint64(c), MassID: uint64(mapping[c])}, deps.Log)
	}
	broadcast(deps.Sessions, protocol.ClientJoined{ClientID: hello.ClientID, MassID: uint64(massID)}, 0, deps.Log)

	if now := deps.Lobby.State(); now != prev {
		deps.Sim.Record(sim.Event{Kind: sim.EventStateChanged, Value: float64(now)})
	}
	send(sess, protocol.SetGameState{State: deps.Lobby.State()}, deps.Log)

	if deps.Lobby.PoolEmpty() {
		cfg := world.GameConfig{
			ClientMassMap: mapping,
			Physics:       deps.Sim.PhysicsSettings(),
			Init:          deps.Sim.Registry().Snapshot(),
		}
		deps.Log.Info("every inhabitable mass claimed, sending game config",
			zap.Int("clients", len(mapping)),
			zap.Int("masses", len(cfg.Init)),
		)
		broadcast(deps.Sessions, protocol.SetGameConfig{Config: cfg}, 0, deps.Log)
	}
	return nil
}
