package handler

import (
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// HandleReady records that a client finished local init and starts the
// game once every mass is claimed and every client is ready.
func HandleReady(sess *net.Session, r *packet.Reader, deps *Deps) error {
	if _, err := protocol.DecodeReady(r); err != nil {
		return err
	}

	switch deps.Lobby.MarkReady(world.ClientID(sess.ClientID)) {
	case world.ReadyIgnored:
		sess.Log().Debug("ready ignored", zap.Stringer("state", deps.Lobby.State()))
	case world.ReadyWaiting:
		send(sess, protocol.SetGameState{State: world.StateWaiting}, deps.Log)
	case world.ReadyStarted:
		deps.Log.Info("all clients ready, game running")
		deps.Sim.Record(sim.Event{Kind: sim.EventStateChanged, Value: float64(world.StateRunning)})
		broadcast(deps.Sessions, protocol.SetGameState{State: world.StateRunning}, 0, deps.Log)
	}
	return nil
}
