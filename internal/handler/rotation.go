package handler

import (
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// HandleRotation applies the sender's orientation to its mass and relays
// it to everyone else.
func HandleRotation(sess *net.Session, r *packet.Reader, deps *Deps) error {
	msg, err := protocol.DecodeRotation(r)
	if err != nil {
		return err
	}

	massID, ok := deps.Lobby.MassOf(world.ClientID(sess.ClientID))
	if !ok {
		sess.Log().Debug("rotation from client without a mass dropped")
		return nil
	}
	q := msg.Rotation
	if !deps.Sim.SetOrientation(massID, quat64(q)) {
		sess.Log().Debug("rotation for despawned mass dropped", zap.Uint64("mass", uint64(massID)))
		return nil
	}

	broadcast(deps.Sessions, protocol.InhabitantRotation{ClientID: sess.ClientID, Rotation: q}, sess.ID, deps.Log)
	return nil
}
