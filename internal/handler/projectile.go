package handler

import (
	"fmt"
	"math"

	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// HandleProjectileFired starts the shot locally and relays it to every
// client, the shooter included. launch_time is taken as reported.
func HandleProjectileFired(sess *net.Session, r *packet.Reader, deps *Deps) error {
	msg, err := protocol.DecodeProjectileFired(r)
	if err != nil {
		return err
	}
	if msg.LaunchTime > math.MaxInt64 {
		return fmt.Errorf("%w: launch_time %d out of range", protocol.ErrMalformed, msg.LaunchTime)
	}

	own, ok := deps.Lobby.MassOf(world.ClientID(sess.ClientID))
	if !ok || uint64(own) != msg.From {
		sess.Log().Debug("projectile not fired from sender's mass dropped",
			zap.Uint64("from", msg.From), zap.Uint64("own", uint64(own)))
		return nil
	}

	id, err := deps.Sim.Fire(int64(msg.LaunchTime), world.MassID(msg.From), world.MassID(msg.To), vec64(msg.LocalImpactDir))
	if err != nil {
		sess.Log().Debug("projectile dropped", zap.Error(err))
		return nil
	}
	sess.Log().Debug("projectile fired", zap.Uint64("projectile", id), zap.Uint64("to", msg.To))

	msg.Relay = true
	broadcast(deps.Sessions, msg, 0, deps.Log)
	return nil
}
