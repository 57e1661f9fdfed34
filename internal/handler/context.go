package handler

import (
	"github.com/orbitsim/server/internal/config"
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all server message handlers.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Sim      *sim.Sim
	Lobby    *world.Lobby
	Sessions *net.SessionStore
}

// RegisterAll registers every client → server handler.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(protocol.C_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) error {
			return HandleHello(sess.(*net.Session), r, deps)
		},
	)

	joined := []packet.SessionState{packet.StateJoined}

	reg.Register(protocol.C_READY, joined,
		func(sess any, r *packet.Reader) error {
			return HandleReady(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(protocol.C_ROTATION, joined,
		func(sess any, r *packet.Reader) error {
			return HandleRotation(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(protocol.C_PROJECTILE_FIRED, joined,
		func(sess any, r *packet.Reader) error {
			return HandleProjectileFired(sess.(*net.Session), r, deps)
		},
	)
}
