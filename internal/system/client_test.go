package system

import (
	"errors"
	gonet "net"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/handler"
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

type clientEnv struct {
	server *net.Session
	sim    *sim.Sim
	mirror *handler.Mirror
	input  *ClientInputSystem
}

func newClientEnv(t *testing.T, clientID uint64) *clientEnv {
	t.Helper()
	a, b := gonet.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	server := net.NewSession(net.NewTCPConn(a), 1, net.SessionOptions{InQueueSize: 16, OutQueueSize: 64}, zap.NewNop())
	s := sim.New(sim.Options{Substeps: 1, ProjectileSpeed: 10}, zap.NewNop())
	mirror := handler.NewMirror(clientID)
	reg := packet.NewRegistry(zap.NewNop())
	handler.RegisterClient(reg, &handler.ClientDeps{Log: zap.NewNop(), Sim: s, Mirror: mirror, Server: server})
	handler.SendHello(server, 7, clientID, zap.NewNop())
	return &clientEnv{
		server: server,
		sim:    s,
		mirror: mirror,
		input:  NewClientInputSystem(server, reg, mirror, zap.NewNop()),
	}
}

// drainOps flushes the client's output and returns the opcodes written.
func (c *clientEnv) drainOps() []byte {
	c.server.FlushOutput()
	var ops []byte
	for {
		select {
		case data := <-c.server.OutQueue:
			if data == nil {
				ops = append(ops, 0)
				continue
			}
			ops = append(ops, data[0])
		default:
			return ops
		}
	}
}

func (c *clientEnv) configure(t *testing.T) {
	t.Helper()
	push(t, c.server, protocol.ClientJoined{ClientID: c.mirror.ClientID, MassID: 2})
	push(t, c.server, protocol.SetGameState{State: world.StateWaiting})
	push(t, c.server, protocol.SetGameConfig{Config: world.GameConfig{
		ClientMassMap: map[world.ClientID]world.MassID{world.ClientID(c.mirror.ClientID): 2},
		Physics:       world.PhysicsSettings{Substeps: 2},
		Init: world.InitData{
			1: {Mass: 1000},
			2: {Mass: 5, Inhabitable: true, Position: mgl64.Vec3{0, 100, 0}},
			3: {Mass: 5, Position: mgl64.Vec3{0, 300, 0}},
		},
	}})
	push(t, c.server, protocol.SetGameState{State: world.StateRunning})
	c.input.Update(time.Millisecond)
	if c.input.Err() != nil {
		t.Fatal(c.input.Err())
	}
}

func TestClientInputMirrorsServer(t *testing.T) {
	c := newClientEnv(t, 9)
	c.configure(t)
	if c.mirror.MassID != 2 || !c.mirror.Configured || c.mirror.State != world.StateRunning {
		t.Fatalf("mirror = %+v", c.mirror)
	}
	ops := c.drainOps()
	want := []byte{protocol.C_HELLO, protocol.C_READY}
	if string(ops) != string(want) {
		t.Fatalf("sent %v, want %v", ops, want)
	}
}

func TestClientInputStopsWhenTurnedAway(t *testing.T) {
	c := newClientEnv(t, 9)
	push(t, c.server, protocol.NoCapacity{})
	c.input.Update(time.Millisecond)
	if !errors.Is(c.input.Err(), world.ErrNoCapacity) {
		t.Fatalf("Err = %v", c.input.Err())
	}
}

func TestClientInputNoticesServerGone(t *testing.T) {
	c := newClientEnv(t, 9)
	c.server.Close()
	c.input.Update(time.Millisecond)
	if !errors.Is(c.input.Err(), ErrServerGone) {
		t.Fatalf("Err = %v", c.input.Err())
	}
}

func TestIntentSpinsAndFiresAtNearest(t *testing.T) {
	c := newClientEnv(t, 9)
	c.configure(t)
	c.drainOps()

	now := time.UnixMilli(1_700_000_000_000)
	intent := NewClientIntentSystem(c.server, c.sim, c.mirror, 1.0, 100*time.Millisecond, func() time.Time { return now }, zap.NewNop())

	intent.Update(50 * time.Millisecond)
	if ops := c.drainOps(); string(ops) != string([]byte{protocol.C_ROTATION}) {
		t.Fatalf("first tick sent %v", ops)
	}
	if q := c.sim.Registry().Get(2).Orientation; q.ApproxEqual(mgl64.QuatIdent()) {
		t.Fatal("own orientation not advanced locally")
	}

	intent.Update(50 * time.Millisecond)
	ops := c.drainOps()
	if len(ops) != 2 || ops[1] != protocol.C_PROJECTILE_FIRED {
		t.Fatalf("second tick sent %v", ops)
	}
}

func TestIntentIdleBeforeRunning(t *testing.T) {
	c := newClientEnv(t, 9)
	c.drainOps()
	intent := NewClientIntentSystem(c.server, c.sim, c.mirror, 1.0, time.Millisecond, nil, zap.NewNop())
	intent.Update(time.Second)
	if ops := c.drainOps(); len(ops) != 0 {
		t.Fatalf("sent %v before the game started", ops)
	}
}
