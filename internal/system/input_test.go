package system

import (
	"context"
	"errors"
	gonet "net"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/config"
	"github.com/orbitsim/server/internal/handler"
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/persist"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

type serverEnv struct {
	deps     *handler.Deps
	input    *InputSystem
	incoming chan *net.Session
	next     uint64
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	s := sim.New(sim.Options{Substeps: 2, ProjectileSpeed: 10, ProjectileRadius: 0.25}, zap.NewNop())
	if err := s.Load(world.InitData{
		1: {Mass: 1000},
		2: {Mass: 5, Inhabitable: true, Position: mgl64.Vec3{0, 100, 0}},
		3: {Mass: 5, Inhabitable: true, Position: mgl64.Vec3{0, -100, 0}},
	}); err != nil {
		t.Fatal(err)
	}
	deps := &handler.Deps{
		Config:   config.Defaults(),
		Log:      zap.NewNop(),
		Sim:      s,
		Lobby:    world.NewLobby(s.Registry().Inhabitable()),
		Sessions: net.NewSessionStore(),
	}
	reg := packet.NewRegistry(zap.NewNop())
	handler.RegisterAll(reg, deps)
	incoming := make(chan *net.Session, 4)
	return &serverEnv{
		deps:     deps,
		input:    NewInputSystem(incoming, reg, deps.Sessions, deps.Lobby, s, 8, zap.NewNop()),
		incoming: incoming,
	}
}

// connect admits a session whose I/O goroutines never run.
func (e *serverEnv) connect(t *testing.T) *net.Session {
	t.Helper()
	a, b := gonet.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	e.next++
	sess := net.NewSession(net.NewTCPConn(a), e.next, net.SessionOptions{InQueueSize: 8, OutQueueSize: 64}, zap.NewNop())
	e.incoming <- sess
	return sess
}

func push(t *testing.T, sess *net.Session, m protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	sess.InQueue <- data
}

func (e *serverEnv) join(t *testing.T, client uint64) *net.Session {
	t.Helper()
	sess := e.connect(t)
	push(t, sess, protocol.Hello{Version: e.deps.Config.Network.ProtocolVersion, ClientID: client})
	e.input.Update(time.Millisecond)
	if _, ok := e.deps.Lobby.MassOf(world.ClientID(client)); !ok {
		t.Fatalf("client %d not assigned", client)
	}
	return sess
}

func TestInputAdmitsAndDispatches(t *testing.T) {
	e := newServerEnv(t)
	sess := e.join(t, 11)
	if e.deps.Sessions.Len() != 1 {
		t.Fatalf("store has %d sessions", e.deps.Sessions.Len())
	}
	if sess.State() != packet.StateJoined {
		t.Fatalf("state = %s", sess.State())
	}
	if m := e.deps.Sim.Registry().Get(2); m.InhabitedBy != 11 {
		t.Fatalf("mass 2 inhabited by %d", m.InhabitedBy)
	}
	if e.deps.Lobby.State() != world.StateWaiting {
		t.Fatalf("lobby state = %s", e.deps.Lobby.State())
	}
}

func TestVoluntaryLeaveEndsSession(t *testing.T) {
	e := newServerEnv(t)
	sess := e.join(t, 11)
	sess.Close()
	e.input.Update(time.Millisecond)

	if !errors.Is(e.input.Err(), world.ErrSessionEnded) {
		t.Fatalf("Err = %v, want ErrSessionEnded", e.input.Err())
	}
	if e.deps.Sessions.Len() != 0 {
		t.Fatal("closed session still stored")
	}
	if m := e.deps.Sim.Registry().Get(2); m.InhabitedBy != 0 {
		t.Fatal("departed client still inhabits its mass")
	}
	if e.deps.Lobby.Free() != 1 {
		t.Fatalf("free = %d, departed mass must stay claimed", e.deps.Lobby.Free())
	}

	var kinds []sim.EventKind
	e.deps.Sim.DrainJournal(func(ev sim.Event) { kinds = append(kinds, ev.Kind) })
	if len(kinds) == 0 || kinds[len(kinds)-1] != sim.EventClientLeft {
		t.Fatalf("journal = %v, want trailing client-left", kinds)
	}
}

func TestProtocolErrorKicksWithoutEndingSession(t *testing.T) {
	e := newServerEnv(t)
	sess := e.join(t, 11)
	sess.InQueue <- []byte{protocol.C_ROTATION, 1, 2} // short body
	e.input.Update(time.Millisecond)
	if !sess.IsClosed() {
		t.Fatal("peer not kicked")
	}
	if sess.Cause() == nil {
		t.Fatal("kick has no cause")
	}

	e.input.Update(time.Millisecond)
	if e.input.Err() != nil {
		t.Fatalf("kick ended the session: %v", e.input.Err())
	}
	if e.deps.Sessions.Len() != 0 {
		t.Fatal("kicked session still stored")
	}
}

func TestUnassignedPeerLeavingIsHarmless(t *testing.T) {
	e := newServerEnv(t)
	sess := e.connect(t)
	e.input.Update(time.Millisecond)
	sess.Close()
	e.input.Update(time.Millisecond)
	if e.input.Err() != nil {
		t.Fatalf("Err = %v", e.input.Err())
	}
}

func TestOutputFlushesEverySession(t *testing.T) {
	e := newServerEnv(t)
	a := e.join(t, 11)
	b := e.join(t, 12)
	NewOutputSystem(e.deps.Sessions).Update(time.Millisecond)
	if len(a.OutQueue) == 0 || len(b.OutQueue) == 0 {
		t.Fatalf("queued a=%d b=%d", len(a.OutQueue), len(b.OutQueue))
	}
}

type recordingWriter struct {
	batches [][]persist.EventRecord
	fail    bool
}

func (w *recordingWriter) WriteEvents(_ context.Context, _ int64, events []persist.EventRecord) error {
	if w.fail {
		return errors.New("db down")
	}
	w.batches = append(w.batches, append([]persist.EventRecord(nil), events...))
	return nil
}

func TestPersistenceBatchesJournal(t *testing.T) {
	e := newServerEnv(t)
	w := &recordingWriter{}
	p := NewPersistenceSystem(e.deps.Sim, w, 42, 2, zap.NewNop())

	e.deps.Sim.Record(sim.Event{Kind: sim.EventStateChanged, A: 1})
	p.Update(time.Millisecond)
	if len(w.batches) != 0 {
		t.Fatal("wrote before the interval elapsed")
	}
	e.deps.Sim.Record(sim.Event{Kind: sim.EventStateChanged, A: 2})
	p.Update(time.Millisecond)
	if len(w.batches) != 1 || len(w.batches[0]) != 2 {
		t.Fatalf("batches = %v", w.batches)
	}
	if w.batches[0][0].Kind != sim.EventStateChanged.String() {
		t.Fatalf("kind = %q", w.batches[0][0].Kind)
	}

	w.fail = true
	e.deps.Sim.Record(sim.Event{Kind: sim.EventClientLeft})
	p.Update(time.Millisecond)
	p.Update(time.Millisecond)
	w.fail = false
	p.Flush()
	if len(w.batches) != 2 || len(w.batches[1]) != 1 {
		t.Fatalf("failed batch not retried: %v", w.batches)
	}
}
