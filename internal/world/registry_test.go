package world

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestRegistryLoadOrdersByID(t *testing.T) {
	r := NewRegistry()
	err := r.Load(InitData{
		9: {Mass: 1},
		2: {Mass: 2, Inhabitable: true},
		5: {Mass: 3, Position: mgl64.Vec3{1, 2, 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ids := r.IDs()
	if len(ids) != 3 || ids[0] != 2 || ids[1] != 5 || ids[2] != 9 {
		t.Fatalf("ids = %v", ids)
	}
	bodies := r.Bodies(nil)
	if bodies[1].Position != (mgl64.Vec3{1, 2, 3}) {
		t.Fatalf("body order wrong: %+v", bodies[1])
	}
	if got := r.Inhabitable(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("inhabitable = %v", got)
	}
	if math.Abs(r.TotalMass()-6) > 1e-12 {
		t.Fatalf("total = %v", r.TotalMass())
	}

	// bodies alias registry state
	bodies[0].Velocity = mgl64.Vec3{1, 0, 0}
	if r.Get(2).Velocity != (mgl64.Vec3{1, 0, 0}) {
		t.Fatal("Bodies returned copies")
	}

	if m := r.Remove(5); m == nil || m.MassID() != 5 {
		t.Fatalf("remove = %+v", m)
	}
	if r.Remove(5) != nil || r.Has(5) {
		t.Fatal("mass 5 still present")
	}
	if ids := r.IDs(); len(ids) != 2 || ids[1] != 9 {
		t.Fatalf("ids after remove = %v", ids)
	}
}

func TestRegistryRejectsBadRecords(t *testing.T) {
	if err := NewRegistry().Load(InitData{0: {Mass: 1}}); err == nil {
		t.Fatal("accepted id 0")
	}
	if err := NewRegistry().Load(InitData{1: {Mass: 0}}); err == nil {
		t.Fatal("accepted zero mass")
	}
}

func TestByInhabitant(t *testing.T) {
	r := NewRegistry()
	r.Load(InitData{1: {Mass: 1, Inhabitable: true}, 2: {Mass: 1, Inhabitable: true}})
	r.Get(2).InhabitedBy = 77
	if m := r.ByInhabitant(77); m == nil || m.MassID() != 2 {
		t.Fatalf("ByInhabitant = %+v", m)
	}
	if r.ByInhabitant(0) != nil {
		t.Fatal("client 0 matched a mass")
	}
	if !r.Get(1).IsPlayer() || r.Get(1).Inhabited() {
		t.Fatal("inhabitable flags wrong")
	}
}

func TestSnapshotReflectsLiveState(t *testing.T) {
	r := NewRegistry()
	r.Load(InitData{1: {Mass: 2}, 2: {Mass: 3, Inhabitable: true}})
	r.Get(1).Position = mgl64.Vec3{4, 5, 6}
	r.Remove(2)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	if snap[1].Position != (mgl64.Vec3{4, 5, 6}) || snap[1].Mass != 2 {
		t.Fatalf("snapshot[1] = %+v", snap[1])
	}
}
