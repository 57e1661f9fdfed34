package sim

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/physics"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newSim(t *testing.T, opts Options, data world.InitData) *Sim {
	t.Helper()
	if opts.Substeps == 0 {
		opts.Substeps = 1
	}
	s := New(opts, zap.NewNop())
	if err := s.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestScenarioTouchingBodiesMerge(t *testing.T) {
	big, small := physics.RadiusToMass(10), physics.RadiusToMass(5)
	s := newSim(t, Options{ZeroGravity: true}, world.InitData{
		1: {Mass: big},
		2: {Mass: small, Position: mgl64.Vec3{15, 0, 0}, Velocity: mgl64.Vec3{-2, 0, 0}},
	})

	rep, err := s.Collide()
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Merges) != 1 || rep.Merges[0].Major != 1 || rep.Merges[0].Minor != 2 {
		t.Fatalf("merges = %+v", rep.Merges)
	}
	gone := s.Flush()
	if len(gone.Masses) != 1 || gone.Masses[0] != 2 {
		t.Fatalf("despawned = %+v", gone)
	}

	m := s.Registry().Get(1)
	wantMass := 4.0 / 3.0 * math.Pi * (1000 + 125)
	if !near(m.Mass, wantMass, 1e-6) {
		t.Errorf("mass = %v, want %v", m.Mass, wantMass)
	}
	if !near(m.Velocity.X(), -2*125.0/1125.0, 1e-9) {
		t.Errorf("velocity = %v", m.Velocity)
	}
	if !near(m.Radius(), physics.MassToRadius(wantMass), 1e-9) {
		t.Errorf("radius = %v, want %v", m.Radius(), physics.MassToRadius(wantMass))
	}
	if s.Registry().Len() != 1 {
		t.Fatalf("registry len = %d", s.Registry().Len())
	}
}

func TestAbsorbedBodySkipsLaterCollisions(t *testing.T) {
	// 1 touches both 2 and 3; 2 absorbs 1 first, so (1,3) must be skipped.
	s := newSim(t, Options{ZeroGravity: true}, world.InitData{
		1: {Mass: physics.RadiusToMass(5)},
		2: {Mass: physics.RadiusToMass(10), Position: mgl64.Vec3{14, 0, 0}},
		3: {Mass: physics.RadiusToMass(4), Position: mgl64.Vec3{-8, 0, 0}},
	})
	rep, _, err := s.Step(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Merges) != 1 || rep.Merges[0].Minor != 1 {
		t.Fatalf("merges = %+v", rep.Merges)
	}
	if !s.Registry().Has(3) || s.Registry().Has(1) {
		t.Fatalf("ids = %v", s.Registry().IDs())
	}
}

func TestPlayerBodiesNeverMerge(t *testing.T) {
	s := newSim(t, Options{ZeroGravity: true}, world.InitData{
		1: {Mass: 10, Inhabitable: true},
		2: {Mass: 10, Inhabitable: true, Position: mgl64.Vec3{1, 0, 0}},
	})
	rep, _, _ := s.Step(time.Millisecond)
	if len(rep.Merges) != 0 || s.Registry().Len() != 2 {
		t.Fatalf("players merged: %+v", rep.Merges)
	}
}

func TestMassAndMomentumConserved(t *testing.T) {
	data := world.InitData{}
	for i := 1; i <= 12; i++ {
		a := float64(i) * math.Pi / 6
		data[world.MassID(i)] = world.InitRecord{
			Mass:     float64(i),
			Position: mgl64.Vec3{20 * math.Cos(a), 20 * math.Sin(a), float64(i%3) - 1},
			Velocity: mgl64.Vec3{-math.Sin(a), math.Cos(a), 0}.Mul(0.3),
		}
	}
	s := newSim(t, Options{G: 5, DistanceScale: 1, Substeps: 4}, data)
	totalMass := data.TotalMass()
	momentum := func() mgl64.Vec3 {
		var p mgl64.Vec3
		s.Registry().Each(func(m *world.Mass) { p = p.Add(m.Momentum()) })
		return p
	}
	p0 := momentum()

	merges := 0
	for i := 0; i < 2000; i++ {
		rep, _, err := s.Step(16 * time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		merges += len(rep.Merges)
	}
	if merges == 0 {
		t.Fatal("expected the cluster to collapse into at least one merge")
	}
	if got := s.Registry().TotalMass(); !near(got, totalMass, 1e-9*totalMass) {
		t.Fatalf("total mass %v, want %v", got, totalMass)
	}
	if d := momentum().Sub(p0).Len(); d > 1e-6 {
		t.Fatalf("momentum drifted by %v", d)
	}
}

// projectileWorld: 1 is a player launcher far away, 3 touches 2 and is
// absorbed by it on the first collide.
func projectileWorld() world.InitData {
	return world.InitData{
		1: {Mass: physics.RadiusToMass(2), Inhabitable: true, Position: mgl64.Vec3{0, 100, 0}},
		2: {Mass: physics.RadiusToMass(10)},
		3: {Mass: physics.RadiusToMass(5), Position: mgl64.Vec3{15, 0, 0}},
	}
}

func TestProjectileDiscardedWithTarget(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_000_000)}
	s := newSim(t, Options{ZeroGravity: true, ProjectileSpeed: 1, ProjectileRadius: 0.25, Now: clock.Now}, projectileWorld())
	id, err := s.Fire(1_000_000, 1, 3, mgl64.Vec3{0, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if s.Registry().Has(world.MassID(id)) {
		t.Fatal("projectile id collides with a mass id")
	}

	if _, err := s.Collide(); err != nil {
		t.Fatal(err)
	}
	gone := s.Flush()
	if len(gone.Projectiles) != 1 || gone.Projectiles[0] != id {
		t.Fatalf("despawned = %+v", gone)
	}
	if s.Tracker().Len() != 0 {
		t.Fatal("flight survived its target")
	}
}

func TestProjectileRetargetedToMajor(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_000_000)}
	s := newSim(t, Options{
		ZeroGravity: true, ProjectileSpeed: 1, ProjectileRadius: 0.25,
		Policy: RetargetOnTargetLoss, Now: clock.Now,
	}, projectileWorld())
	id, err := s.Fire(1_000_000, 1, 3, mgl64.Vec3{0, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	s.Collide()
	gone := s.Flush()
	if len(gone.Projectiles) != 0 {
		t.Fatalf("projectile despawned: %+v", gone)
	}
	f, ok := s.Tracker().Get(id)
	if !ok || f.To != 2 {
		t.Fatalf("flight = %+v, %v", f, ok)
	}
}

func TestProjectileArrivalAppliesImpulse(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(5_000)}
	targetMass := physics.RadiusToMass(1)
	s := newSim(t, Options{
		ZeroGravity: true, ProjectileSpeed: 50, ProjectileRadius: 0.25,
		ImpactImpulse: 2 * targetMass, Now: clock.Now,
	}, world.InitData{
		1: {Mass: physics.RadiusToMass(2), Inhabitable: true},
		2: {Mass: targetMass, Position: mgl64.Vec3{10, 0, 0}},
	})
	id, err := s.Fire(5_000, 1, 2, mgl64.Vec3{-1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	clock.t = clock.t.Add(100 * time.Millisecond) // 5 units of 9
	rep, _ := s.Collide()
	if len(rep.Arrivals) != 0 {
		t.Fatal("arrived early")
	}
	if f, _ := s.Tracker().Get(id); !near(f.Position.X(), 5, 1e-9) {
		t.Fatalf("mid-flight position = %v", f.Position)
	}

	clock.t = clock.t.Add(time.Second)
	rep, _ = s.Collide()
	if len(rep.Arrivals) != 1 || !near(rep.Arrivals[0].ImpactSite.X(), 9, 1e-9) {
		t.Fatalf("arrivals = %+v", rep.Arrivals)
	}
	if v := s.Registry().Get(2).Velocity; !near(v.X(), 2, 1e-9) {
		t.Fatalf("target velocity = %v, want +2 x", v)
	}
	gone := s.Flush()
	if len(gone.Projectiles) != 1 || s.Tracker().Len() != 0 {
		t.Fatalf("despawned = %+v", gone)
	}
}

func TestFireRejectsUnknownMasses(t *testing.T) {
	s := newSim(t, Options{}, world.InitData{1: {Mass: 1}})
	if _, err := s.Fire(0, 1, 9, mgl64.Vec3{1, 0, 0}); err == nil {
		t.Fatal("fired at a missing target")
	}
	if _, err := s.Fire(0, 9, 1, mgl64.Vec3{1, 0, 0}); err == nil {
		t.Fatal("fired from a missing launcher")
	}
}

func TestJournalRecordsMerges(t *testing.T) {
	s := newSim(t, Options{ZeroGravity: true}, world.InitData{
		1: {Mass: 8},
		2: {Mass: 1, Position: mgl64.Vec3{0.5, 0, 0}},
	})
	s.Step(time.Millisecond)
	var kinds []EventKind
	s.DrainJournal(func(e Event) {
		kinds = append(kinds, e.Kind)
		if e.Tick != 1 {
			t.Errorf("tick = %d", e.Tick)
		}
	})
	if len(kinds) != 1 || kinds[0] != EventMerged {
		t.Fatalf("journal = %v", kinds)
	}
}
