package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestGravityPullsBodiesTogether(t *testing.T) {
	a := NewBody(1, mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{}, 100)
	b := NewBody(2, mgl64.Vec3{5, 0, 0}, mgl64.Vec3{}, 100)
	g := NewGravityIntegrator(0.01, 1, 4, false)

	g.Step([]*Body{a, b}, 0.1)

	if a.Velocity.X() <= 0 || b.Velocity.X() >= 0 {
		t.Fatalf("velocities not attractive: a=%v b=%v", a.Velocity, b.Velocity)
	}
	if a.Position.X() <= -5 || b.Position.X() >= 5 {
		t.Fatalf("positions did not move inward: a=%v b=%v", a.Position, b.Position)
	}
	// equal masses: momentum stays zero
	if p := a.Momentum().Add(b.Momentum()); p.Len() > 1e-12 {
		t.Fatalf("net momentum %v, want 0", p)
	}
}

func TestGravityConservesMomentumUnequalMasses(t *testing.T) {
	bodies := []*Body{
		NewBody(1, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0.1, 0}, 500),
		NewBody(2, mgl64.Vec3{20, 0, 0}, mgl64.Vec3{0, -1, 0}, 20),
		NewBody(3, mgl64.Vec3{0, 30, 5}, mgl64.Vec3{1, 0, 0}, 5),
	}
	before := mgl64.Vec3{}
	for _, b := range bodies {
		before = before.Add(b.Momentum())
	}
	g := NewGravityIntegrator(0.5, 1, 8, false)
	for i := 0; i < 50; i++ {
		g.Step(bodies, 1.0/60)
	}
	after := mgl64.Vec3{}
	for _, b := range bodies {
		after = after.Add(b.Momentum())
	}
	if !after.ApproxEqualThreshold(before, 1e-9) {
		t.Fatalf("momentum drifted: before %v after %v", before, after)
	}
}

func TestGravityAccelerationIndependentOfOwnMass(t *testing.T) {
	// a light and a heavy body each fall toward the same
	// attractor at G·M/d² whatever their own mass.
	for _, m := range []float64{1, 1000} {
		sun := NewBody(1, mgl64.Vec3{}, mgl64.Vec3{}, 400)
		b := NewBody(2, mgl64.Vec3{10, 0, 0}, mgl64.Vec3{}, m)
		g := NewGravityIntegrator(0.5, 1, 1, false)
		g.Step([]*Body{sun, b}, 0.1)
		want := -0.5 * 400 / 100 * 0.1
		if math.Abs(b.Velocity.X()-want) > 1e-12 {
			t.Errorf("mass %v: vx = %v, want %v", m, b.Velocity.X(), want)
		}
	}
}

func TestGravitySubstepsShareFrameTime(t *testing.T) {
	// With no forces, total displacement must equal v*frameDt regardless of
	// the substep count.
	for _, n := range []uint32{1, 3, 16} {
		b := NewBody(1, mgl64.Vec3{}, mgl64.Vec3{2, 0, 0}, 1)
		g := NewGravityIntegrator(1, 1, n, true)
		g.Step([]*Body{b}, 0.5)
		if math.Abs(b.Position.X()-1) > 1e-12 {
			t.Errorf("substeps=%d: x = %v, want 1", n, b.Position.X())
		}
	}
}

func TestZeroGravityIsPureInertia(t *testing.T) {
	a := NewBody(1, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, 1000)
	b := NewBody(2, mgl64.Vec3{3, 0, 0}, mgl64.Vec3{}, 1000)
	g := NewGravityIntegrator(10, 1, 2, true)

	g.Step([]*Body{a, b}, 1)

	if a.Velocity != (mgl64.Vec3{1, 0, 0}) || b.Velocity != (mgl64.Vec3{}) {
		t.Fatalf("zero-g changed velocities: %v %v", a.Velocity, b.Velocity)
	}
	if a.Position != (mgl64.Vec3{1, 0, 0}) {
		t.Fatalf("a position = %v", a.Position)
	}
}

func TestCoincidentBodiesContributeNothing(t *testing.T) {
	a := NewBody(1, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{}, 10)
	b := NewBody(2, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{}, 10)
	g := NewGravityIntegrator(1, 1, 1, false)

	g.Step([]*Body{a, b}, 1)

	for _, v := range []mgl64.Vec3{a.Velocity, b.Velocity, a.Position.Sub(mgl64.Vec3{1, 1, 1})} {
		if math.IsNaN(v.X()) || v.Len() != 0 {
			t.Fatalf("coincident bodies moved: a=%+v b=%+v", a, b)
		}
	}
}
