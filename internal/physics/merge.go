package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Participant is one side of a merge. Player marks a body that is inhabited
// or inhabitable; such a body is never absorbed by a non-player body.
type Participant struct {
	Body   *Body
	Player bool
}

// MergeDirective describes the outcome of one merge: the major body takes
// the new state, the minor body is to be despawned.
type MergeDirective struct {
	Major, Minor uint64
	MajorPlayer  bool

	NewVelocity mgl64.Vec3
	NewPosition mgl64.Vec3
	NewMass     float64
	ScaleFactor float64 // multiplies the major's Scale
}

// ResolveMerge decides major/minor for a colliding pair and computes the
// merged state. ok is false when both bodies are players: such collisions
// are ignored.
//
// Roles: the strictly heavier body is major, equal masses go to the lower
// ID. A player body always ends up major against a non-player, whatever
// the sizes.
//
// A non-player major takes the combined momentum and moves halfway toward
// the mass-weighted midpoint; its scale grows so its radius matches the
// combined mass. A player major keeps its velocity, position and scale and
// just gets heavier.
func ResolveMerge(a, b Participant) (d MergeDirective, ok bool) {
	if a.Player && b.Player {
		return MergeDirective{}, false
	}

	major, minor := a, b
	if b.Body.Mass > a.Body.Mass || (b.Body.Mass == a.Body.Mass && b.Body.ID < a.Body.ID) {
		major, minor = b, a
	}
	if minor.Player {
		major, minor = minor, major
	}

	M, m := major.Body, minor.Body
	combined := M.Mass + m.Mass

	d = MergeDirective{
		Major:       M.ID,
		Minor:       m.ID,
		MajorPlayer: major.Player,
		NewMass:     combined,
		NewVelocity: M.Velocity,
		NewPosition: M.Position,
		ScaleFactor: 1,
	}
	if major.Player || combined <= 0 {
		return d, true
	}

	momentum := M.Momentum().Add(m.Momentum())
	d.NewVelocity = M.Velocity.Add(momentum.Mul(1 / combined).Sub(M.Velocity))

	midpoint := M.Position.Mul(M.Mass / combined).Add(m.Position.Mul(m.Mass / combined))
	d.NewPosition = M.Position.Add(midpoint.Sub(M.Position).Mul(0.5))

	d.ScaleFactor = math.Pow(M.Mass/combined, -1.0/3.0)
	return d, true
}

// Apply writes the directive's state onto the major body.
func (d MergeDirective) Apply(major *Body) {
	major.Velocity = d.NewVelocity
	major.Position = d.NewPosition
	major.Mass = d.NewMass
	major.Scale *= d.ScaleFactor
}
