// Package physics holds the pure simulation math: body volume/radius
// conversion, N-body gravity, sphere overlap tracking and mass merging.
// Nothing here knows about clients or the network.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Density is uniformly 1, so mass, volume and radius are interchangeable.
const volumeFactor = 4.0 / 3.0 * math.Pi

// RadiusToMass returns the volume-equivalent mass of a sphere of radius r.
func RadiusToMass(r float64) float64 {
	return volumeFactor * r * r * r
}

// MassToRadius is the inverse of RadiusToMass.
func MassToRadius(m float64) float64 {
	return math.Cbrt(m / volumeFactor)
}

// Body is one simulated gravitational sphere.
type Body struct {
	ID       uint64
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Mass     float64

	// Scale multiplies BaseRadius. Ordinary merges grow it so the radius
	// tracks the mass; player bodies keep it and get denser instead.
	Scale      float64
	BaseRadius float64
}

func NewBody(id uint64, pos, vel mgl64.Vec3, mass float64) *Body {
	return &Body{
		ID:         id,
		Position:   pos,
		Velocity:   vel,
		Mass:       mass,
		Scale:      1,
		BaseRadius: MassToRadius(mass),
	}
}

// Radius is the collision and visual radius.
func (b *Body) Radius() float64 {
	return b.BaseRadius * b.Scale
}

// Momentum returns mass * velocity.
func (b *Body) Momentum() mgl64.Vec3 {
	return b.Velocity.Mul(b.Mass)
}
