package physics

import "github.com/go-gl/mathgl/mgl64"

// GravityIntegrator advances bodies under pairwise attraction using
// semi-implicit Euler: all accelerations are computed from the positions at
// the start of a substep, velocities are updated, then positions advance
// with the updated velocities.
type GravityIntegrator struct {
	G             float64
	DistanceScale float64 // multiplies separation before the inverse-square
	Substeps      uint32
	ZeroGravity   bool

	acc []mgl64.Vec3
}

func NewGravityIntegrator(g, distanceScale float64, substeps uint32, zeroG bool) *GravityIntegrator {
	if substeps == 0 {
		substeps = 1
	}
	if distanceScale == 0 {
		distanceScale = 1
	}
	return &GravityIntegrator{
		G:             g,
		DistanceScale: distanceScale,
		Substeps:      substeps,
		ZeroGravity:   zeroG,
	}
}

// Step integrates one frame of frameDt seconds split evenly across the
// configured substeps. bodies must be in a stable order for results to be
// reproducible across peers.
func (g *GravityIntegrator) Step(bodies []*Body, frameDt float64) {
	if len(bodies) == 0 || frameDt <= 0 {
		return
	}
	dt := frameDt / float64(g.Substeps)
	for s := uint32(0); s < g.Substeps; s++ {
		g.substep(bodies, dt)
	}
}

func (g *GravityIntegrator) substep(bodies []*Body, dt float64) {
	if !g.ZeroGravity {
		g.accumulate(bodies)
		for i, b := range bodies {
			b.Velocity = b.Velocity.Add(g.acc[i].Mul(dt))
		}
	}
	for _, b := range bodies {
		b.Position = b.Position.Add(b.Velocity.Mul(dt))
	}
}

// accumulate fills g.acc with the acceleration of every body: the summed
// pair forces G·m_i·m_j/d² divided by m_i. Coincident bodies contribute
// nothing to each other.
func (g *GravityIntegrator) accumulate(bodies []*Body) {
	if cap(g.acc) < len(bodies) {
		g.acc = make([]mgl64.Vec3, len(bodies))
	}
	g.acc = g.acc[:len(bodies)]
	for i := range g.acc {
		g.acc[i] = mgl64.Vec3{}
	}

	for i, bi := range bodies {
		if bi.Mass <= 0 {
			continue
		}
		var force mgl64.Vec3
		for j, bj := range bodies {
			if i == j {
				continue
			}
			d := bj.Position.Sub(bi.Position)
			dist := d.Len()
			if dist == 0 {
				continue
			}
			scaled := dist * g.DistanceScale
			mag := g.G * bi.Mass * bj.Mass / (scaled * scaled)
			force = force.Add(d.Mul(mag / dist))
		}
		g.acc[i] = force.Mul(1 / bi.Mass)
	}
}
