package world

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/physics"
)

// MassID is a stable body identifier assigned at world init.
type MassID uint64

// ClientID identifies a connected client. Zero means "nobody".
type ClientID uint64

// Mass is a simulated body plus its multiplayer attributes.
// Accessed only from the game loop goroutine.
type Mass struct {
	physics.Body

	Orientation mgl64.Quat
	Color       [4]float32

	Inhabitable bool
	InhabitedBy ClientID
}

func (m *Mass) MassID() MassID { return MassID(m.Body.ID) }

func (m *Mass) Inhabited() bool { return m.InhabitedBy != 0 }

// IsPlayer reports whether the mass counts as a player body for merging:
// claimed by a client or eligible to be claimed.
func (m *Mass) IsPlayer() bool { return m.Inhabitable || m.Inhabited() }

// InitRecord is the recorded starting state of one mass.
type InitRecord struct {
	Inhabitable bool
	Position    mgl64.Vec3
	Velocity    mgl64.Vec3
	Color       [4]float32
	Mass        float64
}

// InitData is a full world snapshot keyed by mass ID.
type InitData map[MassID]InitRecord

// TotalMass sums every record's mass.
func (d InitData) TotalMass() float64 {
	var sum float64
	for _, r := range d {
		sum += r.Mass
	}
	return sum
}

func newMass(id MassID, rec InitRecord) *Mass {
	return &Mass{
		Body:        *physics.NewBody(uint64(id), rec.Position, rec.Velocity, rec.Mass),
		Orientation: mgl64.QuatIdent(),
		Color:       rec.Color,
		Inhabitable: rec.Inhabitable,
	}
}
