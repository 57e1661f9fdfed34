// Package projectile tracks fired shots as straight-line flights from the
// launching mass to a fixed point on the target's surface. Flight progress
// comes from wall-clock time since launch, not from simulation frames, so
// shot speed does not depend on frame rate or substep count.
package projectile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/physics"
)

// ErrLaunchMassGone means the mass that fired a projectile vanished while
// the shot was in flight. Launchers are player bodies, which never get
// absorbed, so this indicates a broken simulation.
var ErrLaunchMassGone = errors.New("projectile launch mass no longer exists")

// Flight is one projectile in transit.
type Flight struct {
	ID         uint64
	LaunchTime int64 // unix milliseconds, as reported by the firing client
	From, To   uint64

	// LocalImpactDir is a unit vector in the target's local frame, fixed at
	// fire time. The impact site follows the target but never re-aims.
	LocalImpactDir mgl64.Vec3

	Position mgl64.Vec3
}

// Body is what the tracker needs to know about a mass.
type Body struct {
	Position    mgl64.Vec3
	Radius      float64
	Mass        float64
	Orientation mgl64.Quat
}

// Lookup resolves a mass ID to its current state.
type Lookup func(id uint64) (Body, bool)

// Arrival reports a projectile that reached its target.
type Arrival struct {
	Flight     Flight
	ImpactSite mgl64.Vec3
	DeltaV     mgl64.Vec3 // velocity change to apply to the target; zero when impulses are off
}

// Tracker owns every in-flight projectile. Game loop only.
type Tracker struct {
	speed   float64 // world units per second
	radius  float64
	impulse float64
	now     func() time.Time

	flights map[uint64]*Flight
	order   []uint64
}

func NewTracker(speed, radius, impulse float64, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		speed:   speed,
		radius:  radius,
		impulse: impulse,
		now:     now,
		flights: make(map[uint64]*Flight),
	}
}

// Spawn starts tracking f. The launch position is the launcher's current
// position.
func (t *Tracker) Spawn(f Flight, lookup Lookup) error {
	if _, dup := t.flights[f.ID]; dup {
		return fmt.Errorf("projectile %d already in flight", f.ID)
	}
	from, ok := lookup(f.From)
	if !ok {
		return fmt.Errorf("projectile %d from mass %d: %w", f.ID, f.From, ErrLaunchMassGone)
	}
	if l := f.LocalImpactDir.Len(); l > 0 {
		f.LocalImpactDir = f.LocalImpactDir.Mul(1 / l)
	}
	f.Position = from.Position
	cp := f
	t.flights[f.ID] = &cp
	t.order = append(t.order, f.ID)
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	return nil
}

// Len is the number of flights in transit.
func (t *Tracker) Len() int { return len(t.flights) }

// Get returns a copy of a flight.
func (t *Tracker) Get(id uint64) (Flight, bool) {
	f, ok := t.flights[id]
	if !ok {
		return Flight{}, false
	}
	return *f, true
}

// Has reports whether id is an in-flight projectile.
func (t *Tracker) Has(id uint64) bool {
	_, ok := t.flights[id]
	return ok
}

// Remove stops tracking a projectile.
func (t *Tracker) Remove(id uint64) bool {
	if _, ok := t.flights[id]; !ok {
		return false
	}
	delete(t.flights, id)
	i := sort.Search(len(t.order), func(i int) bool { return t.order[i] >= id })
	if i < len(t.order) && t.order[i] == id {
		t.order = append(t.order[:i], t.order[i+1:]...)
	}
	return true
}

// Retarget points a flight at a new target, keeping its local impact
// direction.
func (t *Tracker) Retarget(id, target uint64) bool {
	f, ok := t.flights[id]
	if !ok {
		return false
	}
	f.To = target
	return true
}

// ImpactSite is the target's surface point along the rotated local impact
// direction.
func ImpactSite(localDir mgl64.Vec3, target Body) mgl64.Vec3 {
	dir := target.Orientation.Rotate(localDir)
	return target.Position.Add(dir.Mul(target.Radius))
}

// Advance moves every flight to where elapsed wall-clock time puts it.
// Flights whose target vanished are dropped and returned in lost. A missing
// launcher aborts with ErrLaunchMassGone.
func (t *Tracker) Advance(lookup Lookup) (lost []uint64, err error) {
	nowMs := t.now().UnixMilli()
	for _, id := range append([]uint64(nil), t.order...) {
		f := t.flights[id]
		from, ok := lookup(f.From)
		if !ok {
			return lost, fmt.Errorf("projectile %d from mass %d: %w", f.ID, f.From, ErrLaunchMassGone)
		}
		to, ok := lookup(f.To)
		if !ok {
			t.Remove(id)
			lost = append(lost, id)
			continue
		}
		f.Position = t.positionAt(f, from, to, nowMs)
	}
	return lost, nil
}

func (t *Tracker) positionAt(f *Flight, from, to Body, nowMs int64) mgl64.Vec3 {
	site := ImpactSite(f.LocalImpactDir, to)
	path := site.Sub(from.Position)
	length := path.Len()
	elapsed := float64(nowMs-f.LaunchTime) / 1000
	if elapsed < 0 {
		elapsed = 0 // launch stamped in the future by a skewed client clock
	}
	travelled := elapsed * t.speed
	if length == 0 || travelled >= length {
		return site
	}
	return from.Position.Add(path.Mul(travelled / length))
}

// Arrive completes a flight and removes it.
func (t *Tracker) Arrive(id uint64, lookup Lookup) (Arrival, bool) {
	f, ok := t.flights[id]
	if !ok {
		return Arrival{}, false
	}
	a := Arrival{Flight: *f}
	if to, ok := lookup(f.To); ok {
		a.ImpactSite = ImpactSite(f.LocalImpactDir, to)
		if t.impulse != 0 && to.Mass > 0 {
			push := to.Orientation.Rotate(f.LocalImpactDir).Mul(-1)
			a.DeltaV = push.Mul(t.impulse / to.Mass)
		}
	}
	t.Remove(id)
	return a, true
}

// Spheres returns collision volumes for every flight, ascending by ID.
func (t *Tracker) Spheres(buf []physics.Sphere) []physics.Sphere {
	for _, id := range t.order {
		f := t.flights[id]
		buf = append(buf, physics.Sphere{ID: f.ID, Center: f.Position, Radius: t.radius})
	}
	return buf
}

// Each visits flights in ascending ID order.
func (t *Tracker) Each(fn func(Flight)) {
	for _, id := range t.order {
		fn(*t.flights[id])
	}
}
