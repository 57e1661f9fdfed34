// Package sim is the simulation context: it owns the mass registry, the
// ownership tree, the projectile tracker and the overlap backend, and
// exposes the per-phase steps the tick systems call. Server and client run
// the same code so merges resolve identically on every peer.
package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/core/ecs"
	"github.com/orbitsim/server/internal/core/event"
	"github.com/orbitsim/server/internal/physics"
	"github.com/orbitsim/server/internal/projectile"
	"github.com/orbitsim/server/internal/world"
	"go.uber.org/zap"
)

// TargetLossPolicy decides what happens to a flight whose target is merged away.
type TargetLossPolicy uint8

const (
	DiscardOnTargetLoss  TargetLossPolicy = iota // flight is despawned with its target
	RetargetOnTargetLoss                         // flight follows the absorbing body
)

// ParsePolicy maps the config spelling to a policy.
func ParsePolicy(s string) (TargetLossPolicy, error) {
	switch s {
	case "", "discard":
		return DiscardOnTargetLoss, nil
	case "retarget":
		return RetargetOnTargetLoss, nil
	default:
		return 0, fmt.Errorf("unknown projectile policy %q", s)
	}
}

// Options configures a Sim.
type Options struct {
	G                float64
	DistanceScale    float64
	Substeps         uint32
	ZeroGravity      bool
	ProjectileSpeed  float64
	ProjectileRadius float64
	ImpactImpulse    float64
	Policy           TargetLossPolicy
	FrameDt          time.Duration    // fixed step per Integrate; 0 = caller's dt
	Now              func() time.Time // nil = time.Now
}

// Sim is the simulation context. Game loop only.
type Sim struct {
	registry *world.Registry
	tree     *ecs.World
	gravity  *physics.GravityIntegrator
	backend  *physics.OverlapBackend
	detector physics.CollisionDetector
	tracker  *projectile.Tracker
	policy   TargetLossPolicy
	opts     Options

	journal *event.Queue[Event]
	tick    uint64

	// per-tick scratch
	bodies   []*physics.Body
	spheres  []physics.Sphere
	arrivals []arrivalContact
	report   Report

	log *zap.Logger
}

// Report collects what happened during one Collide call.
type Report struct {
	Merges   []physics.MergeDirective
	Arrivals []projectile.Arrival
	Lost     []uint64 // flights dropped because their target vanished
}

// Despawned lists what one Flush removed.
type Despawned struct {
	Masses      []world.MassID
	Projectiles []uint64
}

type arrivalContact struct {
	projectile, target uint64
}

func New(opts Options, log *zap.Logger) *Sim {
	s := &Sim{
		registry: world.NewRegistry(),
		tree:     ecs.NewWorld(),
		gravity:  physics.NewGravityIntegrator(opts.G, opts.DistanceScale, opts.Substeps, opts.ZeroGravity),
		backend:  physics.NewOverlapBackend(),
		tracker:  projectile.NewTracker(opts.ProjectileSpeed, opts.ProjectileRadius, opts.ImpactImpulse, opts.Now),
		policy:   opts.Policy,
		opts:     opts,
		journal:  event.NewQueue[Event](64),
		log:      log,
	}
	s.detector = physics.CollisionDetector{IsMass: func(id uint64) bool {
		return s.registry.Has(world.MassID(id))
	}}
	return s
}

// Load replaces the world with a fresh snapshot. In-flight projectiles and
// remembered contacts are discarded.
func (s *Sim) Load(data world.InitData) error {
	if err := s.registry.Load(data); err != nil {
		return fmt.Errorf("load masses: %w", err)
	}
	s.tree = ecs.NewWorld()
	s.backend = physics.NewOverlapBackend()
	s.tracker = projectile.NewTracker(s.opts.ProjectileSpeed, s.opts.ProjectileRadius, s.opts.ImpactImpulse, s.opts.Now)
	for _, id := range s.registry.IDs() {
		if err := s.tree.CreateWithID(ecs.EntityID(id)); err != nil {
			return fmt.Errorf("register mass %d: %w", id, err)
		}
	}
	return nil
}

// ApplyPhysics adopts replicated physics tuning. Zero numeric fields keep
// the local value; the projectile radius, impulse and policy travel
// together with a non-zero projectile speed.
func (s *Sim) ApplyPhysics(p world.PhysicsSettings) {
	if p.Substeps > 0 {
		s.gravity.Substeps = p.Substeps
		s.opts.Substeps = p.Substeps
	}
	s.gravity.ZeroGravity = p.ZeroGravity
	s.opts.ZeroGravity = p.ZeroGravity
	if p.TickDt > 0 {
		s.opts.FrameDt = p.TickDt
	}
	if p.G != 0 {
		s.gravity.G = p.G
		s.opts.G = p.G
	}
	if p.DistanceScale != 0 {
		s.gravity.DistanceScale = p.DistanceScale
		s.opts.DistanceScale = p.DistanceScale
	}
	if p.ProjectileSpeed > 0 {
		s.opts.ProjectileSpeed = p.ProjectileSpeed
		s.opts.ProjectileRadius = p.ProjectileRadius
		s.opts.ImpactImpulse = p.ImpactImpulse
		s.policy = DiscardOnTargetLoss
		if p.Retarget {
			s.policy = RetargetOnTargetLoss
		}
		s.opts.Policy = s.policy
		if s.tracker.Len() == 0 {
			s.tracker = projectile.NewTracker(s.opts.ProjectileSpeed, s.opts.ProjectileRadius, s.opts.ImpactImpulse, s.opts.Now)
		}
	}
}

// PhysicsSettings returns the tuning to replicate to clients.
func (s *Sim) PhysicsSettings() world.PhysicsSettings {
	return world.PhysicsSettings{
		Substeps:         s.gravity.Substeps,
		ZeroGravity:      s.gravity.ZeroGravity,
		TickDt:           s.opts.FrameDt,
		G:                s.gravity.G,
		DistanceScale:    s.gravity.DistanceScale,
		ProjectileSpeed:  s.opts.ProjectileSpeed,
		ProjectileRadius: s.opts.ProjectileRadius,
		ImpactImpulse:    s.opts.ImpactImpulse,
		Retarget:         s.policy == RetargetOnTargetLoss,
	}
}

// FrameDt is the fixed integration step, or 0 when the caller's tick
// duration is used.
func (s *Sim) FrameDt() time.Duration { return s.opts.FrameDt }

func (s *Sim) Registry() *world.Registry { return s.registry }

func (s *Sim) Tracker() *projectile.Tracker { return s.tracker }

// Tick is the number of completed Integrate calls.
func (s *Sim) Tick() uint64 { return s.tick }

// Record appends an entry to the session journal, stamped with the
// current tick.
func (s *Sim) Record(e Event) {
	e.Tick = s.tick
	s.journal.Push(e)
}

// DrainJournal hands every pending journal entry to fn in order.
func (s *Sim) DrainJournal(fn func(Event)) {
	s.journal.Drain(fn)
}

// SetOrientation updates a mass's orientation. Unknown masses are ignored.
func (s *Sim) SetOrientation(id world.MassID, q mgl64.Quat) bool {
	m := s.registry.Get(id)
	if m == nil {
		return false
	}
	m.Orientation = q.Normalize()
	return true
}

// Fire starts a projectile from one mass toward another. The flight is
// owned by its target in the ownership tree, so it disappears with it.
func (s *Sim) Fire(launchTimeMs int64, from, to world.MassID, localDir mgl64.Vec3) (uint64, error) {
	if !s.tree.Alive(ecs.EntityID(to)) || !s.registry.Has(to) {
		return 0, fmt.Errorf("fire at mass %d: no such mass", to)
	}
	if _, ok := s.lookup(uint64(from)); !ok {
		return 0, fmt.Errorf("fire from mass %d: no such mass", from)
	}
	id, err := s.tree.CreateChild(ecs.EntityID(to))
	if err != nil {
		return 0, fmt.Errorf("fire at mass %d: %w", to, err)
	}
	f := projectile.Flight{
		ID:             uint64(id),
		LaunchTime:     launchTimeMs,
		From:           uint64(from),
		To:             uint64(to),
		LocalImpactDir: localDir,
	}
	if err := s.tracker.Spawn(f, s.lookup); err != nil {
		s.tree.MarkForDestruction(id)
		return 0, err
	}
	s.Record(Event{Kind: EventProjectileFired, A: uint64(id), B: uint64(to), Value: float64(from)})
	return uint64(id), nil
}

func (s *Sim) lookup(id uint64) (projectile.Body, bool) {
	m := s.registry.Get(world.MassID(id))
	if m == nil || !s.tree.Alive(ecs.EntityID(id)) {
		return projectile.Body{}, false
	}
	return projectile.Body{
		Position:    m.Position,
		Radius:      m.Radius(),
		Mass:        m.Mass,
		Orientation: m.Orientation,
	}, true
}

// Integrate advances every mass by one frame of gravity. A fixed FrameDt
// replaces frameDt so every peer steps by the same amount.
func (s *Sim) Integrate(frameDt time.Duration) {
	if s.opts.FrameDt > 0 {
		frameDt = s.opts.FrameDt
	}
	s.bodies = s.registry.Bodies(s.bodies)
	s.gravity.Step(s.bodies, frameDt.Seconds())
	s.tick++
}

// Collide moves projectiles, detects contact starts, resolves merges in
// contact order and completes projectile arrivals. Despawns are only
// queued; Flush applies them.
func (s *Sim) Collide() (Report, error) {
	s.report = Report{}

	lost, err := s.tracker.Advance(s.lookup)
	for _, id := range lost {
		s.tree.MarkForDestruction(ecs.EntityID(id))
		s.Record(Event{Kind: EventProjectileLost, A: id})
	}
	s.report.Lost = lost
	if err != nil {
		return s.report, err
	}

	s.spheres = s.spheres[:0]
	s.registry.Each(func(m *world.Mass) {
		s.spheres = append(s.spheres, physics.Sphere{ID: m.ID, Center: m.Position, Radius: m.Radius()})
	})
	s.spheres = s.tracker.Spheres(s.spheres)
	contacts := s.backend.Update(s.spheres)

	s.arrivals = s.arrivals[:0]
	for _, c := range contacts {
		if c.Kind != physics.ContactStarted {
			continue
		}
		if a, ok := s.arrivalFor(c.A, c.B); ok {
			s.arrivals = append(s.arrivals, a)
		} else if a, ok := s.arrivalFor(c.B, c.A); ok {
			s.arrivals = append(s.arrivals, a)
		}
	}

	for _, ev := range s.detector.Detect(contacts) {
		s.merge(ev)
	}

	for _, a := range s.arrivals {
		if !s.tree.Alive(ecs.EntityID(a.projectile)) || !s.tree.Alive(ecs.EntityID(a.target)) {
			continue // target absorbed this tick; the flush takes the flight with it
		}
		f, ok := s.tracker.Get(a.projectile)
		if !ok || f.To != a.target {
			continue // retargeted by a merge this tick
		}
		arr, ok := s.tracker.Arrive(a.projectile, s.lookup)
		if !ok {
			continue
		}
		if m := s.registry.Get(world.MassID(a.target)); m != nil {
			m.Velocity = m.Velocity.Add(arr.DeltaV)
		}
		s.tree.MarkForDestruction(ecs.EntityID(a.projectile))
		s.report.Arrivals = append(s.report.Arrivals, arr)
		s.Record(Event{Kind: EventProjectileArrived, A: a.projectile, B: a.target})
	}
	return s.report, nil
}

func (s *Sim) arrivalFor(p, target uint64) (arrivalContact, bool) {
	f, ok := s.tracker.Get(p)
	if !ok || f.To != target {
		return arrivalContact{}, false
	}
	return arrivalContact{projectile: p, target: target}, true
}

// merge resolves one collision. Events naming a body already absorbed
// this tick are skipped.
func (s *Sim) merge(ev physics.CollisionEvent) {
	if !s.tree.Alive(ecs.EntityID(ev.A)) || !s.tree.Alive(ecs.EntityID(ev.B)) {
		s.log.Debug("collision with despawned mass skipped", zap.Uint64("a", ev.A), zap.Uint64("b", ev.B))
		return
	}
	a := s.registry.Get(world.MassID(ev.A))
	b := s.registry.Get(world.MassID(ev.B))
	if a == nil || b == nil {
		return
	}
	d, ok := physics.ResolveMerge(
		physics.Participant{Body: &a.Body, Player: a.IsPlayer()},
		physics.Participant{Body: &b.Body, Player: b.IsPlayer()},
	)
	if !ok {
		return
	}
	major := s.registry.Get(world.MassID(d.Major))
	d.Apply(&major.Body)

	minor := ecs.EntityID(d.Minor)
	if s.policy == RetargetOnTargetLoss {
		for _, child := range s.tree.Children(minor) {
			if !s.tracker.Has(uint64(child)) {
				continue
			}
			if err := s.tree.Reparent(child, ecs.EntityID(d.Major)); err != nil {
				s.log.Warn("retarget projectile failed", zap.Uint64("projectile", uint64(child)), zap.Error(err))
				continue
			}
			s.tracker.Retarget(uint64(child), d.Major)
			s.backend.Forget(uint64(child))
		}
	}
	s.tree.MarkForDestruction(minor)

	s.report.Merges = append(s.report.Merges, d)
	s.Record(Event{Kind: EventMerged, A: d.Major, B: d.Minor, Value: d.NewMass})
}

// Flush removes every entity queued for destruction along with its
// dependents: minor masses go from the registry, their projectiles from the
// tracker, and both from the overlap backend.
func (s *Sim) Flush() Despawned {
	var out Despawned
	for _, id := range s.tree.FlushDestroyQueue() {
		raw := uint64(id)
		s.backend.Forget(raw)
		if s.registry.Remove(world.MassID(raw)) != nil {
			out.Masses = append(out.Masses, world.MassID(raw))
			continue
		}
		if s.tracker.Remove(raw) {
			s.Record(Event{Kind: EventProjectileLost, A: raw})
		}
		out.Projectiles = append(out.Projectiles, raw)
	}
	return out
}

// Step runs one full frame: gravity, collisions and despawn.
func (s *Sim) Step(frameDt time.Duration) (Report, Despawned, error) {
	s.Integrate(frameDt)
	rep, err := s.Collide()
	gone := s.Flush()
	return rep, gone, err
}

// IsFatal reports whether a Collide error means the simulation is broken.
func IsFatal(err error) bool {
	return errors.Is(err, projectile.ErrLaunchMassGone)
}
