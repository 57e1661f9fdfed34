package world

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/physics"
	"github.com/orbitsim/server/internal/scripting"
	"gopkg.in/yaml.v3"
)

// GenParams feeds a system generator.
type GenParams struct {
	Seed int64
	G    float64
}

// Generator builds a starting world.
type Generator func(p GenParams) (InitData, error)

var builtinSystems = map[string]Generator{
	"two-body": twoBody,
	"ring":     ring,
}

// BuiltinSystems lists the compiled-in generator names, sorted.
func BuiltinSystems() []string {
	out := make([]string, 0, len(builtinSystems))
	for name := range builtinSystems {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SystemSource resolves a named system: builtin first, then a recorded
// YAML file <dataDir>/<name>.yaml, then a Lua generator.
type SystemSource struct {
	DataDir string
	Lua     *scripting.Engine // may be nil
}

func (s SystemSource) Load(name string, p GenParams) (InitData, error) {
	if gen, ok := builtinSystems[name]; ok {
		return gen(p)
	}
	if s.DataDir != "" {
		path := filepath.Join(s.DataDir, name+".yaml")
		if _, err := os.Stat(path); err == nil {
			return LoadRecorded(path)
		}
	}
	if s.Lua != nil && s.Lua.HasSystem(name) {
		specs, err := s.Lua.GenerateSystem(name, p.Seed, p.G)
		if err != nil {
			return nil, err
		}
		return fromSpecs(specs)
	}
	return nil, fmt.Errorf("unknown system %q", name)
}

func fromSpecs(specs []scripting.MassSpec) (InitData, error) {
	data := make(InitData, len(specs))
	for _, s := range specs {
		id := MassID(s.ID)
		if _, dup := data[id]; dup {
			return nil, fmt.Errorf("duplicate mass id %d", id)
		}
		m := s.Mass
		if s.Radius > 0 {
			m = physics.RadiusToMass(s.Radius)
		}
		data[id] = InitRecord{
			Inhabitable: s.Inhabitable,
			Position:    mgl64.Vec3(s.Position),
			Velocity:    mgl64.Vec3(s.Velocity),
			Color:       s.Color,
			Mass:        m,
		}
	}
	return data, nil
}

// recordedMass is the YAML shape of one body in a recorded system.
type recordedMass struct {
	ID          uint64     `yaml:"id"`
	Inhabitable bool       `yaml:"inhabitable"`
	Position    [3]float64 `yaml:"position"`
	Velocity    [3]float64 `yaml:"velocity"`
	Color       [4]float32 `yaml:"color"`
	Mass        float64    `yaml:"mass"`
	Radius      float64    `yaml:"radius"`
}

// LoadRecorded loads a recorded system file.
func LoadRecorded(path string) (InitData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read system %s: %w", path, err)
	}
	return ParseRecorded(raw)
}

// ParseRecorded decodes a YAML list of bodies.
func ParseRecorded(raw []byte) (InitData, error) {
	var entries []recordedMass
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse system: %w", err)
	}
	specs := make([]scripting.MassSpec, len(entries))
	for i, e := range entries {
		if e.ID == 0 {
			return nil, fmt.Errorf("entry %d: missing id", i)
		}
		specs[i] = scripting.MassSpec{
			ID:          e.ID,
			Inhabitable: e.Inhabitable,
			Position:    e.Position,
			Velocity:    e.Velocity,
			Color:       e.Color,
			Mass:        e.Mass,
			Radius:      e.Radius,
		}
	}
	return fromSpecs(specs)
}

// twoBody is a heavy rock and a light one on a collision course, watched by
// two distant player bodies.
func twoBody(GenParams) (InitData, error) {
	return InitData{
		1: {Position: mgl64.Vec3{0, 0, 0}, Mass: physics.RadiusToMass(10), Color: [4]float32{0.8, 0.8, 0.8, 1}},
		2: {Position: mgl64.Vec3{40, 0, 0}, Velocity: mgl64.Vec3{-2, 0, 0}, Mass: physics.RadiusToMass(5), Color: [4]float32{0.6, 0.4, 0.2, 1}},
		3: {Inhabitable: true, Position: mgl64.Vec3{0, 200, 0}, Mass: physics.RadiusToMass(2), Color: [4]float32{0.2, 0.6, 1, 1}},
		4: {Inhabitable: true, Position: mgl64.Vec3{0, -200, 0}, Mass: physics.RadiusToMass(2), Color: [4]float32{1, 0.3, 0.3, 1}},
	}, nil
}

// ring places a star at the origin, four player planets on a circular
// orbit and a seeded belt of asteroids.
func ring(p GenParams) (InitData, error) {
	const (
		starRadius   = 20.0
		planetRadius = 3.0
		planetOrbit  = 150.0
		players      = 4
		asteroids    = 24
	)
	rng := rand.New(rand.NewSource(p.Seed))
	starMass := physics.RadiusToMass(starRadius)

	data := InitData{
		1: {Mass: starMass, Color: [4]float32{1, 0.9, 0.4, 1}},
	}
	orbital := func(r float64) float64 {
		if p.G <= 0 {
			return 0
		}
		return math.Sqrt(p.G * starMass / r)
	}

	next := MassID(2)
	for i := 0; i < players; i++ {
		angle := 2 * math.Pi * float64(i) / players
		pos := mgl64.Vec3{math.Cos(angle), 0, math.Sin(angle)}.Mul(planetOrbit)
		vel := mgl64.Vec3{-math.Sin(angle), 0, math.Cos(angle)}.Mul(orbital(planetOrbit))
		data[next] = InitRecord{
			Inhabitable: true,
			Position:    pos,
			Velocity:    vel,
			Mass:        physics.RadiusToMass(planetRadius),
			Color:       [4]float32{float32(rng.Float64()), float32(rng.Float64()), 1, 1},
		}
		next++
	}
	for i := 0; i < asteroids; i++ {
		r := 60 + rng.Float64()*200
		angle := rng.Float64() * 2 * math.Pi
		lift := (rng.Float64() - 0.5) * 10
		pos := mgl64.Vec3{math.Cos(angle) * r, lift, math.Sin(angle) * r}
		vel := mgl64.Vec3{-math.Sin(angle), 0, math.Cos(angle)}.Mul(orbital(r))
		data[next] = InitRecord{
			Position: pos,
			Velocity: vel,
			Mass:     physics.RadiusToMass(0.5 + rng.Float64()*2),
			Color:    [4]float32{0.5, 0.5, 0.5, 1},
		}
		next++
	}
	return data, nil
}
