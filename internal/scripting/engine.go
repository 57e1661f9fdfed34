package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM that hosts scripted system generators.
// Single-goroutine access only (world init happens before the game loop).
type Engine struct {
	vm      *lua.LState
	log     *zap.Logger
	systems map[string]*lua.LFunction
}

// NewEngine creates a Lua engine and loads every script in scriptsDir.
// Scripts call register_system(name, fn) to publish a generator.
// A missing directory yields an engine with no systems.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, systems: make(map[string]*lua.LFunction)}
	vm.SetGlobal("register_system", vm.NewFunction(e.luaRegisterSystem))

	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load system scripts: %w", err)
	}
	return e, nil
}

// LoadString runs a chunk of Lua source, mainly for tests and tooling.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

func (e *Engine) Close() {
	e.vm.Close()
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func (e *Engine) luaRegisterSystem(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	if _, dup := e.systems[name]; dup {
		L.RaiseError("system %q registered twice", name)
		return 0
	}
	e.systems[name] = fn
	return 0
}

// HasSystem reports whether a script registered the named generator.
func (e *Engine) HasSystem(name string) bool {
	_, ok := e.systems[name]
	return ok
}

// Systems lists registered generator names, sorted.
func (e *Engine) Systems() []string {
	out := make([]string, 0, len(e.systems))
	for name := range e.systems {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// MassSpec is one body as described by a script. Either Mass or Radius is
// set; Radius wins when both are.
type MassSpec struct {
	ID          uint64
	Inhabitable bool
	Position    [3]float64
	Velocity    [3]float64
	Color       [4]float32
	Mass        float64
	Radius      float64
}

// GenerateSystem calls the named generator with {seed=, g=} and converts the
// returned array of body tables.
func (e *Engine) GenerateSystem(name string, seed int64, g float64) ([]MassSpec, error) {
	fn, ok := e.systems[name]
	if !ok {
		return nil, fmt.Errorf("lua system %q not registered", name)
	}

	params := e.vm.NewTable()
	params.RawSetString("seed", lua.LNumber(seed))
	params.RawSetString("g", lua.LNumber(g))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, params); err != nil {
		return nil, fmt.Errorf("lua system %q: %w", name, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("lua system %q returned %s, want table", name, result.Type())
	}

	specs := make([]MassSpec, 0, rt.Len())
	for i := 1; i <= rt.Len(); i++ {
		bt, ok := rt.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("lua system %q: entry %d is not a table", name, i)
		}
		spec := MassSpec{
			ID:          uint64(lua.LVAsNumber(bt.RawGetString("id"))),
			Inhabitable: lua.LVAsBool(bt.RawGetString("inhabitable")),
			Mass:        float64(lua.LVAsNumber(bt.RawGetString("mass"))),
			Radius:      float64(lua.LVAsNumber(bt.RawGetString("radius"))),
			Color:       [4]float32{1, 1, 1, 1},
		}
		readVec(bt.RawGetString("position"), spec.Position[:])
		readVec(bt.RawGetString("velocity"), spec.Velocity[:])
		if ct, ok := bt.RawGetString("color").(*lua.LTable); ok {
			for k := 0; k < 4; k++ {
				if v, ok := ct.RawGetInt(k + 1).(lua.LNumber); ok {
					spec.Color[k] = float32(v)
				}
			}
		}
		if spec.ID == 0 {
			spec.ID = uint64(i)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// readVec fills dst from either {x,y,z} or {x=,y=,z=}.
func readVec(v lua.LValue, dst []float64) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return
	}
	keys := []string{"x", "y", "z"}
	for i := range dst {
		if n, ok := t.RawGetInt(i + 1).(lua.LNumber); ok {
			dst[i] = float64(n)
			continue
		}
		dst[i] = float64(lua.LVAsNumber(t.RawGetString(keys[i])))
	}
}
