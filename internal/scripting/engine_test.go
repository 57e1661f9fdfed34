package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const binaryScript = `
register_system("pair", function(p)
  local r = 10 + p.seed
  return {
    { id = 5, inhabitable = true, position = {r, 0, 0}, velocity = {x = 0, y = 1, z = 0}, radius = 2 },
    { id = 9, position = {-r, 0, 0}, mass = 400, color = {1, 0.5, 0, 1} },
  }
end)
`

func TestGenerateSystemFromScriptDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pair.lua"), []byte(binaryScript), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if !e.HasSystem("pair") {
		t.Fatalf("systems = %v", e.Systems())
	}
	specs, err := e.GenerateSystem("pair", 2, 0.1)
	if err != nil {
		t.Fatalf("GenerateSystem: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	a, b := specs[0], specs[1]
	if a.ID != 5 || !a.Inhabitable || a.Position != [3]float64{12, 0, 0} || a.Velocity != [3]float64{0, 1, 0} || a.Radius != 2 {
		t.Errorf("first spec = %+v", a)
	}
	if b.ID != 9 || b.Inhabitable || b.Mass != 400 || b.Color != [4]float32{1, 0.5, 0, 1} {
		t.Errorf("second spec = %+v", b)
	}
}

func TestMissingScriptDirIsEmpty(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if len(e.Systems()) != 0 {
		t.Fatalf("systems = %v", e.Systems())
	}
	if _, err := e.GenerateSystem("pair", 0, 0); err == nil {
		t.Fatal("expected unknown system error")
	}
}

func TestGenerateSystemRejectsBadReturn(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if err := e.LoadString(`register_system("bad", function() return 3 end)`); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GenerateSystem("bad", 0, 0); err == nil {
		t.Fatal("expected error for non-table return")
	}
}
