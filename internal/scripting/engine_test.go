package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const linear = `
function step_motion(ctx)
  return { x = ctx.x + ctx.vx * ctx.dt, y = ctx.y + ctx.vy * ctx.dt }
end
`

func TestStepMotion(t *testing.T) {
	e, err := NewEngineFromSource(linear, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngineFromSource: %v", err)
	}
	defer e.Close()

	if !e.HasMotion() {
		t.Fatalf("HasMotion() = false")
	}
	res, err := e.StepMotion(MotionContext{DT: 0.5, X: 10, Y: 20, VX: 4, VY: -2})
	if err != nil {
		t.Fatalf("StepMotion: %v", err)
	}
	if res.X != 12 || res.Y != 19 {
		t.Errorf("position = (%v, %v), want (12, 19)", res.X, res.Y)
	}
	if res.VX != 4 || res.VY != -2 {
		t.Errorf("velocity not carried over: (%v, %v)", res.VX, res.VY)
	}
}

func TestStepMotion_Errors(t *testing.T) {
	e, err := NewEngineFromSource(`function step_motion(ctx) error("boom") end`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngineFromSource: %v", err)
	}
	defer e.Close()
	res, err := e.StepMotion(MotionContext{X: 1, Y: 2})
	if err == nil {
		t.Fatalf("StepMotion swallowed a script error")
	}
	if res.X != 1 || res.Y != 2 {
		t.Errorf("failed step moved the entity: %+v", res)
	}

	bad, err := NewEngineFromSource(`function step_motion(ctx) return 3 end`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngineFromSource: %v", err)
	}
	defer bad.Close()
	if _, err := bad.StepMotion(MotionContext{}); err == nil {
		t.Errorf("non-table result accepted")
	}

	none, err := NewEngineFromSource(`x = 1`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngineFromSource: %v", err)
	}
	defer none.Close()
	if none.HasMotion() {
		t.Errorf("HasMotion() = true without step_motion")
	}
}

func TestNewEngine_LoadsMotionDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "motion"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "motion", "linear.lua"), []byte(linear), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	if e.Scripts() != 1 || !e.HasMotion() {
		t.Errorf("Scripts()=%d HasMotion()=%v", e.Scripts(), e.HasMotion())
	}

	empty, err := NewEngine(filepath.Join(dir, "missing"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine on a missing dir: %v", err)
	}
	defer empty.Close()
	if empty.HasMotion() {
		t.Errorf("missing dir should leave no motion function")
	}
}

func TestShippedDriftScript(t *testing.T) {
	dir := filepath.Join("..", "..", "scripts")
	if _, err := os.Stat(filepath.Join(dir, "motion", "drift.lua")); err != nil {
		t.Skipf("drift.lua not present: %v", err)
	}
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	res, err := e.StepMotion(MotionContext{Group: "drifters", DT: 1, X: 5, Y: 5, VX: 1, VY: 1})
	if err != nil {
		t.Fatalf("StepMotion: %v", err)
	}
	if res.X != 6 || res.Y != 6 {
		t.Errorf("drifters step = (%v, %v), want (6, 6)", res.X, res.Y)
	}
}
