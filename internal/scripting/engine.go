package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for motion scripts.
// Single-goroutine access only (game loop).
type Engine struct {
	vm     *lua.LState
	log    *zap.Logger
	motion lua.LValue
	ctx    *lua.LTable // reused argument table, scripts must not keep it
	loaded int
}

// NewEngine creates a Lua VM and loads every script under scriptsDir/motion.
// A missing directory is not an error; the engine then has no motion function.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(filepath.Join(scriptsDir, "motion")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load motion scripts: %w", err)
	}
	e.bind()
	return e, nil
}

// NewEngineFromSource is NewEngine for a single in-memory chunk.
func NewEngineFromSource(src string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{vm: vm, log: log}
	if err := vm.DoString(src); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	e.loaded = 1
	e.bind()
	return e, nil
}

func (e *Engine) bind() {
	e.motion = e.vm.GetGlobal("step_motion")
	e.ctx = e.vm.NewTable()
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
		e.loaded++
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Scripts is the number of script files loaded.
func (e *Engine) Scripts() int { return e.loaded }

// HasMotion reports whether a step_motion function is defined.
func (e *Engine) HasMotion() bool {
	return e.motion != nil && e.motion.Type() == lua.LTFunction
}

// MotionContext is the state handed to step_motion for one entity.
type MotionContext struct {
	Group    string
	Tick     uint64
	DT       float64 // seconds
	Extent   float64
	X, Y     float64
	VX, VY   float64
	Boundary string
	// Neighbors counts other live entities in the 3x3 cells around the entity as of
	// the previous tick's grid, -1 when not available.
	Neighbors int
}

// MotionResult is what step_motion returns: the entity's next position and velocity.
type MotionResult struct {
	X, Y   float64
	VX, VY float64
}

// StepMotion calls the Lua step_motion(ctx) function. ctx has the fields of
// MotionContext in snake_case; the function returns a table {x, y, vx, vy}. Missing
// result fields keep their input values.
func (e *Engine) StepMotion(mc MotionContext) (MotionResult, error) {
	keep := MotionResult{X: mc.X, Y: mc.Y, VX: mc.VX, VY: mc.VY}
	if !e.HasMotion() {
		return keep, fmt.Errorf("lua function step_motion not found")
	}

	t := e.ctx
	t.RawSetString("group", lua.LString(mc.Group))
	t.RawSetString("tick", lua.LNumber(mc.Tick))
	t.RawSetString("dt", lua.LNumber(mc.DT))
	t.RawSetString("extent", lua.LNumber(mc.Extent))
	t.RawSetString("x", lua.LNumber(mc.X))
	t.RawSetString("y", lua.LNumber(mc.Y))
	t.RawSetString("vx", lua.LNumber(mc.VX))
	t.RawSetString("vy", lua.LNumber(mc.VY))
	t.RawSetString("boundary", lua.LString(mc.Boundary))
	t.RawSetString("neighbors", lua.LNumber(mc.Neighbors))

	if err := e.vm.CallByParam(lua.P{
		Fn:      e.motion,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return keep, fmt.Errorf("lua step_motion: %w", err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return keep, fmt.Errorf("lua step_motion returned %s, want table", result.Type())
	}
	return MotionResult{
		X:  number(rt, "x", mc.X),
		Y:  number(rt, "y", mc.Y),
		VX: number(rt, "vx", mc.VX),
		VY: number(rt, "vy", mc.VY),
	}, nil
}

func number(t *lua.LTable, key string, def float64) float64 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return def
}

func (e *Engine) Close() {
	e.vm.Close()
}
