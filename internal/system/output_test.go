package system

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/l1jgo/gridsim/internal/component"
	"github.com/l1jgo/gridsim/internal/core/ecs"
	"github.com/l1jgo/gridsim/internal/grid"
	"github.com/l1jgo/gridsim/internal/persist"
	"github.com/l1jgo/gridsim/internal/scripting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	batches [][]persist.TickStat
	runIDs  []string
	err     error
}

func (f *fakeStore) RecordTicks(_ context.Context, runID string, stats []persist.TickStat) error {
	if f.err != nil {
		return f.err
	}
	f.runIDs = append(f.runIDs, runID)
	f.batches = append(f.batches, append([]persist.TickStat(nil), stats...))
	return nil
}

func (f *fakeStore) Close() error { return nil }

func TestPersistence_FlushesOnInterval(t *testing.T) {
	s := newTestSim(t, grid.ModeIncremental, testScenario)
	store := &fakeStore{}
	p := NewPersistenceSystem(store, nil, "run-1", zap.NewNop(), 4, time.Second)
	s.occ.AddSink(p.Record)
	s.runner.Register(p)

	s.run(10)
	if len(store.batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(store.batches))
	}
	if p.Pending() != 2 || p.Written() != 8 {
		t.Errorf("pending = %d, written = %d, want 2, 8", p.Pending(), p.Written())
	}
	for i, st := range store.batches[1] {
		if st.Tick != uint64(5+i) {
			t.Errorf("batch 1 [%d] tick = %d", i, st.Tick)
		}
		if st.Mode != "incremental" || len(st.Digest) != 64 {
			t.Errorf("stat = %+v", st)
		}
	}
	if store.runIDs[0] != "run-1" {
		t.Errorf("run id = %q", store.runIDs[0])
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if p.Pending() != 0 || p.Written() != 10 {
		t.Errorf("after Flush pending = %d, written = %d", p.Pending(), p.Written())
	}
}

func TestPersistence_StoreFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &fakeStore{err: errors.New("db down")}
	p := NewPersistenceSystem(store, nil, "run-2", zap.New(core), 1, 0)

	p.Record(grid.Frame{Tick: 1, Digest: "x"})
	p.Update(0)

	if p.Failures() != 1 || p.Pending() != 0 {
		t.Errorf("failures = %d, pending = %d, want 1, 0", p.Failures(), p.Pending())
	}
	if logs.FilterMessage("tick stats dropped").Len() != 1 {
		t.Errorf("missing drop warning, got %v", logs.All())
	}
	if logs.FilterMessage("persist flush").Len() != 1 {
		t.Errorf("missing flush error log")
	}
}

func TestPersistence_WritesFrameLog(t *testing.T) {
	dir := t.TempDir()
	fl := persist.NewFrameLog(dir, "frames")
	p := NewPersistenceSystem(nil, fl, "run-3", zap.NewNop(), 1, 0)

	s := newTestSim(t, grid.ModeRebuild, testScenario)
	s.occ.AddSink(p.Record)
	s.runner.Register(p)
	s.run(3)
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "frames-*.jsonl.zst"))
	if len(files) != 1 {
		t.Fatalf("frame files = %v", files)
	}
	frames, err := persist.ReadFrames(files[0])
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 3 || frames[2].Digest != s.frames[2].Digest {
		t.Errorf("read %d frames", len(frames))
	}
}

func TestOccupancy_FrameCarriesStats(t *testing.T) {
	s := newTestSim(t, grid.ModeRebuild, testScenario)
	s.run(2)
	f := s.occ.Last()
	st := s.spatial.LastStats()
	if f.Tick != 2 || f.Tracked != st.Tracked || f.Indexed != st.Indexed || f.Moved != st.Moved {
		t.Errorf("frame %+v does not match stats %+v", f, st)
	}
	if len(f.Counts) != 100 || len(f.Opacity) != 100 {
		t.Fatalf("counts = %d, opacity = %d, want 100", len(f.Counts), len(f.Opacity))
	}
	sum := 0
	for i, c := range f.Counts {
		sum += c
		if f.Opacity[i] != grid.Opacity(c) {
			t.Errorf("opacity[%d] = %v, want %v", i, f.Opacity[i], grid.Opacity(c))
		}
	}
	if sum != f.Indexed {
		t.Errorf("sum of counts = %d, indexed = %d", sum, f.Indexed)
	}
}

func TestOccupancy_ReportLogsCounts(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g, _ := grid.New(20, 10)
	stores := NewStores(ecs.NewWorld())
	spatial := NewSpatialSystem(g, grid.ModeRebuild, nil, stores, nil, zap.NewNop())
	occ := NewOccupancySystem(g, spatial, 1, zap.New(core))

	g.Insert(1, 15, 5)
	spatial.last = GridStats{Tick: 1}
	occ.Update(0)

	if logs.FilterMessage("grid occupancy").Len() != 1 {
		t.Fatalf("no summary logged")
	}
	entries := logs.FilterMessage("grid counts").All()
	if len(entries) != 1 {
		t.Fatalf("counts logged %d times", len(entries))
	}
	rows := CountRows(occ.Last())
	if len(rows) != 2 || rows[0] != "0 1" || rows[1] != "0 0" {
		t.Errorf("CountRows = %q", rows)
	}
}

func TestMotion_Boundaries(t *testing.T) {
	m := &MotionSystem{extent: 100}
	cases := []struct {
		b      component.Boundary
		p, v   component.Position
		wantP  component.Position
		wantVX float64
	}{
		{component.BoundaryWrap, component.Position{X: 103, Y: -2}, component.Position{X: 1, Y: 1}, component.Position{X: 3, Y: 98}, 1},
		{component.BoundaryBounce, component.Position{X: 103, Y: 50}, component.Position{X: 5, Y: 0}, component.Position{X: 97, Y: 50}, -5},
		{component.BoundaryBounce, component.Position{X: -4, Y: 50}, component.Position{X: -5, Y: 0}, component.Position{X: 4, Y: 50}, 5},
		{component.BoundaryFree, component.Position{X: 130, Y: -20}, component.Position{X: 5, Y: 0}, component.Position{X: 130, Y: -20}, 5},
	}
	for _, tc := range cases {
		p := tc.p
		v := component.Velocity{X: tc.v.X, Y: tc.v.Y}
		m.confine(tc.b, &p, &v)
		if math.Abs(p.X-tc.wantP.X) > 1e-9 || math.Abs(p.Y-tc.wantP.Y) > 1e-9 || v.X != tc.wantVX {
			t.Errorf("%s %+v: got %+v v=%+v, want %+v vx=%v", tc.b, tc.p, p, v, tc.wantP, tc.wantVX)
		}
	}
}

func TestWrap(t *testing.T) {
	for _, tc := range []struct{ in, want float64 }{
		{0, 0}, {99.5, 99.5}, {100, 0}, {250, 50}, {-1, 99}, {-1e-18, 0},
	} {
		if got := wrap(tc.in, 100); got != tc.want {
			t.Errorf("wrap(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMotion_LuaStep(t *testing.T) {
	eng, err := scripting.NewEngineFromSource(`
function step_motion(ctx)
  if ctx.group == "broken" then error("boom") end
  return { x = ctx.x + 1, vy = 7 }
end`, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngineFromSource: %v", err)
	}
	defer eng.Close()

	sc := mustScenario(t, `
groups:
  - {name: ok, count: 1, boundary: free}
  - {name: broken, count: 1, boundary: free}
`)
	w := ecs.NewWorld()
	stores := NewStores(w)
	m := NewMotionSystem(w, stores, sc, 100, eng, zap.NewNop())

	good, bad := w.CreateEntity(), w.CreateEntity()
	for i, id := range []ecs.EntityID{good, bad} {
		stores.Positions.Set(id, &component.Position{X: 10, Y: 10})
		stores.Velocities.Set(id, &component.Velocity{X: 20, Y: 0})
		stores.Motions.Set(id, &component.Motion{Group: i, Boundary: component.BoundaryFree})
	}
	m.Update(100 * time.Millisecond)

	if p, _ := stores.Positions.Get(good); p.X != 11 || p.Y != 10 {
		t.Errorf("scripted position = %+v, want (11, 10)", *p)
	}
	if v, _ := stores.Velocities.Get(good); v.Y != 7 || v.X != 20 {
		t.Errorf("scripted velocity = %+v", *v)
	}
	// failing script falls back to plain integration
	if p, _ := stores.Positions.Get(bad); math.Abs(p.X-12) > 1e-9 {
		t.Errorf("fallback position = %+v, want x=12", *p)
	}
	if m.ScriptErrors() != 1 {
		t.Errorf("script errors = %d, want 1", m.ScriptErrors())
	}
}

func TestMotion_TTLMarksDestruction(t *testing.T) {
	w := ecs.NewWorld()
	stores := NewStores(w)
	sc := mustScenario(t, "groups: [{name: a, count: 1}]")
	m := NewMotionSystem(w, stores, sc, 100, nil, zap.NewNop())

	id := w.CreateEntity()
	stores.Positions.Set(id, &component.Position{X: 1, Y: 1})
	stores.Velocities.Set(id, &component.Velocity{})
	stores.Motions.Set(id, &component.Motion{TTL: 2})

	m.Update(0)
	if w.Pending() != 0 {
		t.Fatalf("destroyed after one tick")
	}
	m.Update(0)
	if w.Pending() != 1 || m.Expired() != 1 {
		t.Fatalf("pending = %d, expired = %d, want 1, 1", w.Pending(), m.Expired())
	}
	w.FlushDestroyQueue()
	if stores.Positions.Has(id) || w.Alive(id) {
		t.Errorf("entity survived its lifetime")
	}
}

func TestMotion_NeighborsSkipsSelfAndDead(t *testing.T) {
	w := ecs.NewWorld()
	stores := NewStores(w)
	g, _ := grid.New(100, 10)
	sc := mustScenario(t, "groups: [{name: a, count: 1}]")
	m := NewMotionSystem(w, stores, sc, 100, nil, zap.NewNop())
	if n := m.neighbors(1, &component.Position{X: 5, Y: 5}); n != -1 {
		t.Fatalf("without grid = %d, want -1", n)
	}
	m.UseGrid(g)

	self, near, dead, far := w.CreateEntity(), w.CreateEntity(), w.CreateEntity(), w.CreateEntity()
	g.Insert(self, 15, 15)
	g.Insert(near, 25, 25)
	g.Insert(dead, 5, 5)
	g.Insert(far, 45, 45)
	w.MarkForDestruction(dead)
	w.FlushDestroyQueue()

	if n := m.neighbors(self, &component.Position{X: 15, Y: 15}); n != 1 {
		t.Errorf("neighbors = %d, want 1", n)
	}
	if n := m.neighbors(self, &component.Position{X: -5, Y: 15}); n != 0 {
		t.Errorf("outside grid = %d, want 0", n)
	}
}
