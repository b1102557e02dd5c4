package system

import (
	"time"

	"github.com/l1jgo/gridsim/internal/core/ecs"
	"github.com/l1jgo/gridsim/internal/core/event"
	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"github.com/l1jgo/gridsim/internal/grid"
	"go.uber.org/zap"
)

// GridStats summarises one tick's grid update pass.
type GridStats struct {
	Tick    uint64
	Mode    grid.Mode
	Tracked int // entities with a position
	Indexed int // entities sitting in a bucket
	Dropped int // tracked but outside the grid
	Moved   int // bucket writes: every indexed entity on rebuild, changed cells on incremental
	Stale   int
	Resync  bool // stale memberships forced a full re-placement this tick
	Elapsed time.Duration
}

// SpatialSystem brings the grid up to date with this tick's positions, using either
// the rebuild or the incremental strategy. It runs after every position write of the
// tick, so readers in later phases see a consistent grid.
// Phase 2 (PostUpdate).
type SpatialSystem struct {
	grid    *grid.Grid
	tracker *grid.Tracker // incremental mode only
	stores  *Stores
	bus     *event.Bus // may be nil
	log     *zap.Logger

	tick    uint64
	ids     []ecs.EntityID
	entries []grid.Entry
	last    GridStats
}

// NewSpatialSystem builds the system for mode. tracker must be non-nil for
// grid.ModeIncremental and is ignored otherwise.
func NewSpatialSystem(g *grid.Grid, mode grid.Mode, tracker *grid.Tracker, stores *Stores, bus *event.Bus, log *zap.Logger) *SpatialSystem {
	s := &SpatialSystem{
		grid:   g,
		stores: stores,
		bus:    bus,
		log:    log,
	}
	if mode == grid.ModeIncremental {
		s.tracker = tracker
	}
	return s
}

func (s *SpatialSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

// Mode reports the strategy in use.
func (s *SpatialSystem) Mode() grid.Mode {
	if s.tracker != nil {
		return grid.ModeIncremental
	}
	return grid.ModeRebuild
}

func (s *SpatialSystem) Update(_ time.Duration) {
	s.tick++
	start := time.Now()
	st := GridStats{Tick: s.tick, Mode: s.Mode()}

	s.ids = s.stores.Positions.SortedIDs(s.ids)
	st.Tracked = len(s.ids)
	if s.tracker != nil {
		s.incremental(&st)
	} else {
		s.rebuild(&st)
	}
	st.Indexed = s.grid.Len()
	st.Dropped = st.Tracked - st.Indexed
	if st.Dropped < 0 {
		st.Dropped = 0
	}
	st.Elapsed = time.Since(start)
	s.last = st
}

// LastStats returns the stats of the most recent Update.
func (s *SpatialSystem) LastStats() GridStats { return s.last }

func (s *SpatialSystem) rebuild(st *GridStats) {
	s.entries = s.entries[:0]
	for _, id := range s.ids {
		p, _ := s.stores.Positions.Get(id)
		s.entries = append(s.entries, grid.Entry{ID: id, X: p.X, Y: p.Y})
	}
	indexed, err := grid.Rebuild(s.grid, s.entries)
	if err != nil {
		s.log.Error("grid rebuild rejected entries", zap.Uint64("tick", s.tick), zap.Error(err))
	}
	st.Moved = indexed
}

func (s *SpatialSystem) incremental(st *GridStats) {
	s.place(st, true)
	if st.Stale == 0 {
		return
	}
	// a stale membership means the buckets were changed behind the tracker's back
	s.log.Warn("grid out of step with memberships, resyncing",
		zap.Uint64("tick", s.tick),
		zap.Int("stale", st.Stale))
	s.Resync()
	st.Moved = 0
	st.Resync = true
	s.place(st, false)
}

func (s *SpatialSystem) place(st *GridStats, events bool) {
	for _, id := range s.ids {
		p, _ := s.stores.Positions.Get(id)
		mv := s.tracker.Update(id, p.X, p.Y)
		if mv.Stale {
			st.Stale++
			from, _ := mv.From.Cell()
			emit(s.bus, event.StaleMembership{Tick: s.tick, ID: id, Cell: from})
		}
		if !mv.Changed {
			continue
		}
		st.Moved++
		if !events {
			continue
		}
		if mv.To.IsPlaced() {
			emit(s.bus, event.CellChanged{Tick: s.tick, ID: id, From: mv.From, To: mv.To})
		} else if from, ok := mv.From.Cell(); ok {
			emit(s.bus, event.LeftGrid{Tick: s.tick, ID: id, From: from})
		}
	}
}

// Resync empties the grid and, in incremental mode, marks every tracked entity
// unplaced, so the next placement pass puts each one back from its position alone.
func (s *SpatialSystem) Resync() {
	s.grid.Clear()
	if s.tracker != nil {
		s.tracker.Reset()
	}
}

// emit is a no-op without a bus.
func emit[T any](bus *event.Bus, ev T) {
	if bus != nil {
		event.Emit(bus, ev)
	}
}
