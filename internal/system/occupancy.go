package system

import (
	"strconv"
	"strings"
	"time"

	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"github.com/l1jgo/gridsim/internal/grid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FrameSink receives each tick's finished frame. Sinks run on the loop goroutine
// and must not block.
type FrameSink func(grid.Frame)

// OccupancySystem snapshots the grid once the tick's update pass is done, hands the
// frame to its sinks and periodically logs a summary.
// Phase 3 (Output).
type OccupancySystem struct {
	grid    *grid.Grid
	spatial *SpatialSystem
	log     *zap.Logger
	every   int // ticks between summaries, 0 = never
	sinks   []FrameSink

	last grid.Frame
}

func NewOccupancySystem(g *grid.Grid, spatial *SpatialSystem, reportInterval int, log *zap.Logger) *OccupancySystem {
	return &OccupancySystem{
		grid:    g,
		spatial: spatial,
		log:     log,
		every:   reportInterval,
	}
}

// AddSink registers fn for every frame from the next tick on.
func (s *OccupancySystem) AddSink(fn FrameSink) {
	s.sinks = append(s.sinks, fn)
}

func (s *OccupancySystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OccupancySystem) Update(_ time.Duration) {
	st := s.spatial.LastStats()
	f := grid.Snapshot(s.grid)
	f.Tick = st.Tick
	f.Mode = st.Mode.String()
	f.Tracked = st.Tracked
	f.Dropped = st.Dropped
	f.Moved = st.Moved
	f.Stale = st.Stale
	f.UpdateUS = st.Elapsed.Microseconds()
	s.last = f

	for _, sink := range s.sinks {
		sink(f)
	}

	if s.every > 0 && f.Tick%uint64(s.every) == 0 {
		s.report(f)
	}
}

// Last is the most recent frame.
func (s *OccupancySystem) Last() grid.Frame { return s.last }

func (s *OccupancySystem) report(f grid.Frame) {
	s.log.Info("grid occupancy",
		zap.Uint64("tick", f.Tick),
		zap.String("mode", f.Mode),
		zap.Int("tracked", f.Tracked),
		zap.Int("indexed", f.Indexed),
		zap.Int("dropped", f.Dropped),
		zap.Int("moved", f.Moved),
		zap.Int("stale", f.Stale),
		zap.Int("max_count", f.MaxCount),
		zap.Int64("update_us", f.UpdateUS),
		zap.String("digest", f.Digest[:12]),
	)
	if ce := s.log.Check(zapcore.DebugLevel, "grid counts"); ce != nil {
		ce.Write(zap.Uint64("tick", f.Tick), zap.Strings("rows", CountRows(f)))
	}
}

// CountRows renders a frame's bucket counts one string per grid row, row 0 first.
func CountRows(f grid.Frame) []string {
	rows := make([]string, 0, f.Rows)
	var b strings.Builder
	for r := 0; r < f.Rows; r++ {
		b.Reset()
		for c := 0; c < f.Columns; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.Itoa(f.Counts[c+r*f.Columns]))
		}
		rows = append(rows, b.String())
	}
	return rows
}
