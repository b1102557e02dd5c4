package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"github.com/l1jgo/gridsim/internal/grid"
	"github.com/l1jgo/gridsim/internal/persist"
	"go.uber.org/zap"
)

// PersistenceSystem batches per-tick grid stats and writes them to the stats store
// every interval ticks, and flushes the frame log on the same cadence. Store failures
// are logged and the batch is dropped; the simulation keeps running.
// Phase 4 (Persist).
type PersistenceSystem struct {
	store    persist.Store     // nil = stats not recorded
	frames   *persist.FrameLog // nil = no frame log
	runID    string
	log      *zap.Logger
	interval int // flush every N ticks
	timeout  time.Duration

	tickCount int
	pending   []persist.TickStat
	written   int
	failures  int
}

func NewPersistenceSystem(store persist.Store, frames *persist.FrameLog, runID string, log *zap.Logger, intervalTicks int, timeout time.Duration) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		store:    store,
		frames:   frames,
		runID:    runID,
		log:      log,
		interval: intervalTicks,
		timeout:  timeout,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Record is an OccupancySystem sink.
func (s *PersistenceSystem) Record(f grid.Frame) {
	if s.store != nil {
		s.pending = append(s.pending, persist.TickStat{
			Tick:     f.Tick,
			Mode:     f.Mode,
			Tracked:  f.Tracked,
			Indexed:  f.Indexed,
			Dropped:  f.Dropped,
			Moved:    f.Moved,
			Stale:    f.Stale,
			MaxCount: f.MaxCount,
			UpdateUS: f.UpdateUS,
			Digest:   f.Digest,
		})
	}
	if s.frames != nil {
		if err := s.frames.Write(f); err != nil {
			s.failures++
			s.log.Error("frame log write", zap.Uint64("tick", f.Tick), zap.Error(err))
		}
	}
}

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0

	ctx, cancel := s.flushContext()
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.log.Error("persist flush", zap.Error(err))
	}
}

// Flush writes every pending stat and flushes the frame log. Called by Update on
// the interval and once more on shutdown.
func (s *PersistenceSystem) Flush(ctx context.Context) error {
	var errs []error
	if s.frames != nil {
		if err := s.frames.Flush(); err != nil {
			s.failures++
			errs = append(errs, fmt.Errorf("frame log: %w", err))
		}
	}
	if s.store != nil && len(s.pending) > 0 {
		n := len(s.pending)
		err := s.store.RecordTicks(ctx, s.runID, s.pending)
		s.pending = s.pending[:0]
		if err != nil {
			s.failures++
			s.log.Warn("tick stats dropped", zap.Int("count", n))
			errs = append(errs, fmt.Errorf("record ticks: %w", err))
		} else {
			s.written += n
		}
	}
	return errors.Join(errs...)
}

// Pending is the number of stats waiting for the next flush.
func (s *PersistenceSystem) Pending() int { return len(s.pending) }

// Written is the number of stats the store accepted.
func (s *PersistenceSystem) Written() int { return s.written }

// Failures counts failed store or frame log writes.
func (s *PersistenceSystem) Failures() int { return s.failures }

func (s *PersistenceSystem) flushContext() (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.timeout)
}
