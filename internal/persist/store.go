package persist

import (
	"context"
	"fmt"

	"github.com/l1jgo/gridsim/internal/config"
	"go.uber.org/zap"
)

// TickStat is one tick's grid summary as written to the stats store.
type TickStat struct {
	Tick     uint64
	Mode     string
	Tracked  int
	Indexed  int
	Dropped  int
	Moved    int
	Stale    int
	MaxCount int
	UpdateUS int64 // time spent in the grid update pass, microseconds
	Digest   string
}

// Store receives batches of tick stats. runID separates the rows of one process run.
type Store interface {
	RecordTicks(ctx context.Context, runID string, stats []TickStat) error
	Close() error
}

// Open connects the store named by cfg.Driver and applies its migrations.
// An empty driver returns a nil Store and no error.
func Open(ctx context.Context, cfg config.RecorderConfig, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "postgres":
		db, err := NewDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return NewPGStatsRepo(db), nil
	case "sqlite":
		repo, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown recorder driver %q", cfg.Driver)
	}
}
