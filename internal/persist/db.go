package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/l1jgo/gridsim/internal/config"
	"go.uber.org/zap"
)

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

func NewDB(ctx context.Context, cfg config.RecorderConfig, log *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

var tickStatColumns = []string{
	"run_id", "tick", "mode", "tracked", "indexed", "dropped",
	"moved", "stale", "max_count", "update_us", "digest",
}

// PGStatsRepo writes tick stats to PostgreSQL with COPY.
type PGStatsRepo struct {
	db *DB
}

func NewPGStatsRepo(db *DB) *PGStatsRepo {
	return &PGStatsRepo{db: db}
}

func (r *PGStatsRepo) RecordTicks(ctx context.Context, runID string, stats []TickStat) error {
	if len(stats) == 0 {
		return nil
	}
	n, err := r.db.Pool.CopyFrom(ctx,
		pgx.Identifier{"tick_stats"},
		tickStatColumns,
		pgx.CopyFromSlice(len(stats), func(i int) ([]any, error) {
			s := stats[i]
			return []any{
				runID, int64(s.Tick), s.Mode, s.Tracked, s.Indexed, s.Dropped,
				s.Moved, s.Stale, s.MaxCount, s.UpdateUS, s.Digest,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy tick stats: %w", err)
	}
	if int(n) != len(stats) {
		return fmt.Errorf("copy tick stats: wrote %d of %d rows", n, len(stats))
	}
	return nil
}

func (r *PGStatsRepo) Close() error {
	r.db.Close()
	return nil
}
