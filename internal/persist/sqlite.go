package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStatsRepo writes tick stats to an embedded SQLite file.
type SQLiteStatsRepo struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStatsRepo, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if err := migrate(ctx, db, "sqlite3", "migrations/sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStatsRepo{db: db}, nil
}

// DB exposes the handle for read-side tooling and tests.
func (r *SQLiteStatsRepo) DB() *sql.DB { return r.db }

func (r *SQLiteStatsRepo) RecordTicks(ctx context.Context, runID string, stats []TickStat) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tick stats begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tick_stats (run_id, tick, mode, tracked, indexed, dropped, moved, stale, max_count, update_us, digest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("tick stats prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range stats {
		if _, err := stmt.ExecContext(ctx,
			runID, int64(s.Tick), s.Mode, s.Tracked, s.Indexed, s.Dropped,
			s.Moved, s.Stale, s.MaxCount, s.UpdateUS, s.Digest,
		); err != nil {
			return fmt.Errorf("tick stats insert: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteStatsRepo) Close() error {
	return r.db.Close()
}
