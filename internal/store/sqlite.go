// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

// DefaultRunLimit caps Runs when no limit is given.
const DefaultRunLimit = 20

// SQLiteStore implements RunLog using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS refresh_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		basket_key TEXT NOT NULL,
		symbols INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_refresh_runs_started ON refresh_runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_refresh_runs_basket ON refresh_runs(basket_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRun appends a pass to the run log and sets run.ID.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *models.RefreshRun) error {
	if run == nil {
		return apperrors.NewValidationError("run", nil, "run is nil")
	}
	cached := 0
	if run.Cached {
		cached = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (started_at, finished_at, basket_key, symbols, succeeded, failed, cached, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.BasketKey, run.Symbols, run.Succeeded, run.Failed, cached, run.Error)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseError, fmt.Sprintf("failed to record run: %v", err))
	}

	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// Runs lists runs matching filter, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, filter RunFilter) ([]models.RefreshRun, error) {
	query := "SELECT id, started_at, finished_at, basket_key, symbols, succeeded, failed, cached, error FROM refresh_runs WHERE 1=1"
	args := []interface{}{}

	if filter.BasketKey != "" {
		query += " AND basket_key = ?"
		args = append(args, filter.BasketKey)
	}
	if filter.FailedOnly {
		query += " AND (failed > 0 OR error != '')"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RefreshRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run, or nil when none was recorded.
func (s *SQLiteStore) LastRun(ctx context.Context) (*models.RefreshRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, basket_key, symbols, succeeded, failed, cached, error
		FROM refresh_runs ORDER BY started_at DESC, id DESC LIMIT 1
	`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM refresh_runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (models.RefreshRun, error) {
	var r models.RefreshRun
	var cached int
	err := sc.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.BasketKey, &r.Symbols, &r.Succeeded, &r.Failed, &cached, &r.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Cached = cached == 1
	return r, nil
}
