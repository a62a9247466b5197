package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	RunStatusOK    = "ok"
	RunStatusError = "error"
)

// Execer is the subset of *DB the run log needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ExtractionRun is one executed extraction. Cache hits and joined in-flight
// requests never produce a run.
type ExtractionRun struct {
	ID           uuid.UUID `db:"id"`
	Kind         string    `db:"kind"`
	CacheKey     string    `db:"cache_key"`
	URL          string    `db:"url"`
	Status       string    `db:"status"`
	ProductCount int       `db:"product_count"`
	Fallback     bool      `db:"fallback"`
	ErrorMessage *string   `db:"error_message"`
	DurationMS   int64     `db:"duration_ms"`
	StartedAt    time.Time `db:"started_at"`
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS extraction_runs (
		id            UUID PRIMARY KEY,
		kind          TEXT NOT NULL,
		cache_key     TEXT NOT NULL,
		url           TEXT NOT NULL,
		status        TEXT NOT NULL,
		product_count INTEGER NOT NULL DEFAULT 0,
		fallback      BOOLEAN NOT NULL DEFAULT FALSE,
		error_message TEXT,
		duration_ms   BIGINT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL
	)`

// RunRepository appends extraction runs to the extraction_runs table.
type RunRepository struct {
	db Execer
}

func NewRunRepository(db Execer) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createRunsTable); err != nil {
		return fmt.Errorf("failed to create extraction_runs: %w", err)
	}
	return nil
}

// Record inserts run, assigning an ID when it has none.
func (r *RunRepository) Record(ctx context.Context, run *ExtractionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = RunStatusOK
	}

	query := `
		INSERT INTO extraction_runs (
			id, kind, cache_key, url, status,
			product_count, fallback, error_message, duration_ms, started_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.db.Exec(ctx, query,
		run.ID, run.Kind, run.CacheKey, run.URL, run.Status,
		run.ProductCount, run.Fallback, run.ErrorMessage, run.DurationMS, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert extraction run: %w", err)
	}
	return nil
}
