// Package postgres is a PostgreSQL-backed log of accepted detections.
//
// Each row keeps the winning label together with the full score vector,
// stored as a pgvector column so that past recordings can be compared by
// distance. The pgvector extension must be available in the target database;
// [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn, len(labels))
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, result)
//	recent, _ := store.Recent(ctx, 20)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlDetections returns the DDL with the score dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlDetections(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS detections (
    id           UUID         PRIMARY KEY,
    detected_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    label_index  INTEGER      NOT NULL,
    label        TEXT         NOT NULL,
    probability  REAL         NOT NULL,
    scores       vector(%d)   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_detections_detected_at
    ON detections (detected_at DESC);

CREATE INDEX IF NOT EXISTS idx_detections_label
    ON detections (label);
`, dimensions)
}

// Migrate creates the detections table if it does not exist. It is idempotent
// and safe to call on every start.
//
// dimensions must equal the number of configured labels. Changing the label
// count after the first migration requires a manual schema change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("postgres migrate: dimensions must be positive, got %d", dimensions)
	}
	if _, err := pool.Exec(ctx, ddlDetections(dimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
