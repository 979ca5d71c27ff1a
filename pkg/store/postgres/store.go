package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
)

// Detection is one stored row.
type Detection struct {
	ID          uuid.UUID
	DetectedAt  time.Time
	Index       int
	Label       string
	Probability float32
	Scores      []float32
}

// Store is the detection log. All methods are safe for concurrent use.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// New connects to the database at dsn, registers pgvector types on every
// connection and runs [Migrate]. dimensions is the length of every stored
// score vector.
func New(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool, dimensions: dimensions}, nil
}

// Record appends an accepted result to the log.
func (s *Store) Record(ctx context.Context, r classifier.Result) error {
	if len(r.Scores) != s.dimensions {
		return fmt.Errorf("postgres store: record: %d scores, want %d", len(r.Scores), s.dimensions)
	}

	const q = `
		INSERT INTO detections (id, detected_at, label_index, label, probability, scores)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		uuid.New(),
		time.Now().UTC(),
		r.Index,
		r.Label,
		r.Probability,
		pgvector.NewVector(r.Scores),
	)
	if err != nil {
		return fmt.Errorf("postgres store: record: %w", err)
	}
	return nil
}

// Recent returns up to limit detections, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Detection, error) {
	if limit <= 0 {
		return nil, nil
	}

	const q = `
		SELECT id, detected_at, label_index, label, probability, scores
		FROM detections
		ORDER BY detected_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var (
			d   Detection
			vec pgvector.Vector
		)
		if err := rows.Scan(&d.ID, &d.DetectedAt, &d.Index, &d.Label, &d.Probability, &vec); err != nil {
			return nil, fmt.Errorf("postgres store: recent scan: %w", err)
		}
		d.Scores = vec.Slice()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}
	return out, nil
}

// Similar returns up to limit detections whose score vectors are closest
// (cosine distance) to scores.
func (s *Store) Similar(ctx context.Context, scores []float32, limit int) ([]Detection, error) {
	if len(scores) != s.dimensions {
		return nil, fmt.Errorf("postgres store: similar: %d scores, want %d", len(scores), s.dimensions)
	}
	if limit <= 0 {
		return nil, nil
	}

	const q = `
		SELECT id, detected_at, label_index, label, probability, scores
		FROM detections
		ORDER BY scores <=> $1
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(scores), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: similar: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var (
			d   Detection
			vec pgvector.Vector
		)
		if err := rows.Scan(&d.ID, &d.DetectedAt, &d.Index, &d.Label, &d.Probability, &vec); err != nil {
			return nil, fmt.Errorf("postgres store: similar scan: %w", err)
		}
		d.Scores = vec.Slice()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: similar: %w", err)
	}
	return out, nil
}

// Healthy pings the database.
func (s *Store) Healthy(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
