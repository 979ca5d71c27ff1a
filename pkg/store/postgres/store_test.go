package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/provider/classifier"
	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/store/postgres"
)

const testDimensions = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if LANGID_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("LANGID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LANGID_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	if _, err := cleanPool.Exec(ctx, "DROP TABLE IF EXISTS detections CASCADE"); err != nil {
		t.Fatalf("drop detections: %v", err)
	}

	store, err := postgres.New(ctx, dsn, testDimensions)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// pgvector may not be installed yet on a fresh database.
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func result(index int, label string, scores ...float32) classifier.Result {
	return classifier.Result{Index: index, Label: label, Probability: scores[index], Scores: scores}
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inputs := []classifier.Result{
		result(1, "english", 0.05, 0.9, 0.03, 0.02),
		result(2, "german", 0.01, 0.1, 0.8, 0.09),
		result(3, "french", 0.0, 0.0, 0.2, 0.8),
	}
	for _, r := range inputs {
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s): %v", r.Label, err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d rows, want 2", len(got))
	}
	if got[0].Label != "french" || got[1].Label != "german" {
		t.Errorf("order = %s, %s; want french, german", got[0].Label, got[1].Label)
	}
	if got[0].Index != 3 || got[0].Probability != 0.8 {
		t.Errorf("row = %+v", got[0])
	}
	if len(got[0].Scores) != testDimensions {
		t.Errorf("scores length = %d, want %d", len(got[0].Scores), testDimensions)
	}
}

func TestRecord_WrongDimensions(t *testing.T) {
	store := newTestStore(t)
	if err := store.Record(context.Background(), result(0, "noise", 1, 0)); err == nil {
		t.Fatal("expected error for a short score vector")
	}
}

func TestSimilar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, r := range []classifier.Result{
		result(1, "english", 0.05, 0.9, 0.03, 0.02),
		result(2, "german", 0.01, 0.1, 0.8, 0.09),
	} {
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Similar(ctx, []float32{0, 0.2, 0.7, 0.1}, 1)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 1 || got[0].Label != "german" {
		t.Errorf("Similar = %+v, want german", got)
	}
}

func TestHealthy(t *testing.T) {
	store := newTestStore(t)
	if err := store.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy: %v", err)
	}
}
