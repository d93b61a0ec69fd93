package items

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(context.Background(), `DROP TABLE IF EXISTS items`); err != nil {
		t.Fatalf("drop items: %v", err)
	}
	if _, err := pool.Exec(context.Background(), `
		CREATE TABLE items (
			id BIGINT PRIMARY KEY, type TEXT, by TEXT, time BIGINT, text TEXT,
			url TEXT, title TEXT, score INTEGER, descendants INTEGER, parent BIGINT,
			kids TEXT, deleted BOOLEAN NOT NULL DEFAULT FALSE, dead BOOLEAN NOT NULL DEFAULT FALSE
		)`); err != nil {
		t.Fatalf("create items: %v", err)
	}

	return New(pool)
}

func strPtr(s string) *string { return &s }

func TestUpsertBatchIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []Item{
		{ID: 1, Type: strPtr("story"), Title: strPtr("Ask HN"), Kids: []int64{2, 3}},
		{ID: 2, Type: strPtr("comment"), Parent: int64Ptr(1)},
	}

	if err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if first != 2 {
		t.Fatalf("expected 2 rows after first upsert, got %d", first)
	}

	// Replay: same rows, same IDs. Must be a no-op at the row level.
	if err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	second, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if second != first {
		t.Fatalf("expected row count unchanged on replay: got %d then %d", first, second)
	}
}

func TestUpsertEmptyBatchIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
}

func int64Ptr(v int64) *int64 { return &v }
