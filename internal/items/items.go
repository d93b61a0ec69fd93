// Package items owns the Items table: the row shape and the one operation
// that ever touches it, a batched idempotent upsert. Nothing in this package
// deletes or overwrites rows — re-inserting an ID that is already stored is a
// no-op, so the first stored version of an item is the one that stays.
package items

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Item is the stored shape of one Hacker News item. Pointer fields are
// nullable columns; the upstream API omits whatever fields don't apply to
// a given item type, and that omission is carried straight through to NULL.
type Item struct {
	ID          int64
	Type        *string
	By          *string
	Time        *int64
	Text        *string
	URL         *string
	Title       *string
	Score       *int32
	Descendants *int32
	Parent      *int64
	Kids        []int64
	Deleted     bool
	Dead        bool
}

// Store owns the upsert path into the items table. One Store is created per
// worker, sharing that worker's single pooled connection.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The pool is expected to be sized to one
// connection per worker (see runWorker in internal/coordinator), matching the "one persistent
// connection" contract.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertBatch writes every item in one transaction using a single
// multi-row INSERT built from unnest'd arrays — the standard pgx idiom for
// bulk writes, and an order of magnitude cheaper than per-row inserts. Rows
// colliding on the primary key are silently skipped (ON CONFLICT DO NOTHING),
// which is what makes replaying a reclaimed chunk safe: re-inserting rows
// already stored by a crashed worker is a no-op.
//
// An empty batch is a no-op; callers don't need to guard against it.
func (s *Store) UpsertBatch(ctx context.Context, batch []Item) error {
	if len(batch) == 0 {
		return nil
	}

	ids := make([]int64, len(batch))
	types := make([]*string, len(batch))
	bys := make([]*string, len(batch))
	times := make([]*int64, len(batch))
	texts := make([]*string, len(batch))
	urls := make([]*string, len(batch))
	titles := make([]*string, len(batch))
	scores := make([]*int32, len(batch))
	descendants := make([]*int32, len(batch))
	parents := make([]*int64, len(batch))
	kids := make([]*string, len(batch))
	deleted := make([]bool, len(batch))
	dead := make([]bool, len(batch))

	for i, it := range batch {
		ids[i] = it.ID
		types[i] = it.Type
		bys[i] = it.By
		times[i] = it.Time
		texts[i] = it.Text
		urls[i] = it.URL
		titles[i] = it.Title
		scores[i] = it.Score
		descendants[i] = it.Descendants
		parents[i] = it.Parent
		deleted[i] = it.Deleted
		dead[i] = it.Dead
		if len(it.Kids) > 0 {
			encoded, err := json.Marshal(it.Kids)
			if err != nil {
				return fmt.Errorf("items: marshal kids for id %d: %w", it.ID, err)
			}
			s := string(encoded)
			kids[i] = &s
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("items: begin batch flush: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO items (id, type, by, time, text, url, title, score, descendants, parent, kids, deleted, dead)
		SELECT * FROM unnest(
			$1::bigint[], $2::text[], $3::text[], $4::bigint[], $5::text[], $6::text[],
			$7::text[], $8::int[], $9::int[], $10::bigint[], $11::text[], $12::bool[], $13::bool[]
		)
		ON CONFLICT (id) DO NOTHING`,
		ids, types, bys, times, texts, urls, titles, scores, descendants, parents, kids, deleted, dead,
	)
	if err != nil {
		return fmt.Errorf("items: batch flush of %d rows: %w", len(batch), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("items: commit batch flush: %w", err)
	}
	return nil
}

// Count returns the number of rows currently stored. Used by tests; the
// monitor's progress display reads chunk counts from queue.Progress instead.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM items`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("items: count: %w", err)
	}
	return n, nil
}
