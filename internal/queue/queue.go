// Package queue is the durable job queue: job_chunks rows and the three
// atomic primitives (claim, complete, reclaim) that make concurrent workers
// safe without any coordination mechanism beyond the relational store.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is one of the three states in the chunk lifecycle. The zero value
// is intentionally not a valid Status — every row is created with an
// explicit status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Chunk is one row of job_chunks: a contiguous, inclusive ID range claimed
// and processed as a unit.
type Chunk struct {
	ID        int64
	StartID   int64
	EndID     int64
	Status    Status
	WorkerID  *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Range is a bare [Start, End] pair, the unit Populate consumes. Kept
// separate from Chunk because the coordinator computes ranges before any
// row exists.
type Range struct {
	Start int64
	End   int64
}

// Queue wraps the pool backing job_chunks. Every method except Bootstrap is a
// single statement, and so a single transaction; Bootstrap runs its DROP and
// CREATE statements one after another, each committed on its own. There is
// no in-memory state to keep consistent.
type Queue struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// Bootstrap ensures items and job_chunks exist with the documented schema.
// If reset is true, both tables are dropped first. Safe to call on every
// coordinator startup — CREATE TABLE IF NOT EXISTS makes it idempotent.
func (q *Queue) Bootstrap(ctx context.Context, reset bool) error {
	if reset {
		if _, err := q.pool.Exec(ctx, `DROP TABLE IF EXISTS items, job_chunks`); err != nil {
			return fmt.Errorf("queue: reset: %w", err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id          BIGINT PRIMARY KEY,
			type        TEXT,
			by          TEXT,
			text        TEXT,
			url         TEXT,
			title       TEXT,
			time        BIGINT,
			parent      BIGINT,
			descendants INTEGER,
			score       INTEGER,
			kids        TEXT,
			deleted     BOOLEAN NOT NULL DEFAULT FALSE,
			dead        BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent)`,
		`CREATE TABLE IF NOT EXISTS job_chunks (
			id         BIGSERIAL PRIMARY KEY,
			start_id   BIGINT NOT NULL,
			end_id     BIGINT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			worker_id  INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (start_id <= end_id),
			CHECK (status IN ('pending', 'in_progress', 'completed'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_chunks_status ON job_chunks(status)`,
	}
	for _, stmt := range stmts {
		if _, err := q.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("queue: bootstrap: %w", err)
		}
	}
	return nil
}

// Count returns the total number of chunk rows, regardless of status. The
// coordinator's populate_if_empty calls this to decide whether to populate —
// "the queue has any rows" is the whole idempotency guard against
// re-populating on a repeated coordinator launch.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM job_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count: %w", err)
	}
	return n, nil
}

// Populate bulk-inserts one pending row per range. Called only when Count
// reports zero — see Coordinator.populateIfEmpty — so it never needs to
// worry about overlapping with existing rows.
func (q *Queue) Populate(ctx context.Context, ranges []Range) error {
	if len(ranges) == 0 {
		return nil
	}

	starts := make([]int64, len(ranges))
	ends := make([]int64, len(ranges))
	for i, r := range ranges {
		starts[i] = r.Start
		ends[i] = r.End
	}

	_, err := q.pool.Exec(ctx, `
		INSERT INTO job_chunks (start_id, end_id)
		SELECT * FROM unnest($1::bigint[], $2::bigint[])`,
		starts, ends,
	)
	if err != nil {
		return fmt.Errorf("queue: populate %d chunks: %w", len(ranges), err)
	}
	return nil
}

// Claim atomically selects the earliest pending chunk, skipping any row
// currently locked by another claimant, and transitions it to in_progress
// under the calling worker's identity. Returns (nil, nil) when no pending
// chunk is available — that is the worker's exit signal, not an error.
//
// FOR UPDATE SKIP LOCKED is what makes this a lock-free fan-out primitive:
// concurrent claimers never block each other, never return the same row,
// and never deadlock.
func (q *Queue) Claim(ctx context.Context, workerID int) (*Chunk, error) {
	var c Chunk
	err := q.pool.QueryRow(ctx, `
		UPDATE job_chunks
		SET status = 'in_progress', worker_id = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM job_chunks
			WHERE status = 'pending'
			ORDER BY start_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, start_id, end_id, status, worker_id, created_at, updated_at`,
		workerID,
	).Scan(&c.ID, &c.StartID, &c.EndID, &c.Status, &c.WorkerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	return &c, nil
}

// Complete marks chunkID completed. No conditional check is required: a
// worker only ever completes a chunk it holds, and completing an already
// completed chunk (which cannot happen under the claim protocol) would
// simply be a harmless no-op update.
func (q *Queue) Complete(ctx context.Context, chunkID int64) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE job_chunks SET status = 'completed', updated_at = now() WHERE id = $1`,
		chunkID,
	)
	if err != nil {
		return fmt.Errorf("queue: complete chunk %d: %w", chunkID, err)
	}
	return nil
}

// ReclaimStale resets every in_progress chunk whose updated_at predates
// now()-staleTimeout back to pending, clearing worker_id. completed rows are
// never touched — the WHERE clause only ever matches in_progress. Returns
// the number of rows reclaimed; zero is a normal, non-error outcome.
func (q *Queue) ReclaimStale(ctx context.Context, staleTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleTimeout)
	tag, err := q.pool.Exec(ctx, `
		UPDATE job_chunks
		SET status = 'pending', worker_id = NULL
		WHERE status = 'in_progress' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("queue: reclaim stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Progress reports (completed, total) chunk counts for the coordinator's
// monitor loop.
func (q *Queue) Progress(ctx context.Context) (completed, total int64, err error) {
	row := q.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'completed'),
			count(*)
		FROM job_chunks`)
	if err := row.Scan(&completed, &total); err != nil {
		return 0, 0, fmt.Errorf("queue: progress: %w", err)
	}
	return completed, total, nil
}
