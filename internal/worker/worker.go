// Package worker implements the per-chunk processing pipeline: claim a
// range from the queue, fetch every ID in it with bounded concurrency,
// batch successful results, flush them idempotently, and mark the chunk
// complete. A Worker owns exactly one store connection and one HTTP client
// for its whole lifetime, matching the "process with a distinct identity"
// contract in the job queue spec.
package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/wayworm/hacker-news-data/internal/hnapi"
	"github.com/wayworm/hacker-news-data/internal/items"
	"github.com/wayworm/hacker-news-data/internal/queue"
)

// Config bundles the tunables a Worker needs from the global configuration.
// Kept separate from config.Config so this package doesn't import cmd-level
// concerns.
type Config struct {
	ConcurrentRequests int
	BatchSize          int
}

// Claimer is the slice of queue.Queue a Worker needs: claim the next pending
// chunk and mark one completed. A narrow interface here, rather than the
// concrete *queue.Queue, is what lets processChunk/Run be tested against an
// in-memory fake instead of a real Postgres instance.
type Claimer interface {
	Claim(ctx context.Context, workerID int) (*queue.Chunk, error)
	Complete(ctx context.Context, chunkID int64) error
}

// Fetcher is the slice of hnapi.Client a Worker needs.
type Fetcher interface {
	FetchItem(ctx context.Context, id int64) (*hnapi.RawItem, error)
}

// ItemStore is the slice of items.Store a Worker needs.
type ItemStore interface {
	UpsertBatch(ctx context.Context, batch []items.Item) error
}

// Worker is one long-running claim/process/complete loop. Safe to run only
// from a single goroutine — concurrency lives inside processChunk, not
// across Worker method calls.
type Worker struct {
	id     int
	queue  Claimer
	store  ItemStore
	client Fetcher
	cfg    Config
	logger *slog.Logger
}

// New builds a Worker. In production, q, store, and client are backed by
// resources exclusive to this worker (a single pooled connection, a single
// HTTP client) — sharing them across workers would violate the "one
// persistent connection, one persistent client" contract, though nothing
// here enforces that beyond the caller's wiring in internal/coordinator.
func New(id int, q Claimer, store ItemStore, client Fetcher, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		id:     id,
		queue:  q,
		store:  store,
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Run loops claim -> process -> complete until the queue reports no pending
// chunks, then returns nil. It returns early only on a fatal condition: a
// store error during claim/complete (connection lost) or ctx cancellation.
// A per-chunk processing error is never fatal — see processChunk.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting")
	chunksCompleted := 0
	itemsStored := 0

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping: context cancelled", "chunks_completed", chunksCompleted)
			return nil
		}

		chunk, err := w.queue.Claim(ctx, w.id)
		if err != nil {
			w.logger.Error("claim failed, worker exiting", "error", err)
			return err
		}
		if chunk == nil {
			w.logger.Info("no more pending chunks, worker exiting",
				"chunks_completed", chunksCompleted, "items_stored", itemsStored)
			return nil
		}

		w.logger.Info("claimed chunk", "chunk_id", chunk.ID, "start_id", chunk.StartID, "end_id", chunk.EndID)

		stored, err := w.processChunk(ctx, chunk.StartID, chunk.EndID)
		itemsStored += stored
		if err != nil {
			// A cancelled context aborted processing mid-chunk: leave it
			// in_progress for stale reclamation rather than completing it
			// having only partially fetched the range.
			w.logger.Warn("chunk processing interrupted, leaving in_progress for reclaim",
				"chunk_id", chunk.ID, "error", err)
			return nil
		}

		if err := w.queue.Complete(ctx, chunk.ID); err != nil {
			w.logger.Error("complete failed, worker exiting", "chunk_id", chunk.ID, "error", err)
			return err
		}
		chunksCompleted++
		w.logger.Info("completed chunk", "chunk_id", chunk.ID, "items_stored", stored)
	}
}

// processChunk fetches every ID in [start, end] with at most
// cfg.ConcurrentRequests in flight, accumulating successes into batches of
// cfg.BatchSize and flushing each as it fills. It returns the count of items
// written and, if the context was cancelled, an error. A failed flush is
// logged and its items are dropped without an error, and per-ID fetch
// failures never surface here either, only missing rows (§7: a transient
// fetch failure yields "no result" and the chunk proceeds).
func (w *Worker) processChunk(ctx context.Context, start, end int64) (int, error) {
	results := make(chan items.Item, w.cfg.BatchSize)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(results)
		fetchGroup, fetchCtx := errgroup.WithContext(gCtx)
		fetchGroup.SetLimit(w.cfg.ConcurrentRequests)

		for id := start; id <= end; id++ {
			id := id
			fetchGroup.Go(func() error {
				raw, err := w.client.FetchItem(fetchCtx, id)
				if err != nil {
					// Per §7, only cancellation is fatal to the chunk; any
					// other fetcher error collapses to "no result" here too,
					// rather than relying solely on hnapi.Client to have
					// already swallowed it.
					if fetchCtx.Err() != nil {
						return fetchCtx.Err()
					}
					return nil
				}
				if raw == nil {
					return nil // no result: deleted, null, or swallowed transient failure
				}
				select {
				case results <- toItem(raw):
				case <-fetchCtx.Done():
					return fetchCtx.Err()
				}
				return nil
			})
		}
		return fetchGroup.Wait()
	})

	stored := 0
	var flushErr error
	g.Go(func() error {
		batch := make([]items.Item, 0, w.cfg.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := w.store.UpsertBatch(gCtx, batch); err != nil {
				w.logger.Error("batch flush failed, items in this batch are lost for this chunk run",
					"batch_size", len(batch), "error", err)
				flushErr = err
				batch = batch[:0]
				return nil // a failed flush doesn't abort the chunk, per §7
			}
			stored += len(batch)
			batch = batch[:0]
			return nil
		}

		for item := range results {
			batch = append(batch, item)
			if len(batch) >= w.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return stored, err
	}
	_ = flushErr // surfaced via logs only; a lossy batch is not a chunk failure
	return stored, nil
}

func toItem(raw *hnapi.RawItem) items.Item {
	it := items.Item{
		ID:      raw.ID,
		Kids:    raw.Kids,
		Deleted: raw.Deleted,
		Dead:    raw.Dead,
	}
	if raw.Type != "" {
		it.Type = &raw.Type
	}
	if raw.By != "" {
		it.By = &raw.By
	}
	if raw.Text != "" {
		it.Text = &raw.Text
	}
	if raw.URL != "" {
		it.URL = &raw.URL
	}
	if raw.Title != "" {
		it.Title = &raw.Title
	}
	it.Time = raw.Time
	it.Score = raw.Score
	it.Descendants = raw.Descendants
	it.Parent = raw.Parent
	return it
}
