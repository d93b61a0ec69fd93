// Package coordinator owns the crawl's lifecycle: bootstrap the schema,
// reclaim chunks abandoned by a previous crash, populate the queue on first
// run, launch the worker pool, and monitor it to completion. Everything here
// is orchestration — the actual claim/fetch/store work lives in
// internal/queue, internal/hnapi, internal/items, and internal/worker.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayworm/hacker-news-data/internal/config"
	"github.com/wayworm/hacker-news-data/internal/hnapi"
	"github.com/wayworm/hacker-news-data/internal/items"
	"github.com/wayworm/hacker-news-data/internal/logging"
	"github.com/wayworm/hacker-news-data/internal/queue"
	"github.com/wayworm/hacker-news-data/internal/worker"
)

// Coordinator drives a single crawl run end to end. It holds its own pool —
// separate from any worker's — since its queries (bootstrap DDL, populate,
// reclaim, progress polling) are infrequent and don't need a dedicated
// connection the way a worker's tight fetch/store loop does.
type Coordinator struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	queue  *queue.Queue
	client *hnapi.Client
	lock   *instanceLock
	logger *slog.Logger
}

// New connects to the database and prepares a Coordinator. The connection is
// not validated until the first call (e.g. Bootstrap) touches it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Coordinator, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("coordinator: connect: %w", err)
	}

	// Every log line for this run carries the same run_id, so operators can
	// pull one crawl's history out of a log file spanning several runs.
	logger = logger.With("run_id", uuid.NewString())

	client := hnapi.New(cfg.UpstreamBaseURL, cfg.RequestTimeout, cfg.ConcurrentRequests, logger)

	return &Coordinator{
		cfg:    cfg,
		pool:   pool,
		queue:  queue.New(pool),
		client: client,
		lock:   newInstanceLock(cfg.DatabaseURL),
		logger: logger,
	}, nil
}

// Close releases the coordinator's own pool. Worker pools are owned and
// closed by runWorker, not here.
func (c *Coordinator) Close() {
	c.pool.Close()
}

// Run executes the full lifecycle described in §4.1: acquire the single-
// instance lock, bootstrap the schema, reclaim chunks stranded by a prior
// crash, populate the queue if this is a first run, launch the worker pool,
// and monitor it until every worker has exited. It returns a non-nil error
// only for conditions that make the crawl unable to start at all; a crawl
// that starts and whose workers individually fail is still a clean exit —
// per-worker failures are logged, not escalated here.
func (c *Coordinator) Run(ctx context.Context) error {
	locked, err := c.lock.acquire()
	if err != nil {
		return fmt.Errorf("coordinator: acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("coordinator: another instance is already running against this database")
	}
	defer func() {
		if err := c.lock.release(); err != nil {
			c.logger.Warn("failed to release instance lock", "error", err)
		}
	}()

	if err := c.bootstrap(ctx); err != nil {
		return err
	}

	if !c.cfg.Reset {
		reclaimed, err := c.reclaimStale(ctx)
		if err != nil {
			return err
		}
		if reclaimed > 0 {
			c.logger.Info("reclaimed stale chunks", "count", reclaimed)
		}
	}

	if err := c.populateIfEmpty(ctx); err != nil {
		return err
	}

	return c.launchAndMonitor(ctx)
}

// bootstrap creates the schema (or resets and recreates it, per cfg.Reset).
func (c *Coordinator) bootstrap(ctx context.Context) error {
	if err := c.queue.Bootstrap(ctx, c.cfg.Reset); err != nil {
		return fmt.Errorf("coordinator: bootstrap: %w", err)
	}
	return nil
}

// reclaimStale resets chunks abandoned mid-processing by a crashed worker
// back to pending, making them claimable again.
func (c *Coordinator) reclaimStale(ctx context.Context) (int64, error) {
	n, err := c.queue.ReclaimStale(ctx, c.cfg.StaleTimeout)
	if err != nil {
		return 0, fmt.Errorf("coordinator: reclaim stale: %w", err)
	}
	return n, nil
}

// populateIfEmpty discovers the current upstream max item ID and splits
// [1, maxID] into chunks, but only when the queue has never been populated —
// Count() == 0 is the whole idempotency guard, so a coordinator restarted
// against a database that already has chunks never re-populates and never
// duplicates work, per §9's frozen invariant.
func (c *Coordinator) populateIfEmpty(ctx context.Context) error {
	existing, err := c.queue.Count(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: populate_if_empty: %w", err)
	}
	if existing > 0 {
		c.logger.Info("queue already populated, skipping discovery", "existing_chunks", existing)
		return nil
	}

	maxID, err := c.client.MaxItemID(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: discover max item id: %w", err)
	}

	ranges := partition(maxID, c.cfg.ChunkSize)
	if err := c.queue.Populate(ctx, ranges); err != nil {
		return fmt.Errorf("coordinator: populate_if_empty: %w", err)
	}
	c.logger.Info("populated job queue", "max_item_id", maxID, "chunks", len(ranges))
	return nil
}

// launchAndMonitor starts cfg.NumWorkers independent workers, each with its
// own pooled connection and HTTP client, then renders progress until they
// have all returned. Workers run independently (§5): one worker's fatal
// error never cancels its siblings, so this uses a plain WaitGroup rather
// than an errgroup, whose WithContext would cascade the first error into a
// shared cancellation of every other worker.
func (c *Coordinator) launchAndMonitor(ctx context.Context) error {
	var wg sync.WaitGroup
	done := make(chan struct{})

	for id := 1; id <= c.cfg.NumWorkers; id++ {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.runWorker(ctx, id); err != nil {
				c.logger.Error("worker exited with error", "worker_id", id, "error", err)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	monitorErr := runMonitor(ctx, c.queue.Progress, c.cfg.PollInterval, done)
	<-done // workers may still be draining their last chunk after monitor returns
	if monitorErr != nil {
		c.logger.Warn("monitor exited with error", "error", monitorErr)
	}
	return nil
}

// runWorker builds one worker's dedicated resources — a single-connection
// pool and a single HTTP client — and runs it to completion. A worker's own
// pgxpool is capped at one connection so "one persistent connection per
// worker" (§9) holds regardless of how many workers run concurrently.
func (c *Coordinator) runWorker(ctx context.Context, id int) error {
	poolCfg, err := pgxpool.ParseConfig(c.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker %d: parse pool config: %w", id, err)
	}
	poolCfg.MaxConns = 1
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("worker %d: connect: %w", id, err)
	}
	defer pool.Close()

	logger := logging.ForWorker(c.logger, id)
	client := hnapi.New(c.cfg.UpstreamBaseURL, c.cfg.RequestTimeout, c.cfg.ConcurrentRequests, logger)

	w := worker.New(id, queue.New(pool), items.New(pool), client, worker.Config{
		ConcurrentRequests: c.cfg.ConcurrentRequests,
		BatchSize:          c.cfg.BatchSize,
	}, logger)

	return w.Run(ctx)
}
