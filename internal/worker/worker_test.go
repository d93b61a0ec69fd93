package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/wayworm/hacker-news-data/internal/hnapi"
	"github.com/wayworm/hacker-news-data/internal/items"
	"github.com/wayworm/hacker-news-data/internal/queue"
)

// fakeQueue serves a single fixed chunk once, then reports no more pending
// work — enough to exercise Run's claim/process/complete loop without a
// database.
type fakeQueue struct {
	mu        sync.Mutex
	chunk     *queue.Chunk
	claimed   bool
	completed []int64
}

func (q *fakeQueue) Claim(ctx context.Context, workerID int) (*queue.Chunk, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.claimed || q.chunk == nil {
		return nil, nil
	}
	q.claimed = true
	return q.chunk, nil
}

func (q *fakeQueue) Complete(ctx context.Context, chunkID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, chunkID)
	return nil
}

// fakeFetcher returns a canned item for every ID present in items, nil for
// every other ID, and an error for any ID listed in errs.
type fakeFetcher struct {
	items map[int64]*hnapi.RawItem
	errs  map[int64]error
}

func (f *fakeFetcher) FetchItem(ctx context.Context, id int64) (*hnapi.RawItem, error) {
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if it, ok := f.items[id]; ok {
		return it, nil
	}
	return nil, nil
}

// fakeStore records every upserted item in memory, keyed by ID so repeated
// upserts of the same ID collapse the way ON CONFLICT DO NOTHING would.
type fakeStore struct {
	mu    sync.Mutex
	byID  map[int64]items.Item
	flush int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[int64]items.Item)}
}

func (s *fakeStore) UpsertBatch(ctx context.Context, batch []items.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush++
	for _, it := range batch {
		if _, exists := s.byID[it.ID]; !exists {
			s.byID[it.ID] = it
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerRunProcessesChunkAndCompletes(t *testing.T) {
	title := "story one"
	fetcher := &fakeFetcher{
		items: map[int64]*hnapi.RawItem{
			1: {ID: 1, Type: "story", Title: title},
			2: {ID: 2, Type: "story", Title: "story two"},
		},
	}
	q := &fakeQueue{chunk: &queue.Chunk{ID: 42, StartID: 1, EndID: 3}}
	store := newFakeStore()

	w := New(1, q, store, fetcher, Config{ConcurrentRequests: 4, BatchSize: 2}, testLogger())

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(q.completed) != 1 || q.completed[0] != 42 {
		t.Fatalf("expected chunk 42 completed once, got %v", q.completed)
	}
	if len(store.byID) != 2 {
		t.Fatalf("expected 2 items stored (id 3 yields no result), got %d", len(store.byID))
	}
	if store.byID[1].Title == nil || *store.byID[1].Title != title {
		t.Fatalf("expected item 1 title %q, got %+v", title, store.byID[1])
	}
}

func TestWorkerRunExitsWhenNoPendingChunks(t *testing.T) {
	q := &fakeQueue{} // chunk is nil: Claim always returns (nil, nil)
	store := newFakeStore()
	fetcher := &fakeFetcher{}

	w := New(1, q, store, fetcher, Config{ConcurrentRequests: 4, BatchSize: 10}, testLogger())

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(q.completed) != 0 {
		t.Fatalf("expected no completions, got %v", q.completed)
	}
}

func TestProcessChunkSkipsTransientFailuresWithoutFailingChunk(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[int64]*hnapi.RawItem{
			10: {ID: 10, Type: "story"},
		},
		errs: map[int64]error{
			11: fmt.Errorf("simulated transient error"),
		},
	}
	store := newFakeStore()
	q := &fakeQueue{}
	w := New(1, q, store, fetcher, Config{ConcurrentRequests: 2, BatchSize: 5}, testLogger())

	stored, err := w.processChunk(context.Background(), 10, 12)
	if err != nil {
		t.Fatalf("processChunk returned error: %v", err)
	}
	if stored != 1 {
		t.Fatalf("expected 1 item stored, got %d", stored)
	}
}

func TestProcessChunkIsIdempotentAcrossReplay(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[int64]*hnapi.RawItem{
			1: {ID: 1, Type: "story"},
			2: {ID: 2, Type: "comment"},
		},
	}
	store := newFakeStore()
	q := &fakeQueue{}
	w := New(1, q, store, fetcher, Config{ConcurrentRequests: 4, BatchSize: 2}, testLogger())

	if _, err := w.processChunk(context.Background(), 1, 2); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCount := len(store.byID)

	if _, err := w.processChunk(context.Background(), 1, 2); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(store.byID) != firstCount {
		t.Fatalf("expected replay to leave row count unchanged: got %d then %d", firstCount, len(store.byID))
	}
}
