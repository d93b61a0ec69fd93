// Package hnapi wraps the upstream Hacker News Firebase item API: an integer
// ID in, a JSON object or null out, within a bounded timeout. Per-request
// failures are the caller's business to interpret — this package never
// retries past what the underlying retryable client already does for
// transient network errors and 5xx/429 responses.
package hnapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/semaphore"
)

// RawItem mirrors the upstream item JSON object exactly; any field may be
// absent, which is why every field below is a pointer or has a natural zero
// value that is indistinguishable from "absent" (deleted/dead).
type RawItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type,omitempty"`
	By          string  `json:"by,omitempty"`
	Time        *int64  `json:"time,omitempty"`
	Text        string  `json:"text,omitempty"`
	URL         string  `json:"url,omitempty"`
	Title       string  `json:"title,omitempty"`
	Score       *int32  `json:"score,omitempty"`
	Descendants *int32  `json:"descendants,omitempty"`
	Parent      *int64  `json:"parent,omitempty"`
	Kids        []int64 `json:"kids,omitempty"`
	Deleted     bool    `json:"deleted,omitempty"`
	Dead        bool    `json:"dead,omitempty"`
}

// Client is a single worker's persistent connection to the upstream API:
// one underlying *http.Client with keep-alive and connection pooling, one
// semaphore bounding in-flight requests. Safe for concurrent use by the
// goroutines within a single worker's fetch pipeline.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	sem     *semaphore.Weighted
}

// New builds a Client against baseURL (e.g. https://hacker-news.firebaseio.com/v0)
// with at most `concurrency` requests in flight at once and `timeout` applied
// to each individual request.
func New(baseURL string, timeout time.Duration, concurrency int, logger *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil // silence retryablehttp's own logging; callers log via returned errors
	if logger != nil {
		rc.Logger = slogAdapter{logger}
	}
	rc.HTTPClient.Timeout = timeout
	rc.HTTPClient.Transport = &http.Transport{
		MaxIdleConns:        concurrency * 2,
		MaxIdleConnsPerHost: concurrency * 2,
		IdleConnTimeout:     timeout,
	}

	return &Client{
		http:    rc,
		baseURL: baseURL,
		sem:     semaphore.NewWeighted(int64(concurrency)),
	}
}

// MaxItemID fetches the current maximum item ID from the upstream API.
func (c *Client) MaxItemID(ctx context.Context) (int64, error) {
	url := c.baseURL + "/maxitem.json"
	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("hnapi: maxitem.json returned status %d", resp.StatusCode)
	}

	var id int64
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return 0, fmt.Errorf("hnapi: decode maxitem.json: %w", err)
	}
	return id, nil
}

// FetchItem retrieves one item by ID. Per §7 of the crawl contract, a
// transient network error, non-2xx response, timeout, or a literal JSON
// "null" body all collapse to (nil, nil) — "no result" — rather than an
// error. Only a caller-cancelled context propagates as an error, so the
// worker pipeline can tell "upstream has nothing" apart from "give up now".
func (c *Client) FetchItem(ctx context.Context, id int64) (*RawItem, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	url := c.baseURL + "/item/" + strconv.FormatInt(id, 10) + ".json"
	resp, err := c.get(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	var item RawItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return nil, nil
	}
	if item.ID == 0 {
		item.ID = id
	}
	return &item, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// slogAdapter lets retryablehttp's internal retry/backoff logging flow
// through the worker's structured logger instead of the standard logger.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Printf(format string, args ...interface{}) {
	a.l.Debug(fmt.Sprintf(format, args...))
}
