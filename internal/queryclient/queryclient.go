// Package queryclient implements the Multi-Collection Query Client: fanning
// queries out across every collection a set of models routes to, and
// merging the results back into one answer.
package queryclient

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/GetAdriAI/idxr/internal/port"
	"github.com/GetAdriAI/idxr/internal/queryconfig"
)

// Limiter throttles outgoing sub-requests. *rate.Limiter from
// golang.org/x/time/rate satisfies this without an explicit adapter.
type Limiter interface {
	Wait(ctx context.Context) error
}

// noopLimiter never blocks.
type noopLimiter struct{}

func (noopLimiter) Wait(context.Context) error { return nil }

// Client fans queries out across the collections named by a query config,
// bounded by a worker pool and an optional rate limiter.
type Client struct {
	store       port.VectorStore
	cfg         queryconfig.Config
	concurrency int
	limiter     Limiter
	logger      *slog.Logger

	mu      sync.Mutex
	handles map[string]port.CollectionHandle
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithConcurrency bounds the number of in-flight sub-requests. Defaults to
// 8 when unset or non-positive.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLimiter installs a rate limiter every sub-request must pass through
// before it starts.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger installs a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Connect builds a Client. Collection handles are resolved lazily and
// cached for the client's lifetime.
func Connect(store port.VectorStore, cfg queryconfig.Config, opts ...Option) *Client {
	c := &Client{
		store:       store,
		cfg:         cfg,
		concurrency: 8,
		limiter:     noopLimiter{},
		logger:      slog.Default(),
		handles:     map[string]port.CollectionHandle{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases resources held by the client. The abstract VectorStore
// port has no explicit teardown; Close exists so callers get scoped
// acquisition semantics regardless of adapter.
func (c *Client) Close() error { return nil }

func (c *Client) targetCollections(models []string) []string {
	return queryconfig.CollectionsForModels(c.cfg, models)
}

func (c *Client) resolve(ctx context.Context, collection string) (port.CollectionHandle, error) {
	c.mu.Lock()
	if h, ok := c.handles[collection]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	h, err := c.store.GetOrCreateCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.handles[collection] = h
	c.mu.Unlock()
	return h, nil
}

// fanOut runs fn once per collection under the bounded pool and rate
// limiter, collecting successes. The call as a whole succeeds as long as at
// least one sub-request succeeds; failures are logged and dropped.
func (c *Client) fanOut(ctx context.Context, collections []string, fn func(ctx context.Context, collection string, handle port.CollectionHandle) error) (successes int) {
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, collection := range collections {
		collection := collection
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.limiter.Wait(ctx); err != nil {
				c.logger.Warn("queryclient: rate limiter wait failed", "collection", collection, "error", err)
				return
			}
			handle, err := c.resolve(ctx, collection)
			if err != nil {
				c.logger.Warn("queryclient: resolving collection failed", "collection", collection, "error", err)
				return
			}
			if err := fn(ctx, collection, handle); err != nil {
				c.logger.Warn("queryclient: sub-request failed", "collection", collection, "error", err)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return successes
}

// Query fans a batch of query texts across every collection the requested
// models route to, merging per-text results by ascending distance and
// keeping the top nResults.
func (c *Client) Query(ctx context.Context, texts []string, nResults int, models []string, where port.Filter) (port.QueryResult, error) {
	collections := c.resolveCollections(models)
	if len(collections) == 0 {
		return port.QueryResult{}, fmt.Errorf("queryclient: no collections resolved for models %v", models)
	}

	var mu sync.Mutex
	var collected []port.QueryResult

	successes := c.fanOut(ctx, collections, func(ctx context.Context, collection string, handle port.CollectionHandle) error {
		res, err := c.store.Query(ctx, handle, texts, nResults, where)
		if err != nil {
			return err
		}
		mu.Lock()
		collected = append(collected, res)
		mu.Unlock()
		return nil
	})
	if successes == 0 {
		return port.QueryResult{}, fmt.Errorf("queryclient: all %d collection queries failed", len(collections))
	}

	return mergeQueryResults(collected, texts, nResults), nil
}

func mergeQueryResults(collected []port.QueryResult, texts []string, nResults int) port.QueryResult {
	merged := port.QueryResult{
		IDs:       make([][]string, len(texts)),
		Distances: make([][]float64, len(texts)),
		Documents: make([][]string, len(texts)),
		Metadatas: make([][]map[string]any, len(texts)),
	}

	type hit struct {
		id       string
		distance float64
		document string
		metadata map[string]any
	}

	for qi := range texts {
		var hits []hit
		for _, r := range collected {
			if qi >= len(r.IDs) {
				continue
			}
			for j, id := range r.IDs[qi] {
				h := hit{id: id}
				if qi < len(r.Distances) && j < len(r.Distances[qi]) {
					h.distance = r.Distances[qi][j]
				}
				if qi < len(r.Documents) && j < len(r.Documents[qi]) {
					h.document = r.Documents[qi][j]
				}
				if qi < len(r.Metadatas) && j < len(r.Metadatas[qi]) {
					h.metadata = r.Metadatas[qi][j]
				}
				hits = append(hits, h)
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
		if nResults > 0 && len(hits) > nResults {
			hits = hits[:nResults]
		}
		for _, h := range hits {
			merged.IDs[qi] = append(merged.IDs[qi], h.id)
			merged.Distances[qi] = append(merged.Distances[qi], h.distance)
			merged.Documents[qi] = append(merged.Documents[qi], h.document)
			merged.Metadatas[qi] = append(merged.Metadatas[qi], h.metadata)
		}
	}
	return merged
}

// Get concatenates results across every target collection, then applies
// limit/offset by slicing the concatenated result — never per-collection.
func (c *Client) Get(ctx context.Context, ids []string, where port.Filter, limit, offset int, models []string) (port.GetResult, error) {
	collections := c.resolveCollections(models)
	if len(collections) == 0 {
		return port.GetResult{}, fmt.Errorf("queryclient: no collections resolved for models %v", models)
	}

	var mu sync.Mutex
	var merged port.GetResult

	successes := c.fanOut(ctx, collections, func(ctx context.Context, collection string, handle port.CollectionHandle) error {
		res, err := c.store.Get(ctx, handle, ids, where, 0, 0)
		if err != nil {
			return err
		}
		mu.Lock()
		merged.IDs = append(merged.IDs, res.IDs...)
		merged.Documents = append(merged.Documents, res.Documents...)
		merged.Metadatas = append(merged.Metadatas, res.Metadatas...)
		mu.Unlock()
		return nil
	})
	if successes == 0 {
		return port.GetResult{}, fmt.Errorf("queryclient: all %d collection gets failed", len(collections))
	}

	return sliceGetResult(merged, limit, offset), nil
}

func sliceGetResult(r port.GetResult, limit, offset int) port.GetResult {
	total := len(r.IDs)
	start := offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return port.GetResult{
		IDs:       r.IDs[start:end],
		Documents: r.Documents[start:end],
		Metadatas: r.Metadatas[start:end],
	}
}

// Count sums the count of every target collection.
func (c *Client) Count(ctx context.Context, models []string, where port.Filter) (int, error) {
	collections := c.resolveCollections(models)
	if len(collections) == 0 {
		return 0, fmt.Errorf("queryclient: no collections resolved for models %v", models)
	}

	var mu sync.Mutex
	total := 0

	successes := c.fanOut(ctx, collections, func(ctx context.Context, collection string, handle port.CollectionHandle) error {
		n, err := c.store.Count(ctx, handle, where)
		if err != nil {
			return err
		}
		mu.Lock()
		total += n
		mu.Unlock()
		return nil
	})
	if successes == 0 {
		return 0, fmt.Errorf("queryclient: all %d collection counts failed", len(collections))
	}
	return total, nil
}

// resolveCollections applies the routing rule: nil/empty models selects
// every known collection; otherwise the union of each requested model's
// mapped collections. Unknown models are logged and contribute nothing.
func (c *Client) resolveCollections(models []string) []string {
	if len(models) == 0 {
		return c.targetCollections(nil)
	}
	var known []string
	for _, m := range models {
		if _, ok := c.cfg.ModelToCollections[m]; !ok {
			c.logger.Warn("queryclient: unknown model requested", "model", m)
			continue
		}
		known = append(known, m)
	}
	if len(known) == 0 {
		return nil
	}
	return c.targetCollections(known)
}
