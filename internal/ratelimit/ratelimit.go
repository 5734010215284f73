// Package ratelimit throttles a port.VectorStore's outgoing calls through a
// token-bucket limiter. It sits strictly outside the VectorStore contract:
// it wraps any implementation and never changes a call's atomicity or error
// semantics, only when it is allowed to start.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/GetAdriAI/idxr/internal/port"
)

// Store wraps a port.VectorStore, waiting on a shared token bucket before
// every call reaches the underlying implementation.
type Store struct {
	inner   port.VectorStore
	limiter *rate.Limiter
}

// New builds a rate-limited Store. requestsPerSecond <= 0 disables limiting
// entirely, in which case Store is a pure passthrough.
func New(inner port.VectorStore, requestsPerSecond float64, burst int) *Store {
	if requestsPerSecond <= 0 {
		return &Store{inner: inner}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{inner: inner, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (port.CollectionHandle, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.GetOrCreateCollection(ctx, name)
}

func (s *Store) Upsert(ctx context.Context, handle port.CollectionHandle, batch port.UpsertBatch) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.inner.Upsert(ctx, handle, batch)
}

func (s *Store) Delete(ctx context.Context, handle port.CollectionHandle, where port.Filter) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.inner.Delete(ctx, handle, where)
}

func (s *Store) Query(ctx context.Context, handle port.CollectionHandle, texts []string, nResults int, where port.Filter) (port.QueryResult, error) {
	if err := s.wait(ctx); err != nil {
		return port.QueryResult{}, err
	}
	return s.inner.Query(ctx, handle, texts, nResults, where)
}

func (s *Store) Get(ctx context.Context, handle port.CollectionHandle, ids []string, where port.Filter, limit, offset int) (port.GetResult, error) {
	if err := s.wait(ctx); err != nil {
		return port.GetResult{}, err
	}
	return s.inner.Get(ctx, handle, ids, where, limit, offset)
}

func (s *Store) Count(ctx context.Context, handle port.CollectionHandle, where port.Filter) (int, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	return s.inner.Count(ctx, handle, where)
}
