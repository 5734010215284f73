// Package collection implements the Collection Strategy component: mapping
// (partition, base name) to concrete vector-store collection names.
package collection

import (
	"context"
	"fmt"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/port"
)

// Strategy resolves the concrete collection name for a partition.
type Strategy interface {
	// CollectionFor returns the concrete collection name for a partition.
	// partitionName is empty for calls that address the strategy without a
	// specific partition in mind (e.g. building a fixed collection handle
	// up front).
	CollectionFor(partitionName string) (string, error)
	// Kind reports which domain.CollectionStrategyKind this is.
	Kind() domain.CollectionStrategyKind
	// DeleteStale removes the given partition's slice ahead of reindexing
	// a replacement, honouring the strategy's own semantics for whether
	// that means a metadata-filter delete or dropping a whole collection.
	DeleteStale(ctx context.Context, store port.VectorStore, partitionName string, where port.Filter) error
}

// Single is the "one logical collection for every partition" strategy,
// used for local persistent stores. delete_stale always uses a
// metadata-filter delete, since there is only one collection shared by
// every partition.
type Single struct {
	Name string
}

func (s Single) CollectionFor(string) (string, error) { return s.Name, nil }
func (s Single) Kind() domain.CollectionStrategyKind   { return domain.CollectionStrategySingle }

func (s Single) DeleteStale(ctx context.Context, store port.VectorStore, partitionName string, where port.Filter) error {
	handle, err := store.GetOrCreateCollection(ctx, s.Name)
	if err != nil {
		return fmt.Errorf("collection: resolving %q: %w", s.Name, err)
	}
	return store.Delete(ctx, handle, where)
}

// PerPartition gives each partition its own concrete collection, used for
// managed/cloud stores. DeleteStale deletes the documents matching where
// from that partition's own collection; the collection itself is not
// dropped.
type PerPartition struct {
	Base string
}

func (p PerPartition) CollectionFor(partitionName string) (string, error) {
	if partitionName == "" {
		if p.Base == "" {
			return "", fmt.Errorf("collection: per-partition strategy requires a partition name when no base is configured")
		}
		return p.Base, nil
	}
	if p.Base == "" {
		return partitionName, nil
	}
	return p.Base + "_" + partitionName, nil
}

func (p PerPartition) Kind() domain.CollectionStrategyKind { return domain.CollectionStrategyPerPartition }

func (p PerPartition) DeleteStale(ctx context.Context, store port.VectorStore, partitionName string, where port.Filter) error {
	name, err := p.CollectionFor(partitionName)
	if err != nil {
		return err
	}
	handle, err := store.GetOrCreateCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("collection: resolving %q: %w", name, err)
	}
	return store.Delete(ctx, handle, where)
}

// New builds the configured Strategy.
func New(kind domain.CollectionStrategyKind, base string) (Strategy, error) {
	switch kind {
	case domain.CollectionStrategySingle:
		if base == "" {
			return nil, fmt.Errorf("collection: single strategy requires a collection name")
		}
		return Single{Name: base}, nil
	case domain.CollectionStrategyPerPartition, "":
		return PerPartition{Base: base}, nil
	default:
		return nil, fmt.Errorf("collection: unknown strategy kind %q", kind)
	}
}
