// Package localstore implements a concrete VectorStore backed by
// go.etcd.io/bbolt, usable without any managed or cloud vector database.
// Search is brute-force cosine similarity over an in-memory cache of
// vectors loaded from bbolt at collection-open time.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/GetAdriAI/idxr/internal/errs"
	"github.com/GetAdriAI/idxr/internal/port"
	"github.com/GetAdriAI/idxr/internal/vectorstore"
)

var (
	bucketCollections = []byte("collections")
)

// Store is a single bbolt-file-backed VectorStore holding any number of
// named collections, each an independent bucket family.
type Store struct {
	db       *bbolt.DB
	embedder port.Embedder

	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	text     string
	vector   []float32
	metadata map[string]any
}

type storedEntry struct {
	Text     string         `json:"text"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Open opens (creating if absent) a bbolt database at path as a VectorStore.
// embedder converts upserted/queried text into vectors; it must not be nil.
func Open(path string, embedder port.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("localstore: embedder is required")
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("localstore: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: creating root bucket: %w", err)
	}

	s := &Store{db: db, embedder: embedder, collections: map[string]*collection{}}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadAll() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		cur := root.Cursor()
		for name, value := cur.First(); name != nil; name, value = cur.Next() {
			if value != nil {
				continue // not a nested bucket
			}
			b := root.Bucket(name)
			c := &collection{entries: map[string]entry{}}
			err := b.ForEach(func(k, v []byte) error {
				var stored storedEntry
				if err := json.Unmarshal(v, &stored); err != nil {
					return nil // skip corrupted entries; diagnostic concern only
				}
				c.entries[string(k)] = entry{text: stored.Text, vector: stored.Vector, metadata: stored.Metadata}
				return nil
			})
			if err != nil {
				return err
			}
			s.collections[string(name)] = c
		}
		return nil
	})
}

// GetOrCreateCollection resolves (creating if absent) a named collection.
// The handle is the collection name itself.
func (s *Store) GetOrCreateCollection(ctx context.Context, name string) (port.CollectionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return name, nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.Bucket(bucketCollections).CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("localstore: creating collection %q: %w", name, err)
	}
	s.collections[name] = &collection{entries: map[string]entry{}}
	return name, nil
}

func (s *Store) resolve(handle port.CollectionHandle) (string, *collection, error) {
	name, ok := handle.(string)
	if !ok {
		return "", nil, fmt.Errorf("localstore: invalid collection handle %v", handle)
	}
	s.mu.RLock()
	c, ok := s.collections[name]
	s.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("localstore: unknown collection %q", name)
	}
	return name, c, nil
}

// Upsert embeds and persists a batch atomically: either every document in
// the batch is applied, or none are. A document whose id already exists in
// the collection is rejected as a duplicate, per this adapter's
// write-once-per-id policy; callers that legitimately want to overwrite
// must delete first.
func (s *Store) Upsert(ctx context.Context, handle port.CollectionHandle, batch port.UpsertBatch) error {
	name, c, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if len(batch.IDs) != len(batch.Texts) || len(batch.IDs) != len(batch.Metadatas) {
		return fmt.Errorf("localstore: upsert batch column length mismatch")
	}

	vectors, err := s.embedder.Embed(ctx, batch.Texts)
	if err != nil {
		return fmt.Errorf("localstore: embedding batch: %w", err)
	}
	if len(vectors) != len(batch.IDs) {
		return fmt.Errorf("localstore: embedder returned %d vectors for %d documents", len(vectors), len(batch.IDs))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var duplicates []string
	for _, id := range batch.IDs {
		if _, exists := c.entries[id]; exists {
			duplicates = append(duplicates, id)
		}
	}
	if len(duplicates) > 0 {
		return &errs.DuplicateIDError{IDs: duplicates}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCollections).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("localstore: collection bucket %q vanished", name)
		}
		staged := make(map[string]entry, len(batch.IDs))
		for i, id := range batch.IDs {
			e := entry{text: batch.Texts[i], vector: vectors[i], metadata: batch.Metadatas[i]}
			data, err := json.Marshal(storedEntry{Text: e.text, Vector: e.vector, Metadata: e.metadata})
			if err != nil {
				return fmt.Errorf("localstore: marshalling %q: %w", id, err)
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
			staged[id] = e
		}
		for id, e := range staged {
			c.entries[id] = e
		}
		return nil
	})
}

// Delete removes every entry matching where. A nil/empty filter deletes the
// whole collection's contents.
func (s *Store) Delete(ctx context.Context, handle port.CollectionHandle, where port.Filter) error {
	name, c, err := s.resolve(handle)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []string
	for id, e := range c.entries {
		match, err := vectorstore.Match(e.metadata, where)
		if err != nil {
			return fmt.Errorf("localstore: evaluating filter: %w", err)
		}
		if match {
			toDelete = append(toDelete, id)
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCollections).Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("localstore: collection bucket %q vanished", name)
		}
		for _, id := range toDelete {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
			delete(c.entries, id)
		}
		return nil
	})
}

// Query embeds texts and returns, per text, the nResults nearest entries
// among those matching where, ranked by ascending cosine distance
// (1 - cosine similarity).
func (s *Store) Query(ctx context.Context, handle port.CollectionHandle, texts []string, nResults int, where port.Filter) (port.QueryResult, error) {
	_, c, err := s.resolve(handle)
	if err != nil {
		return port.QueryResult{}, err
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return port.QueryResult{}, fmt.Errorf("localstore: embedding query: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	type scored struct {
		id       string
		distance float64
		text     string
		metadata map[string]any
	}

	var candidates []struct {
		id string
		e  entry
	}
	for id, e := range c.entries {
		match, err := vectorstore.Match(e.metadata, where)
		if err != nil {
			return port.QueryResult{}, fmt.Errorf("localstore: evaluating filter: %w", err)
		}
		if match {
			candidates = append(candidates, struct {
				id string
				e  entry
			}{id, e})
		}
	}

	result := port.QueryResult{
		IDs:       make([][]string, len(texts)),
		Distances: make([][]float64, len(texts)),
		Documents: make([][]string, len(texts)),
		Metadatas: make([][]map[string]any, len(texts)),
	}

	for qi, qv := range vectors {
		scores := make([]scored, 0, len(candidates))
		for _, cand := range candidates {
			scores = append(scores, scored{
				id:       cand.id,
				distance: 1 - cosineSimilarity(qv, cand.e.vector),
				text:     cand.e.text,
				metadata: cand.e.metadata,
			})
		}
		sort.Slice(scores, func(i, j int) bool { return scores[i].distance < scores[j].distance })
		n := nResults
		if n <= 0 || n > len(scores) {
			n = len(scores)
		}
		for i := 0; i < n; i++ {
			result.IDs[qi] = append(result.IDs[qi], scores[i].id)
			result.Distances[qi] = append(result.Distances[qi], scores[i].distance)
			result.Documents[qi] = append(result.Documents[qi], scores[i].text)
			result.Metadatas[qi] = append(result.Metadatas[qi], scores[i].metadata)
		}
	}
	return result, nil
}

// Get returns entries matching ids and/or where, honouring limit/offset
// over the matched set in a deterministic (id-sorted) order.
func (s *Store) Get(ctx context.Context, handle port.CollectionHandle, ids []string, where port.Filter, limit, offset int) (port.GetResult, error) {
	_, c, err := s.resolve(handle)
	if err != nil {
		return port.GetResult{}, err
	}

	wanted := map[string]bool(nil)
	if len(ids) > 0 {
		wanted = make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matchedIDs []string
	for id, e := range c.entries {
		if wanted != nil && !wanted[id] {
			continue
		}
		match, err := vectorstore.Match(e.metadata, where)
		if err != nil {
			return port.GetResult{}, fmt.Errorf("localstore: evaluating filter: %w", err)
		}
		if match {
			matchedIDs = append(matchedIDs, id)
		}
	}
	sort.Strings(matchedIDs)

	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(matchedIDs) {
		start = len(matchedIDs)
	}
	end := len(matchedIDs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	page := matchedIDs[start:end]

	result := port.GetResult{
		IDs:       make([]string, 0, len(page)),
		Documents: make([]string, 0, len(page)),
		Metadatas: make([]map[string]any, 0, len(page)),
	}
	for _, id := range page {
		e := c.entries[id]
		result.IDs = append(result.IDs, id)
		result.Documents = append(result.Documents, e.text)
		result.Metadatas = append(result.Metadatas, e.metadata)
	}
	return result, nil
}

// Count returns the number of entries matching where.
func (s *Store) Count(ctx context.Context, handle port.CollectionHandle, where port.Filter) (int, error) {
	_, c, err := s.resolve(handle)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		match, err := vectorstore.Match(e.metadata, where)
		if err != nil {
			return 0, fmt.Errorf("localstore: evaluating filter: %w", err)
		}
		if match {
			n++
		}
	}
	return n, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
