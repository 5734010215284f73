// Package port declares the boundaries this pipeline depends on but does not
// implement itself: the vector-store client, the embedding function, and the
// tokenizer. Concrete adapters live under internal/vectorstore and
// internal/tokenizer.
package port

import "context"

// CollectionHandle identifies a collection a VectorStore has resolved via
// GetOrCreateCollection. Adapters are free to make this any comparable
// value; callers never inspect it.
type CollectionHandle any

// Filter is a metadata filter expression, passed through to the vector
// store as-is. Supported operators: $eq, $ne, $gt, $gte, $lt, $lte, $in,
// $nin, $and, $or. A nil Filter matches everything.
type Filter map[string]any

// And builds a conjunction filter.
func And(filters ...Filter) Filter {
	clauses := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if len(f) > 0 {
			clauses = append(clauses, f)
		}
	}
	if len(clauses) == 0 {
		return nil
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return Filter{"$and": clauses}
}

// Eq builds a {field: {$eq: value}} filter clause.
func Eq(field string, value any) Filter { return Filter{field: Filter{"$eq": value}} }

// In builds a {field: {$in: values}} filter clause.
func In(field string, values []any) Filter { return Filter{field: Filter{"$in": values}} }

// UpsertBatch is one atomic write request: every id/text/metadata triple is
// applied, or none are.
type UpsertBatch struct {
	IDs       []string
	Texts     []string
	Metadatas []map[string]any
}

// QueryResult is the column-wise result of one Query call, one outer slice
// entry per input query text.
type QueryResult struct {
	IDs       [][]string
	Distances [][]float64
	Documents [][]string
	Metadatas [][]map[string]any
}

// GetResult is the column-wise result of a Get call.
type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]any
}

// VectorStore is the abstract external vector database client this pipeline
// depends on. Implementations must treat Upsert as atomic per call.
type VectorStore interface {
	GetOrCreateCollection(ctx context.Context, name string) (CollectionHandle, error)
	Upsert(ctx context.Context, handle CollectionHandle, batch UpsertBatch) error
	Delete(ctx context.Context, handle CollectionHandle, where Filter) error
	Query(ctx context.Context, handle CollectionHandle, texts []string, nResults int, where Filter) (QueryResult, error)
	Get(ctx context.Context, handle CollectionHandle, ids []string, where Filter, limit, offset int) (GetResult, error)
	Count(ctx context.Context, handle CollectionHandle, where Filter) (int, error)
}

// Embedder converts text into vectors. It is an opaque external
// collaborator; this pipeline never inspects its internals.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Tokenizer counts tokens for a string under a fixed encoding. Must be
// deterministic and safe for concurrent calls.
type Tokenizer interface {
	Count(text string) int
}
