// Package domain holds the core types shared across the indexing pipeline:
// model schemas, documents, partitions, the manifest, resume checkpoints and
// error reports.
package domain

import "time"

// ModelSpec is a named schema descriptor for one tabular model within a
// partition. It is built once at registry load time and is read-only
// afterwards; the same ModelSpec value is shared across every partition that
// carries this model.
type ModelSpec struct {
	Name                       string
	FieldOrder                 []string
	SemanticFields             []string
	KeywordFields              []string
	KeyFields                  []string
	SchemaSignature            string
	TruncationStrategyOverride TruncationStrategy
	Validate                   func(row map[string]any) (map[string]any, error)
}

// HasTruncationOverride reports whether this model pins a truncation
// strategy rather than deferring to the caller default / auto selection.
func (m ModelSpec) HasTruncationOverride() bool {
	return m.TruncationStrategyOverride != ""
}

// TruncationStrategy is the closed set of Truncator strategies.
type TruncationStrategy string

const (
	StrategyEnd        TruncationStrategy = "end"
	StrategyStart       TruncationStrategy = "start"
	StrategyMiddleOut  TruncationStrategy = "middle_out"
	StrategySentences  TruncationStrategy = "sentences"
	StrategyAuto       TruncationStrategy = "auto"
)

// Document is one unit of ingestion, ready to be handed to the Batch
// Aggregator and eventually upserted into a vector-store collection.
type Document struct {
	ID                 string
	Text                string
	Metadata            map[string]any
	TokenCount          int
	Truncated           bool
	OriginalTokenCount  int
	TruncationStrategy  TruncationStrategy
	HasSemanticText     bool
}

// Metadata fixed keys, per the data model.
const (
	MetaModelName          = "model_name"
	MetaPartitionName      = "partition_name"
	MetaSchemaVersion      = "schema_version"
	MetaSourcePath         = "source_path"
	MetaHasSem             = "has_sem"
	MetaTruncated          = "truncated"
	MetaOriginalTokens     = "original_tokens"
	MetaTruncationStrategy = "truncation_strategy"
)

// Partition is the on-disk directory unit produced by the upstream
// sanitiser, registered in the manifest.
type Partition struct {
	Name           string
	SchemaVersions map[string]int
	ModelFiles     map[string]ModelFile
	CreatedAt      time.Time
	Replaces       []string
	Stale          bool
	Deleted        bool
	DeletedAt      *time.Time
	DropReason     string
}

// ModelFile locates one model's prepared source file and digest sidecar
// within a partition.
type ModelFile struct {
	Path        string
	DigestPath  string
	Deleted     bool
	DeletedAt   *time.Time
	DropReason  string
}

// SourceSignature is the {mtime, size} pair used to detect whether a
// partition's prepared file changed since the last completed run.
type SourceSignature struct {
	ModTime time.Time `json:"mtime"`
	Size    int64     `json:"size"`
}

// Equal reports whether two signatures describe the same file state.
func (s SourceSignature) Equal(o SourceSignature) bool {
	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}

// ResumeRecord is the per-model entry inside a partition-collection's resume
// state file.
type ResumeRecord struct {
	Complete          bool            `json:"complete"`
	Started           bool            `json:"started"`
	DocumentsIndexed  int             `json:"documents_indexed"`
	CollectionCount   int             `json:"collection_count"`
	IndexedAt         time.Time       `json:"indexed_at"`
	SourceSignature   SourceSignature `json:"source_signature"`
	FileOffset        int64           `json:"file_offset"`
	RowIndex          int             `json:"row_index"`
	Fieldnames        []string        `json:"fieldnames,omitempty"`
}

// Status is the closed set of process-level status classifications.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusStarted    Status = "STARTED"
	StatusComplete   Status = "COMPLETE"
	StatusErrored    Status = "ERRORED"
)

// FlushReason is the closed set of reasons a Batch Aggregator may report for
// a flush.
type FlushReason string

const (
	ReasonThresholdReached FlushReason = "threshold-reached"
	ReasonSingleOverSafety FlushReason = "single-over-safety"
	ReasonEOF              FlushReason = "eof"
)

// ErrorClass is the closed taxonomy of failure classes from a vector-store
// interaction or row processing step.
type ErrorClass string

const (
	ClassTransient   ErrorClass = "transient"
	ClassAuthConfig  ErrorClass = "auth_config"
	ClassValidation  ErrorClass = "validation"
	ClassOverLimit   ErrorClass = "over_limit"
	ClassDuplicateID ErrorClass = "duplicate_id"
	ClassDataFormat  ErrorClass = "data_format"
)

// CollectionStrategyKind selects how partitions map to concrete collections.
type CollectionStrategyKind string

const (
	CollectionStrategySingle       CollectionStrategyKind = "single"
	CollectionStrategyPerPartition CollectionStrategyKind = "per_partition"
)
