// Package indexer implements the Partition Indexer: the core state machine
// that streams one partition's models into their target collections with
// resume checkpoints, batch flushing, and error reporting.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/GetAdriAI/idxr/internal/batch"
	"github.com/GetAdriAI/idxr/internal/collection"
	"github.com/GetAdriAI/idxr/internal/csvrow"
	"github.com/GetAdriAI/idxr/internal/document"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/errreport"
	"github.com/GetAdriAI/idxr/internal/errs"
	"github.com/GetAdriAI/idxr/internal/port"
	"github.com/GetAdriAI/idxr/internal/resume"
)

// Metrics is the narrow slice of observability hooks the indexer calls;
// nil-safe no-op values satisfy it trivially so tests need no Prometheus
// wiring.
type Metrics interface {
	DocumentsFlushed(partition, model string, n int)
	TokensFlushed(partition, model string, n int)
	BatchFlushed(partition, model string, reason domain.FlushReason)
	TruncationPerformed(partition, model string, strategy domain.TruncationStrategy)
	FlushLatency(partition, model string, d time.Duration)
}

// NoopMetrics discards every call.
type NoopMetrics struct{}

func (NoopMetrics) DocumentsFlushed(string, string, int)                    {}
func (NoopMetrics) TokensFlushed(string, string, int)                       {}
func (NoopMetrics) BatchFlushed(string, string, domain.FlushReason)         {}
func (NoopMetrics) TruncationPerformed(string, string, domain.TruncationStrategy) {}
func (NoopMetrics) FlushLatency(string, string, time.Duration)              {}

// Deps are the Partition Indexer's collaborators.
type Deps struct {
	Store    port.VectorStore
	Strategy collection.Strategy
	Builder  *document.Builder
	OutRoot  string
	Logger   *slog.Logger
	Metrics  Metrics
}

// Config are the per-run tunables.
type Config struct {
	MaxBatchDocs   int
	MaxBatchTokens int
	Resume         bool
}

// ModelOutcome summarises one model's processing within a partition.
type ModelOutcome struct {
	ModelName        string
	DocumentsIndexed int
	Skipped          bool // source unchanged, resume short-circuit
	Complete         bool
}

// Outcome summarises one partition run.
type Outcome struct {
	Partition string
	Models    []ModelOutcome
}

// Indexer runs the Partition Indexer state machine over a registry of
// models for one partition at a time.
type Indexer struct {
	deps Deps
	cfg  Config
}

// New builds an Indexer. A nil Metrics defaults to NoopMetrics and a nil
// Logger defaults to slog.Default().
func New(deps Deps, cfg Config) *Indexer {
	if deps.Metrics == nil {
		deps.Metrics = NoopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxBatchDocs <= 0 {
		cfg.MaxBatchDocs = 128
	}
	return &Indexer{deps: deps, cfg: cfg}
}

// checkpoint is the resume position attached to each document fed into the
// Batch Aggregator, recovered verbatim when a flush fires.
type checkpoint struct {
	offset   int64
	rowIndex int
}

// IndexPartition runs every model in modelOrder (filtered to those present
// in partition.ModelFiles) against its ModelSpec from registry, in order.
// Per the fail-stop propagation policy, the first irrecoverable failure in
// any model stops the whole partition — no further models are attempted.
func (ix *Indexer) IndexPartition(ctx context.Context, partition domain.Partition, modelOrder []string, registry map[string]domain.ModelSpec) (Outcome, error) {
	partitionDir := filepath.Join(ix.deps.OutRoot, partition.Name)
	resumeStore := resume.New(partitionDir)

	out := Outcome{Partition: partition.Name}

	collectionName, err := ix.deps.Strategy.CollectionFor(partition.Name)
	if err != nil {
		return out, fmt.Errorf("indexer: resolving collection for partition %s: %w", partition.Name, err)
	}
	handle, err := ix.deps.Store.GetOrCreateCollection(ctx, collectionName)
	if err != nil {
		return out, fmt.Errorf("indexer: opening collection %s: %w", collectionName, err)
	}

	state, warn := resumeStore.Read(collectionName)
	if warn != "" {
		ix.deps.Logger.Warn(warn)
	}

	for _, modelName := range modelOrder {
		file, ok := partition.ModelFiles[modelName]
		if !ok || file.Deleted {
			continue
		}
		spec, ok := registry[modelName]
		if !ok {
			return out, fmt.Errorf("indexer: partition %s references unregistered model %q", partition.Name, modelName)
		}
		schemaVersion := partition.SchemaVersions[modelName]

		modelOutcome, record, err := ix.indexModel(ctx, partition.Name, partitionDir, collectionName, handle, modelName, spec, file.Path, schemaVersion, state[modelName])
		out.Models = append(out.Models, modelOutcome)

		if state == nil {
			state = resume.State{}
		}
		state[modelName] = record
		if werr := resumeStore.Write(collectionName, state); werr != nil {
			ix.deps.Logger.Error("indexer: persisting resume state failed", "partition", partition.Name, "model", modelName, "error", werr)
		}

		if err != nil {
			return out, fmt.Errorf("indexer: partition %s stopped at model %s: %w", partition.Name, modelName, err)
		}
	}
	return out, nil
}

// indexModel runs the row loop for one model, returning its outcome and the
// resume record to persist. A non-nil error is always fatal to the whole
// partition per the propagation policy.
func (ix *Indexer) indexModel(ctx context.Context, partitionName, partitionDir, collectionName string, handle port.CollectionHandle, modelName string, spec domain.ModelSpec, sourcePath string, schemaVersion int, prior domain.ResumeRecord) (ModelOutcome, domain.ResumeRecord, error) {
	outcome := ModelOutcome{ModelName: modelName}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return outcome, prior, &errs.DataFormatError{Message: fmt.Sprintf("stat %s: %v", sourcePath, err)}
	}
	signature := domain.SourceSignature{ModTime: info.ModTime(), Size: info.Size()}

	if ix.cfg.Resume && prior.Complete && prior.SourceSignature.Equal(signature) {
		outcome.Skipped = true
		outcome.Complete = true
		outcome.DocumentsIndexed = prior.CollectionCount
		return outcome, prior, nil
	}

	restart := !ix.cfg.Resume || prior.Complete || !prior.SourceSignature.Equal(signature)
	var record domain.ResumeRecord
	if restart {
		// disabled resume, prior run completed (signature must have since
		// changed to reach here), or a changed source: start from the top.
		record = domain.ResumeRecord{Started: true, SourceSignature: signature}
	} else {
		record = prior
		record.Started = true
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return outcome, record, &errs.DataFormatError{Message: fmt.Sprintf("opening %s: %v", sourcePath, err)}
	}
	defer f.Close()

	var reader *csvrow.Reader
	if record.FileOffset > 0 {
		if _, err := f.Seek(record.FileOffset, io.SeekStart); err != nil {
			return outcome, record, &errs.DataFormatError{Message: fmt.Sprintf("seeking %s to %d: %v", sourcePath, record.FileOffset, err)}
		}
		reader = csvrow.New(f, record.FileOffset)
		reader.SetFieldnames(record.Fieldnames)
	} else {
		reader = csvrow.New(f, 0)
		names, err := reader.ReadHeader()
		if err != nil {
			return outcome, record, &errs.DataFormatError{Message: fmt.Sprintf("reading header of %s: %v", sourcePath, err)}
		}
		record.Fieldnames = names
	}

	aggregator := batch.New(ix.cfg.MaxBatchDocs, ix.cfg.MaxBatchTokens)
	rowIndex := record.RowIndex
	documentsIndexed := record.CollectionCount

	flush := func(f batch.Flush) error {
		if len(f.Documents) == 0 {
			return nil
		}
		start := time.Now()
		err := ix.upsertWithDuplicateRetry(ctx, handle, f.Documents)
		ix.deps.Metrics.FlushLatency(partitionName, modelName, time.Since(start))
		if err != nil {
			ix.writeFlushErrorReport(partitionDir, modelName, collectionName, sourcePath, f, record, err)
			return err
		}

		ix.deps.Metrics.DocumentsFlushed(partitionName, modelName, len(f.Documents))
		tokens := 0
		for _, d := range f.Documents {
			tokens += d.TokenCount
			if d.Truncated {
				ix.deps.Metrics.TruncationPerformed(partitionName, modelName, d.TruncationStrategy)
			}
		}
		ix.deps.Metrics.TokensFlushed(partitionName, modelName, tokens)
		ix.deps.Metrics.BatchFlushed(partitionName, modelName, f.Reason)

		documentsIndexed += len(f.Documents)
		cp, ok := f.Checkpoint.(checkpoint)
		if ok {
			priorRowIndex := record.RowIndex
			record.FileOffset = cp.offset
			record.RowIndex = cp.rowIndex
			if berr := resume.New(partitionDir).ExtendBitmap(collectionName, modelName, priorRowIndex, cp.rowIndex); berr != nil {
				ix.deps.Logger.Error("indexer: extending resume integrity bitmap failed", "partition", partitionName, "model", modelName, "error", berr)
			}
		}
		record.CollectionCount = documentsIndexed
		record.DocumentsIndexed = documentsIndexed
		record.IndexedAt = time.Now().UTC()
		rs := resume.New(partitionDir)
		persisted, _ := rs.Read(collectionName)
		if persisted == nil {
			persisted = resume.State{}
		}
		persisted[modelName] = record
		if werr := rs.Write(collectionName, persisted); werr != nil {
			ix.deps.Logger.Error("indexer: persisting resume state after flush failed", "partition", partitionName, "model", modelName, "error", werr)
		}
		ix.deps.Logger.Info("indexer: flushed batch", "partition", partitionName, "model", modelName, "reason", f.Reason, "docs", len(f.Documents), "tokens", tokens)
		return nil
	}

	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return outcome, record, &errs.DataFormatError{Message: fmt.Sprintf("reading row of %s: %v", sourcePath, err)}
		}
		rowIndex++

		anyRow := make(map[string]any, len(row))
		for k, v := range row {
			anyRow[k] = v
		}
		validated, verr := spec.Validate(anyRow)
		if verr != nil {
			ix.writeValidationErrorReport(partitionDir, modelName, collectionName, sourcePath, rowIndex, record, verr)
			return outcome, record, verr
		}

		result, berr := ix.deps.Builder.Build(spec, validated, partitionName, sourcePath, schemaVersion)
		if berr != nil {
			return outcome, record, fmt.Errorf("building document for row %d: %w", rowIndex, berr)
		}
		if result.Skipped {
			ix.deps.Logger.Warn(result.SkipWarning)
			continue
		}

		cp := checkpoint{offset: reader.Offset(), rowIndex: rowIndex}
		for _, f := range aggregator.Add(result.Document, cp) {
			if err := flush(f); err != nil {
				return outcome, record, err
			}
		}
	}

	if f := aggregator.FlushEOF(); f != nil {
		if err := flush(*f); err != nil {
			return outcome, record, err
		}
	}

	record.Complete = true
	record.FileOffset = info.Size()
	record.IndexedAt = time.Now().UTC()

	outcome.Complete = true
	outcome.DocumentsIndexed = documentsIndexed
	return outcome, record, nil
}

// upsertWithDuplicateRetry performs the single permitted local retry: on a
// DuplicateID failure, it removes the offending ids from the batch and
// retries exactly once.
func (ix *Indexer) upsertWithDuplicateRetry(ctx context.Context, handle port.CollectionHandle, docs []domain.Document) error {
	upsertBatch := toUpsertBatch(docs)
	err := ix.deps.Store.Upsert(ctx, handle, upsertBatch)
	if err == nil {
		return nil
	}

	var dup *errs.DuplicateIDError
	if !errors.As(err, &dup) || len(dup.IDs) == 0 {
		return err
	}

	exclude := make(map[string]bool, len(dup.IDs))
	for _, id := range dup.IDs {
		exclude[id] = true
	}
	filtered := port.UpsertBatch{
		IDs:       make([]string, 0, len(upsertBatch.IDs)),
		Texts:     make([]string, 0, len(upsertBatch.IDs)),
		Metadatas: make([]map[string]any, 0, len(upsertBatch.IDs)),
	}
	for i, id := range upsertBatch.IDs {
		if exclude[id] {
			continue
		}
		filtered.IDs = append(filtered.IDs, id)
		filtered.Texts = append(filtered.Texts, upsertBatch.Texts[i])
		filtered.Metadatas = append(filtered.Metadatas, upsertBatch.Metadatas[i])
	}
	if len(filtered.IDs) == 0 {
		return nil
	}
	return ix.deps.Store.Upsert(ctx, handle, filtered)
}

func toUpsertBatch(docs []domain.Document) port.UpsertBatch {
	b := port.UpsertBatch{
		IDs:       make([]string, len(docs)),
		Texts:     make([]string, len(docs)),
		Metadatas: make([]map[string]any, len(docs)),
	}
	for i, d := range docs {
		b.IDs[i] = d.ID
		b.Texts[i] = d.Text
		b.Metadatas[i] = d.Metadata
	}
	return b
}

func (ix *Indexer) writeFlushErrorReport(partitionDir, modelName, collectionName, sourcePath string, f batch.Flush, record domain.ResumeRecord, cause error) {
	ids := make([]string, len(f.Documents))
	texts := make([]string, len(f.Documents))
	metas := make([]map[string]any, len(f.Documents))
	tokens := make([]int, len(f.Documents))
	total := 0
	for i, d := range f.Documents {
		ids[i] = d.ID
		texts[i] = d.Text
		metas[i] = d.Metadata
		tokens[i] = d.TokenCount
		total += d.TokenCount
	}
	cp, _ := f.Checkpoint.(checkpoint)

	report := errreport.Report{
		ModelName:        modelName,
		CollectionName:   collectionName,
		Reason:           string(errs.Classify(cause)),
		SourceCSV:        sourcePath,
		BatchSize:        len(f.Documents),
		DocumentIDs:      ids,
		Documents:        texts,
		Metadatas:        metas,
		RowNumbers:       []int{cp.rowIndex},
		TokenCounts:      tokens,
		TokenTotal:       total,
		ResumeState:      record,
		ExceptionType:    fmt.Sprintf("%T", cause),
		ExceptionMessage: cause.Error(),
		Timestamp:        time.Now(),
	}
	path, err := errreport.Write(partitionDir, report)
	if err != nil {
		ix.deps.Logger.Error("indexer: failed to write error report", "error", err)
		return
	}
	ix.deps.Logger.Error("indexer: batch flush failed", "model", modelName, "error", cause, "report", path)
}

func (ix *Indexer) writeValidationErrorReport(partitionDir, modelName, collectionName, sourcePath string, rowIndex int, record domain.ResumeRecord, cause error) {
	report := errreport.Report{
		ModelName:        modelName,
		CollectionName:   collectionName,
		Reason:           "validation",
		SourceCSV:        sourcePath,
		RowNumbers:       []int{rowIndex},
		ResumeState:      record,
		ExceptionType:    fmt.Sprintf("%T", cause),
		ExceptionMessage: cause.Error(),
		Timestamp:        time.Now(),
	}
	path, err := errreport.Write(partitionDir, report)
	if err != nil {
		ix.deps.Logger.Error("indexer: failed to write validation error report", "error", err)
		return
	}
	ix.deps.Logger.Error("indexer: row validation failed", "model", modelName, "row", rowIndex, "error", cause, "report", path)
}
