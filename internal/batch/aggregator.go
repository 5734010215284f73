// Package batch implements the Batch Aggregator: accumulating documents
// under batch-size and token-sum thresholds and emitting flush decisions.
// The aggregator never talks to the vector store itself.
package batch

import "github.com/GetAdriAI/idxr/internal/domain"

// Flush is one emitted batch together with the reason it was cut.
// Checkpoint is whatever the caller attached to the last document in this
// flush via Add — typically a (byte offset, row index) pair — letting the
// caller persist resume progress that corresponds exactly to this flush,
// without re-deriving which rows it covers.
type Flush struct {
	Documents  []domain.Document
	Reason     domain.FlushReason
	Checkpoint any
}

// Aggregator accumulates pending documents under configurable thresholds.
type Aggregator struct {
	maxBatchDocs   int
	maxBatchTokens int

	pending     []domain.Document
	checkpoints []any
	tokensSum   int
}

// New builds an Aggregator. maxBatchDocs defaults to 128 when zero; a
// maxBatchTokens of zero disables the token-sum threshold and the
// single-over-safety check.
func New(maxBatchDocs, maxBatchTokens int) *Aggregator {
	if maxBatchDocs <= 0 {
		maxBatchDocs = 128
	}
	return &Aggregator{maxBatchDocs: maxBatchDocs, maxBatchTokens: maxBatchTokens}
}

// Add feeds one document into the aggregator, tagged with an opaque
// checkpoint value, and returns any flush that must happen as a result —
// either a threshold-reached flush of the existing buffer before this
// document is added, or (for an oversize single document) the
// existing-buffer flush followed immediately by a single-over-safety flush
// of this document alone.
func (a *Aggregator) Add(doc domain.Document, checkpoint any) []Flush {
	var flushes []Flush

	if a.isOverSafety(doc) {
		if len(a.pending) > 0 {
			flushes = append(flushes, a.drain(domain.ReasonThresholdReached))
		}
		flushes = append(flushes, Flush{Documents: []domain.Document{doc}, Reason: domain.ReasonSingleOverSafety, Checkpoint: checkpoint})
		return flushes
	}

	if len(a.pending) > 0 && a.wouldExceed(doc) {
		flushes = append(flushes, a.drain(domain.ReasonThresholdReached))
	}

	a.pending = append(a.pending, doc)
	a.checkpoints = append(a.checkpoints, checkpoint)
	a.tokensSum += doc.TokenCount
	return flushes
}

// FlushEOF emits the final flush of any remaining pending documents, with
// reason eof. Returns nil if the buffer is empty.
func (a *Aggregator) FlushEOF() *Flush {
	if len(a.pending) == 0 {
		return nil
	}
	f := a.drain(domain.ReasonEOF)
	return &f
}

// Pending returns the number of documents currently buffered.
func (a *Aggregator) Pending() int { return len(a.pending) }

func (a *Aggregator) isOverSafety(doc domain.Document) bool {
	if a.maxBatchTokens <= 0 {
		return false
	}
	return doc.TokenCount > a.maxBatchTokens
}

func (a *Aggregator) wouldExceed(doc domain.Document) bool {
	if len(a.pending)+1 > a.maxBatchDocs {
		return true
	}
	if a.maxBatchTokens > 0 && a.tokensSum+doc.TokenCount > a.maxBatchTokens {
		return true
	}
	return false
}

func (a *Aggregator) drain(reason domain.FlushReason) Flush {
	docs := a.pending
	checkpoints := a.checkpoints
	a.pending = nil
	a.checkpoints = nil
	a.tokensSum = 0
	var last any
	if len(checkpoints) > 0 {
		last = checkpoints[len(checkpoints)-1]
	}
	return Flush{Documents: docs, Reason: reason, Checkpoint: last}
}
