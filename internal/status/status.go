// Package status classifies each partition-model's process-level status by
// combining its Resume Store record with its Error Report directory.
package status

import (
	"path/filepath"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/errreport"
	"github.com/GetAdriAI/idxr/internal/resume"
)

// ModelStatus is one partition-model's classified status.
type ModelStatus struct {
	Partition        string
	Model            string
	Status           domain.Status
	Record           domain.ResumeRecord
	IntegrityWarning string
}

// Classify applies the status derivation rule: COMPLETE when resume has
// complete=true; ERRORED when the errors directory is non-empty and its
// maximum row_index is >= the resume record's row_index (the indexer has
// not progressed past the last recorded failure); STARTED when started but
// not complete or errored; NOT_STARTED otherwise.
func Classify(partitionDir, model string, record domain.ResumeRecord) (domain.Status, error) {
	if record.Complete {
		return domain.StatusComplete, nil
	}
	if !record.Started {
		return domain.StatusNotStarted, nil
	}

	maxRow, err := errreport.MaxRowIndex(partitionDir, model)
	if err != nil {
		return "", err
	}
	if maxRow >= 0 && maxRow >= record.RowIndex {
		return domain.StatusErrored, nil
	}
	return domain.StatusStarted, nil
}

// Scan classifies every model recorded in every collection resume file
// under partitionDir.
func Scan(outRoot, partitionName string) ([]ModelStatus, error) {
	partitionDir := filepath.Join(outRoot, partitionName)
	store := resume.New(partitionDir)

	collections, err := store.ListCollections()
	if err != nil {
		return nil, err
	}

	var out []ModelStatus
	for _, collection := range collections {
		state, warn := store.Read(collection)
		_ = warn // surfaced by the caller's logger if it wants; not fatal here
		for model, record := range state {
			st, err := Classify(partitionDir, model, record)
			if err != nil {
				return nil, err
			}
			warning := store.CheckIntegrity(collection, model, record.RowIndex)
			out = append(out, ModelStatus{Partition: partitionName, Model: model, Status: st, Record: record, IntegrityWarning: warning})
		}
	}
	return out, nil
}
