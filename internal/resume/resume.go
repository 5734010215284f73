// Package resume implements the Resume Store: per-partition, per-collection
// JSON checkpoints tracking byte offset, row index, and completion for each
// model stream, plus a companion RoaringBitmap of flushed row indices used
// as a diagnostic integrity check.
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/GetAdriAI/idxr/internal/domain"
)

// resumeSuffix and bitmapSuffix name the two sidecar files per collection
// within a partition directory.
const (
	resumeSuffix = "_resume_state.json"
	bitmapSuffix = "_resume_state.rbm"
)

// State is the full per-collection resume document: a map from model name
// to its resume record.
type State map[string]domain.ResumeRecord

// Store reads and writes resume state for one partition directory.
type Store struct {
	partitionDir string
}

// New builds a Store rooted at the given partition output directory.
func New(partitionDir string) *Store {
	return &Store{partitionDir: partitionDir}
}

// Path returns the resume state file path for a given collection name.
func (s *Store) Path(collection string) string {
	return filepath.Join(s.partitionDir, collection+resumeSuffix)
}

func (s *Store) bitmapPath(collection string) string {
	return filepath.Join(s.partitionDir, collection+bitmapSuffix)
}

// Read loads the resume state for a collection. A missing file yields an
// empty state; a malformed file yields an empty state plus a warning
// message for the caller to log.
func (s *Store) Read(collection string) (State, string) {
	data, err := os.ReadFile(s.Path(collection))
	if os.IsNotExist(err) {
		return State{}, ""
	}
	if err != nil {
		return State{}, fmt.Sprintf("resume: reading %s: %v", s.Path(collection), err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Sprintf("resume: malformed resume state %s, treating as empty: %v", s.Path(collection), err)
	}
	return state, ""
}

// Write atomically persists state via write-to-temp-then-rename.
func (s *Store) Write(collection string, state State) error {
	if err := os.MkdirAll(s.partitionDir, 0o755); err != nil {
		return fmt.Errorf("resume: creating partition dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("resume: marshalling: %w", err)
	}
	path := s.Path(collection)
	tmp, err := os.CreateTemp(s.partitionDir, ".resume-*.tmp")
	if err != nil {
		return fmt.Errorf("resume: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("resume: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("resume: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("resume: renaming into place: %w", err)
	}
	return nil
}

// ExtendBitmap records rows [priorRowIndex, newRowIndex) as flushed for
// model within collection's integrity bitmap. Rows are always processed in
// strict source order, so this is always a single contiguous extension.
func (s *Store) ExtendBitmap(collection, model string, priorRowIndex, newRowIndex int) error {
	bm, path, err := s.loadBitmap(collection, model)
	if err != nil {
		return err
	}
	for i := priorRowIndex; i < newRowIndex; i++ {
		bm.Add(uint32(i))
	}
	return s.saveBitmap(path, bm)
}

// CheckIntegrity compares the bitmap's cardinality against the resume
// record's row_index, returning a warning string (empty if consistent).
// This is a diagnostic aid only, never a correctness gate: the JSON
// checkpoint alone carries the correctness invariant.
func (s *Store) CheckIntegrity(collection, model string, rowIndex int) string {
	bm, _, err := s.loadBitmap(collection, model)
	if err != nil {
		return fmt.Sprintf("resume: could not load integrity bitmap for %s/%s: %v", collection, model, err)
	}
	if int(bm.GetCardinality()) != rowIndex {
		return fmt.Sprintf("resume: integrity bitmap cardinality %d does not match row_index %d for %s/%s", bm.GetCardinality(), rowIndex, collection, model)
	}
	return ""
}

func (s *Store) loadBitmap(collection, model string) (*roaring.Bitmap, string, error) {
	path := s.modelBitmapPath(collection, model)
	bm := roaring.New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return bm, path, nil
	}
	if err != nil {
		return nil, path, err
	}
	if err := bm.UnmarshalBinary(data); err != nil {
		// malformed bitmap is a diagnostic concern only; start fresh
		return roaring.New(), path, nil
	}
	return bm, path, nil
}

func (s *Store) saveBitmap(path string, bm *roaring.Bitmap) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := bm.ToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) modelBitmapPath(collection, model string) string {
	base := strings.TrimSuffix(s.bitmapPath(collection), bitmapSuffix)
	return base + "_" + sanitizeModel(model) + bitmapSuffix
}

func sanitizeModel(model string) string {
	return strings.ReplaceAll(model, "/", "_")
}

// ListCollections globs this partition directory for resume state files,
// returning the collection names they belong to.
func (s *Store) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(s.partitionDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), resumeSuffix) {
			names = append(names, strings.TrimSuffix(e.Name(), resumeSuffix))
		}
	}
	return names, nil
}
