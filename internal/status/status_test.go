package status

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/errreport"
	"github.com/GetAdriAI/idxr/internal/resume"
)

func TestClassify_NotStarted(t *testing.T) {
	st, err := Classify(t.TempDir(), "products", domain.ResumeRecord{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.StatusNotStarted {
		t.Errorf("expected NOT_STARTED, got %v", st)
	}
}

func TestClassify_Complete(t *testing.T) {
	st, err := Classify(t.TempDir(), "products", domain.ResumeRecord{Started: true, Complete: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.StatusComplete {
		t.Errorf("expected COMPLETE, got %v", st)
	}
}

func TestClassify_StartedNoErrors(t *testing.T) {
	dir := t.TempDir()
	st, err := Classify(dir, "products", domain.ResumeRecord{Started: true, RowIndex: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.StatusStarted {
		t.Errorf("expected STARTED, got %v", st)
	}
}

func writeErrorReport(t *testing.T, partitionDir, model string, rowIndex int) {
	_, err := errreport.Write(partitionDir, errreport.Report{
		ModelName:  model,
		RowNumbers: []int{rowIndex},
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("writing error report: %v", err)
	}
}

func TestClassify_ErroredWhenErrorAtOrPastResumeRow(t *testing.T) {
	dir := t.TempDir()
	writeErrorReport(t, dir, "products", 10)
	st, err := Classify(dir, "products", domain.ResumeRecord{Started: true, RowIndex: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.StatusErrored {
		t.Errorf("expected ERRORED, got %v", st)
	}
}

func TestClassify_StartedWhenProgressPastLastError(t *testing.T) {
	dir := t.TempDir()
	writeErrorReport(t, dir, "products", 3)
	st, err := Classify(dir, "products", domain.ResumeRecord{Started: true, RowIndex: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != domain.StatusStarted {
		t.Errorf("expected STARTED once progress passes the last recorded error, got %v", st)
	}
}

func TestScan_CollectsEveryCollection(t *testing.T) {
	outRoot := t.TempDir()
	partitionDir := filepath.Join(outRoot, "partition_a")
	store := resume.New(partitionDir)
	if err := store.Write("shared", resume.State{
		"products": {Started: true, Complete: true},
		"reviews":  {Started: true},
	}); err != nil {
		t.Fatalf("writing resume state: %v", err)
	}

	rows, err := Scan(outRoot, "partition_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Partition != "partition_a" {
			t.Errorf("expected partition_a, got %q", r.Partition)
		}
	}
}

func TestScan_SurfacesIntegrityWarningOnBitmapMismatch(t *testing.T) {
	outRoot := t.TempDir()
	partitionDir := filepath.Join(outRoot, "partition_b")
	store := resume.New(partitionDir)
	if err := store.Write("shared", resume.State{
		"products": {Started: true, RowIndex: 5},
	}); err != nil {
		t.Fatalf("writing resume state: %v", err)
	}
	// No bitmap extension recorded, so its cardinality (0) mismatches row_index (5).

	rows, err := Scan(outRoot, "partition_b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].IntegrityWarning == "" {
		t.Fatalf("expected an integrity warning for the mismatched bitmap, got %+v", rows)
	}
}

func TestScan_NoIntegrityWarningWhenBitmapMatches(t *testing.T) {
	outRoot := t.TempDir()
	partitionDir := filepath.Join(outRoot, "partition_c")
	store := resume.New(partitionDir)
	if err := store.ExtendBitmap("shared", "products", 0, 5); err != nil {
		t.Fatalf("extending bitmap: %v", err)
	}
	if err := store.Write("shared", resume.State{
		"products": {Started: true, RowIndex: 5},
	}); err != nil {
		t.Fatalf("writing resume state: %v", err)
	}

	rows, err := Scan(outRoot, "partition_c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].IntegrityWarning != "" {
		t.Fatalf("expected no integrity warning when the bitmap matches row_index, got %+v", rows)
	}
}
