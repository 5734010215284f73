package resume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GetAdriAI/idxr/internal/domain"
)

func TestRead_MissingFileReturnsEmptyStateNoWarning(t *testing.T) {
	s := New(t.TempDir())
	state, warn := s.Read("products")
	if warn != "" {
		t.Errorf("expected no warning for a missing file, got %q", warn)
	}
	if len(state) != 0 {
		t.Errorf("expected an empty state, got %v", state)
	}
}

func TestWriteThenRead_RoundTrips(t *testing.T) {
	s := New(t.TempDir())
	state := State{"products": domain.ResumeRecord{Complete: true, RowIndex: 42}}
	if err := s.Write("products", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, warn := s.Read("products")
	if warn != "" {
		t.Errorf("unexpected warning: %q", warn)
	}
	if !got["products"].Complete || got["products"].RowIndex != 42 {
		t.Errorf("unexpected round-tripped record: %+v", got["products"])
	}
}

func TestRead_MalformedFileReturnsEmptyStateAndWarning(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := s.Path("products")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing malformed file: %v", err)
	}

	state, warn := s.Read("products")
	if warn == "" {
		t.Error("expected a warning for a malformed resume state file")
	}
	if len(state) != 0 {
		t.Errorf("expected an empty state on malformed input, got %v", state)
	}
}

func TestExtendBitmapAndCheckIntegrity_ConsistentAfterMatchingExtension(t *testing.T) {
	s := New(t.TempDir())
	if err := s.ExtendBitmap("products", "widgets", 0, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn := s.CheckIntegrity("products", "widgets", 5); warn != "" {
		t.Errorf("expected consistent integrity check, got warning %q", warn)
	}
}

func TestCheckIntegrity_WarnsOnCardinalityMismatch(t *testing.T) {
	s := New(t.TempDir())
	if err := s.ExtendBitmap("products", "widgets", 0, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn := s.CheckIntegrity("products", "widgets", 99); warn == "" {
		t.Error("expected a warning when cardinality does not match row_index")
	}
}

func TestListCollections_FindsOnlyResumeStateFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.Write("products", State{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Write("reviews", State{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing unrelated file: %v", err)
	}

	names, err := s.ListCollections()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 collections, got %v", names)
	}
}

func TestListCollections_MissingDirReturnsNilNoError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"))
	names, err := s.ListCollections()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if names != nil {
		t.Errorf("expected nil names for a missing directory, got %v", names)
	}
}
