package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/GetAdriAI/idxr/internal/collection"
	"github.com/GetAdriAI/idxr/internal/document"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/embedding"
	"github.com/GetAdriAI/idxr/internal/resume"
	"github.com/GetAdriAI/idxr/internal/schema"
	"github.com/GetAdriAI/idxr/internal/tokenizer"
	"github.com/GetAdriAI/idxr/internal/vectorstore/localstore"
)

func productsSpec(t *testing.T) domain.ModelSpec {
	t.Helper()
	spec, err := schema.Definition{
		Name:           "products",
		Fields:         []schema.FieldDef{{Name: "id", Type: schema.FieldString, Required: true}, {Name: "title", Type: schema.FieldString, Required: true}},
		SemanticFields: []string{"title"},
		KeyFields:      []string{"id"},
	}.Build()
	if err != nil {
		t.Fatalf("building spec: %v", err)
	}
	return spec
}

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
}

func newTestIndexer(t *testing.T, outRoot string, resume bool) (*Indexer, *localstore.Store) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(outRoot, "store.db"), embedding.NewMock(8))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := Deps{
		Store:    store,
		Strategy: collection.Single{Name: "shared"},
		Builder:  document.NewBuilder(tokenizer.New(), 100000, domain.StrategyAuto),
		OutRoot:  outRoot,
	}
	return New(deps, Config{Resume: resume}), store
}

func TestIndexPartition_IndexesAllRows(t *testing.T) {
	outRoot := t.TempDir()
	csvPath := filepath.Join(outRoot, "products.csv")
	writeCSV(t, csvPath, "id,title\np1,Widget\np2,Gadget\n")

	ix, store := newTestIndexer(t, outRoot, true)
	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: csvPath}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcome, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Models) != 1 || !outcome.Models[0].Complete {
		t.Fatalf("expected a single complete model outcome, got %+v", outcome.Models)
	}
	if outcome.Models[0].DocumentsIndexed != 2 {
		t.Errorf("expected 2 documents indexed, got %d", outcome.Models[0].DocumentsIndexed)
	}

	handle, err := store.GetOrCreateCollection(context.Background(), "shared")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := store.Count(context.Background(), handle, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 entries in the vector store, got %d", count)
	}
}

func TestIndexPartition_SkipsDeletedModelFiles(t *testing.T) {
	outRoot := t.TempDir()
	ix, _ := newTestIndexer(t, outRoot, true)
	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: "unused.csv", Deleted: true}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcome, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Models) != 0 {
		t.Errorf("expected a deleted model file to be skipped entirely, got %+v", outcome.Models)
	}
}

func TestIndexPartition_UnregisteredModelIsFatal(t *testing.T) {
	outRoot := t.TempDir()
	ix, _ := newTestIndexer(t, outRoot, true)
	partition := domain.Partition{
		Name:       "partition_00000",
		ModelFiles: map[string]domain.ModelFile{"products": {Path: "unused.csv"}},
	}
	if _, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, map[string]domain.ModelSpec{}); err == nil {
		t.Error("expected an error for a partition referencing an unregistered model")
	}
}

func TestIndexPartition_ResumeSkipsUnchangedCompletedSource(t *testing.T) {
	outRoot := t.TempDir()
	csvPath := filepath.Join(outRoot, "products.csv")
	writeCSV(t, csvPath, "id,title\np1,Widget\n")

	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: csvPath}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	store1, err := localstore.Open(filepath.Join(outRoot, "store.db"), embedding.NewMock(8))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	deps := Deps{
		Store:    store1,
		Strategy: collection.Single{Name: "shared"},
		Builder:  document.NewBuilder(tokenizer.New(), 100000, domain.StrategyAuto),
		OutRoot:  outRoot,
	}
	ix := New(deps, Config{Resume: true})
	if _, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, registry); err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("closing store after first run: %v", err)
	}

	store2, err := localstore.Open(filepath.Join(outRoot, "store.db"), embedding.NewMock(8))
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer store2.Close()
	deps2 := deps
	deps2.Store = store2
	ix2 := New(deps2, Config{Resume: true})

	outcome, err := ix2.IndexPartition(context.Background(), partition, []string{"products"}, registry)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if !outcome.Models[0].Skipped {
		t.Error("expected the second run to skip an unchanged, already-complete source")
	}
}

func TestIndexPartition_RowValidationFailureIsFatalAndWritesErrorReport(t *testing.T) {
	outRoot := t.TempDir()
	csvPath := filepath.Join(outRoot, "products.csv")
	writeCSV(t, csvPath, "id\np1\n")

	ix, _ := newTestIndexer(t, outRoot, true)
	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: csvPath}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	_, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, registry)
	if err == nil {
		t.Fatal("expected a fatal error for a row missing its required title column entirely")
	}

	entries, readErr := os.ReadDir(filepath.Join(outRoot, "partition_00000", "errors"))
	if readErr != nil || len(entries) == 0 {
		t.Errorf("expected an error report to be written, got entries=%v err=%v", entries, readErr)
	}
}

func TestIndexPartition_FlushExtendsResumeIntegrityBitmap(t *testing.T) {
	outRoot := t.TempDir()
	csvPath := filepath.Join(outRoot, "products.csv")
	writeCSV(t, csvPath, "id,title\np1,Widget\np2,Gadget\np3,Gizmo\n")

	ix, _ := newTestIndexer(t, outRoot, true)
	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: csvPath}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	if _, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, registry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store := resume.New(filepath.Join(outRoot, "partition_00000"))
	state, warn := store.Read("shared")
	if warn != "" {
		t.Fatalf("unexpected resume read warning: %s", warn)
	}
	record, ok := state["products"]
	if !ok {
		t.Fatal("expected a resume record for products")
	}
	if got := store.CheckIntegrity("shared", "products", record.RowIndex); got != "" {
		t.Errorf("expected the flush to have extended the integrity bitmap to match row_index, got warning: %s", got)
	}
}

func TestIndexPartition_WritesResumeStateAfterEachModel(t *testing.T) {
	outRoot := t.TempDir()
	csvPath := filepath.Join(outRoot, "products.csv")
	writeCSV(t, csvPath, "id,title\np1,Widget\n")

	ix, _ := newTestIndexer(t, outRoot, true)
	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: csvPath}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	if _, err := ix.IndexPartition(context.Background(), partition, []string{"products"}, registry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resumeFile := filepath.Join(outRoot, "partition_00000", "shared_resume_state.json")
	if _, err := os.Stat(resumeFile); err != nil {
		t.Errorf("expected a resume state file to be written, got %v", err)
	}
}
