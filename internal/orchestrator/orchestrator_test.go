package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/GetAdriAI/idxr/internal/collection"
	"github.com/GetAdriAI/idxr/internal/document"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/embedding"
	"github.com/GetAdriAI/idxr/internal/indexer"
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

func newTestIndexer(t *testing.T, outRoot string) *indexer.Indexer {
	t.Helper()
	store, err := localstore.Open(filepath.Join(outRoot, "store.db"), embedding.NewMock(8))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := indexer.Deps{
		Store:    store,
		Strategy: collection.Single{Name: "shared"},
		Builder:  document.NewBuilder(tokenizer.New(), 100000, domain.StrategyAuto),
		OutRoot:  outRoot,
	}
	return indexer.New(deps, indexer.Config{Resume: true})
}

func partitionWithCSV(t *testing.T, outRoot, name string) domain.Partition {
	t.Helper()
	csvPath := filepath.Join(outRoot, name+".csv")
	writeCSV(t, csvPath, "id,title\np1,Widget\n")
	return domain.Partition{
		Name:           name,
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: csvPath}},
	}
}

type stubRouter struct {
	owned map[string]bool
}

func (r stubRouter) IsHomeNode(partitionName string) bool { return r.owned[partitionName] }

func TestRun_ReturnsNilWhenNoPartitionsOwned(t *testing.T) {
	outRoot := t.TempDir()
	ix := newTestIndexer(t, outRoot)
	o := New(ix, Config{Workers: 2}, stubRouter{owned: map[string]bool{}}, nil)

	partitions := []domain.Partition{partitionWithCSV(t, outRoot, "partition_00000")}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcomes := o.Run(context.Background(), partitions, []string{"products"}, registry)
	if outcomes != nil {
		t.Errorf("expected nil outcomes when the router owns nothing, got %v", outcomes)
	}
}

func TestRun_IndexesAllOwnedPartitionsSuccessfully(t *testing.T) {
	outRoot := t.TempDir()
	ix := newTestIndexer(t, outRoot)
	o := New(ix, Config{Workers: 2}, nil, nil)

	partitions := []domain.Partition{
		partitionWithCSV(t, outRoot, "partition_00000"),
		partitionWithCSV(t, outRoot, "partition_00001"),
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcomes := o.Run(context.Background(), partitions, []string{"products"}, registry)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, oc := range outcomes {
		if oc.Err != nil {
			t.Errorf("expected partition %s to succeed, got %v", oc.Partition, oc.Err)
		}
		if oc.Retried {
			t.Errorf("did not expect partition %s to have been retried", oc.Partition)
		}
	}
}

func TestRun_RestrictsToRouterOwnedPartitions(t *testing.T) {
	outRoot := t.TempDir()
	ix := newTestIndexer(t, outRoot)
	o := New(ix, Config{Workers: 2}, stubRouter{owned: map[string]bool{"partition_00001": true}}, nil)

	partitions := []domain.Partition{
		partitionWithCSV(t, outRoot, "partition_00000"),
		partitionWithCSV(t, outRoot, "partition_00001"),
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcomes := o.Run(context.Background(), partitions, []string{"products"}, registry)
	if len(outcomes) != 1 || outcomes[0].Partition != "partition_00001" {
		t.Errorf("expected only the router-owned partition to run, got %v", outcomes)
	}
}

func TestRun_RetriesTransientFailureAfterFirstPass(t *testing.T) {
	outRoot := t.TempDir()
	ix := newTestIndexer(t, outRoot)
	o := New(ix, Config{Workers: 1}, nil, nil)

	partitions := []domain.Partition{partitionWithCSV(t, outRoot, "partition_00000")}
	// A partition referencing a model absent from the registry fails with a
	// plain wrapped error, which errs.Classify defaults to ClassTransient.
	partitions[0].ModelFiles["ghost"] = domain.ModelFile{Path: "unused.csv"}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcomes := o.Run(context.Background(), partitions, []string{"products", "ghost"}, registry)
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Err == nil {
		t.Fatal("expected the unregistered-model failure to persist across the retry")
	}
	if !outcomes[0].Retried {
		t.Error("expected a transient-classified failure to be retried")
	}
}

func TestRun_DoesNotRetryNonTransientFailure(t *testing.T) {
	outRoot := t.TempDir()
	ix := newTestIndexer(t, outRoot)
	o := New(ix, Config{Workers: 1}, nil, nil)

	partition := domain.Partition{
		Name:           "partition_00000",
		SchemaVersions: map[string]int{"products": 1},
		ModelFiles:     map[string]domain.ModelFile{"products": {Path: filepath.Join(outRoot, "missing.csv")}},
	}
	registry := map[string]domain.ModelSpec{"products": productsSpec(t)}

	outcomes := o.Run(context.Background(), []domain.Partition{partition}, []string{"products"}, registry)
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Err == nil {
		t.Fatal("expected a missing source file to be a fatal error")
	}
	if outcomes[0].Retried {
		t.Error("expected a DataFormatError-classified failure not to be retried")
	}
}

func TestNew_DefaultsWorkersToOne(t *testing.T) {
	o := New(nil, Config{Workers: 0}, nil, nil)
	if o.cfg.Workers != 1 {
		t.Errorf("expected Workers to default to 1, got %d", o.cfg.Workers)
	}
}
