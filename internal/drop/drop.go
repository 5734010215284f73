// Package drop implements the Drop Plan Applier: reading a Drop Plan,
// deleting the selected (model, partition, schema_version) slice from the
// vector store, and recording the drop in the Manifest Store.
package drop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/GetAdriAI/idxr/internal/collection"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/manifest"
	"github.com/GetAdriAI/idxr/internal/port"
)

// ModelSelection names the partitions and schema versions of one model to
// drop, and the reason recorded in the manifest's audit log.
type ModelSelection struct {
	Partitions     []string `json:"partitions"`
	SchemaVersions []int    `json:"schema_versions"`
	Reason         string   `json:"reason"`
}

// Plan is the on-disk shape of a drop configuration.
type Plan struct {
	GeneratedAt    string                    `json:"generated_at"`
	SourceManifest string                    `json:"source_manifest"`
	Before         string                    `json:"before,omitempty"`
	Models         map[string]ModelSelection `json:"models"`
}

// Load reads and parses a drop plan file.
func Load(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("drop: reading %s: %w", path, err)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("drop: parsing %s: %w", path, err)
	}
	return plan, nil
}

// Applier applies a Plan against a vector store and records it in the
// manifest.
type Applier struct {
	Store    port.VectorStore
	Strategy collection.Strategy
	Manifest *manifest.Store
	Logger   *slog.Logger
}

// Apply deletes every model selection's matching slice from the vector
// store, then marks each affected (model, partition) pair deleted in the
// manifest, one audit entry per model (each model selection may carry its
// own reason).
func (a *Applier) Apply(ctx context.Context, plan Plan, planPath, actor string, now time.Time) error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for model, sel := range plan.Models {
		where := buildFilter(model, sel)

		collections := make(map[string]struct{})
		for _, partitionName := range sel.Partitions {
			name, err := a.Strategy.CollectionFor(partitionName)
			if err != nil {
				return fmt.Errorf("drop: resolving collection for partition %s: %w", partitionName, err)
			}
			collections[name] = struct{}{}
		}

		for name := range collections {
			handle, err := a.Store.GetOrCreateCollection(ctx, name)
			if err != nil {
				return fmt.Errorf("drop: opening collection %s: %w", name, err)
			}
			if err := a.Store.Delete(ctx, handle, where); err != nil {
				return fmt.Errorf("drop: deleting from %s for model %s: %w", name, model, err)
			}
			logger.Info("drop: deleted slice", "model", model, "collection", name, "partitions", sel.Partitions, "schema_versions", sel.SchemaVersions, "reason", sel.Reason)
		}

		affected := map[string][]string{model: sel.Partitions}
		if err := a.Manifest.MarkDeleted(affected, sel.Reason, actor, planPath, now); err != nil {
			return fmt.Errorf("drop: recording manifest drop for model %s: %w", model, err)
		}
	}
	return nil
}

// buildFilter resolves one model selection into the abstract vector store's
// where filter: model_name=$eq AND partition_name=$in AND
// schema_version=$in.
func buildFilter(model string, sel ModelSelection) port.Filter {
	partitions := make([]any, len(sel.Partitions))
	for i, p := range sel.Partitions {
		partitions[i] = p
	}
	versions := make([]any, len(sel.SchemaVersions))
	for i, v := range sel.SchemaVersions {
		versions[i] = v
	}

	return port.And(
		port.Eq(domain.MetaModelName, model),
		port.In(domain.MetaPartitionName, partitions),
		port.In(domain.MetaSchemaVersion, versions),
	)
}
