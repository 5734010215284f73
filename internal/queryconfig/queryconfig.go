// Package queryconfig implements the Query Config Builder: scanning every
// partition's resume state files and emitting a bidirectional
// model<->collection routing map for the Multi-Collection Query Client.
package queryconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/GetAdriAI/idxr/internal/resume"
)

// ModelInfo is one model's entry in model_to_collections.
type ModelInfo struct {
	Collections    []string `json:"collections"`
	TotalDocuments int      `json:"total_documents"`
	Partitions     []string `json:"partitions"`
}

// Metadata carries summary information about how the config was built.
type Metadata struct {
	TotalCollections int    `json:"total_collections"`
	TotalModels      int    `json:"total_models"`
	GeneratedAt      string `json:"generated_at"`
	CollectionPrefix string `json:"collection_prefix,omitempty"`
}

// Config is the full query-routing document.
type Config struct {
	ModelToCollections map[string]ModelInfo `json:"model_to_collections"`
	CollectionToModels map[string][]string  `json:"collection_to_models"`
	Metadata           Metadata             `json:"metadata"`
}

// Warning carries a non-fatal issue encountered scanning resume files.
type Warning string

// Build scans <outRoot>/<partition>/*_resume_state.json for every partition
// subdirectory, and emits the routing config. generatedAt is passed in explicitly
// (never computed internally) so callers control the generated_at stamp.
func Build(outRoot, collectionPrefix string, generatedAt string) (Config, []Warning, error) {
	var warnings []Warning

	partitionDirs, err := listPartitionDirs(outRoot)
	if err != nil {
		return Config{}, nil, fmt.Errorf("queryconfig: listing partitions under %s: %w", outRoot, err)
	}

	type accum struct {
		collections map[string]struct{}
		documents   int
		partitions  map[string]struct{}
	}
	models := map[string]*accum{}
	collectionToModels := map[string]map[string]struct{}{}

	for _, partitionName := range partitionDirs {
		partitionDir := filepath.Join(outRoot, partitionName)
		store := resume.New(partitionDir)
		collections, err := store.ListCollections()
		if err != nil {
			warnings = append(warnings, Warning(fmt.Sprintf("queryconfig: listing resume files in %s: %v", partitionDir, err)))
			continue
		}
		for _, collectionName := range collections {
			state, warn := store.Read(collectionName)
			if warn != "" {
				warnings = append(warnings, Warning(warn))
				continue
			}
			for modelName, record := range state {
				if !record.Started || record.CollectionCount <= 0 {
					continue
				}
				a, ok := models[modelName]
				if !ok {
					a = &accum{collections: map[string]struct{}{}, partitions: map[string]struct{}{}}
					models[modelName] = a
				}
				a.collections[collectionName] = struct{}{}
				a.documents += record.CollectionCount
				a.partitions[partitionName] = struct{}{}

				if collectionToModels[collectionName] == nil {
					collectionToModels[collectionName] = map[string]struct{}{}
				}
				collectionToModels[collectionName][modelName] = struct{}{}
			}
		}
	}

	modelToCollections := make(map[string]ModelInfo, len(models))
	for model, a := range models {
		modelToCollections[model] = ModelInfo{
			Collections:    sortedKeys(a.collections),
			TotalDocuments: a.documents,
			Partitions:     sortedKeys(a.partitions),
		}
	}

	collectionToModelsOut := make(map[string][]string, len(collectionToModels))
	for collection, modelSet := range collectionToModels {
		collectionToModelsOut[collection] = sortedKeys(modelSet)
	}

	cfg := Config{
		ModelToCollections: modelToCollections,
		CollectionToModels: collectionToModelsOut,
		Metadata: Metadata{
			TotalCollections: len(collectionToModelsOut),
			TotalModels:      len(modelToCollections),
			GeneratedAt:      generatedAt,
			CollectionPrefix: collectionPrefix,
		},
	}
	return cfg, warnings, nil
}

// Load reads a previously written query config from disk, validating the
// required top-level keys are present.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("queryconfig: reading %s: %w", path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("queryconfig: parsing %s: %w", path, err)
	}
	for _, key := range []string{"model_to_collections", "collection_to_models", "metadata"} {
		if _, ok := raw[key]; !ok {
			return Config{}, fmt.Errorf("queryconfig: %s missing required key %q", path, key)
		}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("queryconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("queryconfig: marshalling: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("queryconfig: creating directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// CollectionsForModels resolves the union of collections serving the given
// models. An empty or nil slice selects every collection in the config.
func CollectionsForModels(cfg Config, modelNames []string) []string {
	if len(modelNames) == 0 {
		return sortedStringKeys(cfg.CollectionToModels)
	}
	set := map[string]struct{}{}
	for _, m := range modelNames {
		info, ok := cfg.ModelToCollections[m]
		if !ok {
			continue
		}
		for _, c := range info.Collections {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func listPartitionDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedStringKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
