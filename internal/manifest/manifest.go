// Package manifest implements the Manifest Store: the global partition
// registry persisted as a single JSON document, mutated exclusively under an
// exclusive file lock with write-to-temp-then-rename atomicity.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/GetAdriAI/idxr/internal/domain"
)

// ManifestFilename is the fixed name of the manifest file under the root
// directory.
const ManifestFilename = "manifest.json"

// Document is the on-disk shape of the manifest.
type Document struct {
	Partitions []PartitionEntry `json:"partitions"`
	Drops      []DropEntry      `json:"drops"`
}

// PartitionEntry is one partition's manifest record.
type PartitionEntry struct {
	Name      string                 `json:"name"`
	CreatedAt time.Time              `json:"created_at"`
	Models    map[string]ModelEntry  `json:"models"`
	Replaces  []string               `json:"replaces,omitempty"`
}

// ModelEntry is one model's record within a partition entry.
type ModelEntry struct {
	SchemaVersion int        `json:"schema_version"`
	SourcePath    string     `json:"source_path"`
	DigestPath    string     `json:"digest_path,omitempty"`
	Stale         bool       `json:"stale,omitempty"`
	Deleted       bool       `json:"deleted,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	DropReason    string     `json:"drop_reason,omitempty"`
}

// DropEntry is one audit-log entry appended whenever a drop is applied.
type DropEntry struct {
	PerformedAt time.Time      `json:"performed_at"`
	PerformedBy string         `json:"performed_by"`
	Config      string         `json:"config,omitempty"`
	Affected    map[string]any `json:"affected"`
}

// Store persists and reads the global manifest at <root>/manifest.json.
type Store struct {
	path string
}

// New builds a Store rooted at root.
func New(root string) *Store {
	return &Store{path: filepath.Join(root, ManifestFilename)}
}

// Read returns a snapshot of the manifest. Readers never take the lock —
// they tolerate concurrent writers by reading a whole-file snapshot (an
// in-flight temp-then-rename write is atomic from a reader's perspective).
func (s *Store) Read() (Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Document{}.empty(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("manifest: reading %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("manifest: parsing %s: %w", s.path, err)
	}
	return doc, nil
}

func (Document) empty() Document {
	return Document{Partitions: []PartitionEntry{}, Drops: []DropEntry{}}
}

// AppendPartition allocates the next monotonic partition name (or uses
// name if non-empty) and records its model entries and replacements. It
// returns the allocated name.
func (s *Store) AppendPartition(name string, models map[string]ModelEntry, replaces []string, createdAt time.Time) (string, error) {
	var allocated string
	err := s.withLock(func(doc *Document) error {
		if name != "" {
			allocated = name
		} else {
			allocated = nextPartitionName(doc.Partitions)
		}
		for _, existing := range doc.Partitions {
			if existing.Name == allocated {
				return fmt.Errorf("manifest: partition %q already exists", allocated)
			}
		}
		for _, r := range replaces {
			found := false
			for _, existing := range doc.Partitions {
				if existing.Name == r {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("manifest: partition %q replaces unknown partition %q", allocated, r)
			}
		}
		doc.Partitions = append(doc.Partitions, PartitionEntry{
			Name:      allocated,
			CreatedAt: createdAt,
			Models:    models,
			Replaces:  replaces,
		})
		return nil
	})
	return allocated, err
}

// MarkStale flips the stale flag for the named partitions.
func (s *Store) MarkStale(partitions []string) error {
	return s.withLock(func(doc *Document) error {
		set := toSet(partitions)
		for i := range doc.Partitions {
			if set[doc.Partitions[i].Name] {
				for model, entry := range doc.Partitions[i].Models {
					entry.Stale = true
					doc.Partitions[i].Models[model] = entry
				}
			}
		}
		return nil
	})
}

// MarkDeleted flips deleted flags for (model, partition) pairs described by
// affected, and appends a drops audit entry.
func (s *Store) MarkDeleted(affected map[string][]string, reason, actor, configPath string, now time.Time) error {
	return s.withLock(func(doc *Document) error {
		index := make(map[string]*PartitionEntry, len(doc.Partitions))
		for i := range doc.Partitions {
			index[doc.Partitions[i].Name] = &doc.Partitions[i]
		}
		for model, partitions := range affected {
			for _, partitionName := range partitions {
				entry, ok := index[partitionName]
				if !ok {
					continue
				}
				modelEntry, ok := entry.Models[model]
				if !ok {
					continue
				}
				modelEntry.Deleted = true
				deletedAt := now
				modelEntry.DeletedAt = &deletedAt
				modelEntry.DropReason = reason
				entry.Models[model] = modelEntry
			}
		}
		affectedAny := make(map[string]any, len(affected))
		for k, v := range affected {
			affectedAny[k] = v
		}
		doc.Drops = append(doc.Drops, DropEntry{
			PerformedAt: now,
			PerformedBy: actor,
			Config:      configPath,
			Affected:    affectedAny,
		})
		return nil
	})
}

// withLock reads the manifest, applies fn, and atomically writes the
// result back, all under an exclusive cross-process file lock.
func (s *Store) withLock(fn func(doc *Document) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("manifest: creating root: %w", err)
	}
	lockPath := s.path + ".lock"
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("manifest: acquiring lock: %w", err)
	}
	defer lock.Unlock()

	doc, err := s.Read()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.writeAtomic(doc)
}

// writeAtomic stages the manifest via a temp file in the same directory,
// then renames it into place, so a crash never leaves a partially written
// manifest.
func (s *Store) writeAtomic(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshalling: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("manifest: renaming into place: %w", err)
	}
	return nil
}

func nextPartitionName(existing []PartitionEntry) string {
	max := -1
	for _, e := range existing {
		var n int
		if _, err := fmt.Sscanf(e.Name, "partition_%05d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("partition_%05d", max+1)
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

// ToDomainPartitions converts manifest entries into domain.Partition
// values for callers that want the richer domain representation.
func ToDomainPartitions(doc Document) []domain.Partition {
	out := make([]domain.Partition, 0, len(doc.Partitions))
	for _, e := range doc.Partitions {
		p := domain.Partition{
			Name:           e.Name,
			CreatedAt:      e.CreatedAt,
			Replaces:       e.Replaces,
			SchemaVersions: map[string]int{},
			ModelFiles:     map[string]domain.ModelFile{},
		}
		for model, m := range e.Models {
			p.SchemaVersions[model] = m.SchemaVersion
			p.ModelFiles[model] = domain.ModelFile{
				Path:       m.SourcePath,
				DigestPath: m.DigestPath,
				Deleted:    m.Deleted,
				DeletedAt:  m.DeletedAt,
				DropReason: m.DropReason,
			}
			if m.Stale {
				p.Stale = true
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
