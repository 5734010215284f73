// Package errreport writes the immutable Error Report YAML files produced
// whenever a batch flush fails, and classifies a partition-model's ERRORED
// status from the reports already on disk.
package errreport

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GetAdriAI/idxr/internal/domain"
)

// Report is one failed-flush record, written to
// <out>/<partition>/errors/<model>_<UTC-timestamp>.yaml.
type Report struct {
	ModelName        string               `yaml:"model_name"`
	CollectionName   string               `yaml:"collection_name"`
	Reason           string               `yaml:"reason"`
	SourceCSV        string               `yaml:"source_csv"`
	BatchSize        int                  `yaml:"batch_size"`
	DocumentIDs      []string             `yaml:"document_ids"`
	Documents        []string             `yaml:"documents"`
	Metadatas        []map[string]any     `yaml:"metadatas"`
	RowNumbers       []int                `yaml:"row_numbers"`
	TokenCounts      []int                `yaml:"token_counts"`
	TokenTotal       int                  `yaml:"token_total"`
	ResumeState      domain.ResumeRecord  `yaml:"resume_state"`
	ExceptionType    string               `yaml:"exception_type"`
	ExceptionMessage string               `yaml:"exception_message"`
	Traceback        string               `yaml:"traceback"`
	Timestamp        time.Time            `yaml:"timestamp"`
}

// documentPreviewLimit truncates each document's text to keep error reports
// bounded in size; full text is recoverable from the source CSV by row
// number.
const documentPreviewLimit = 1000

// Dir returns the errors directory for a partition.
func Dir(partitionDir string) string {
	return filepath.Join(partitionDir, "errors")
}

// Write renders report as YAML and persists it under
// <partitionDir>/errors/<model>_<timestamp>.yaml, truncating document
// previews to documentPreviewLimit characters.
func Write(partitionDir string, report Report) (string, error) {
	for i, doc := range report.Documents {
		if len(doc) > documentPreviewLimit {
			report.Documents[i] = doc[:documentPreviewLimit]
		}
	}

	dir := Dir(partitionDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("errreport: creating errors directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.yaml", sanitize(report.ModelName), report.Timestamp.UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("errreport: marshalling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("errreport: writing %s: %w", path, err)
	}
	return path, nil
}

// MaxRowIndex scans every report for modelName under partitionDir/errors and
// returns the maximum row_numbers entry seen, or -1 if no reports exist (or
// mention that model).
func MaxRowIndex(partitionDir, modelName string) (int, error) {
	dir := Dir(partitionDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("errreport: listing %s: %w", dir, err)
	}

	max := -1
	prefix := sanitize(modelName) + "_"
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) < len(prefix) || e.Name()[:len(prefix)] != prefix {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var report Report
		if err := yaml.Unmarshal(data, &report); err != nil {
			continue
		}
		for _, rn := range report.RowNumbers {
			if rn > max {
				max = rn
			}
		}
	}
	return max, nil
}

// HasReports reports whether any error report exists for partitionDir.
func HasReports(partitionDir string) (bool, error) {
	dir := Dir(partitionDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
