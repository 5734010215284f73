// Package document implements the Document Builder: turning one validated
// row into an indexable domain.Document (id, text, metadata, token count),
// applying truncation when the row's semantic text exceeds the configured
// hard token limit.
package document

import (
	"fmt"
	"math"
	"strings"

	"github.com/GetAdriAI/idxr/internal/canonical"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/idhash"
	"github.com/GetAdriAI/idxr/internal/port"
	"github.com/GetAdriAI/idxr/internal/truncate"
)

// safetyMargin is the fraction of API_TOKEN_LIMIT truncation targets, per
// the 5% safety margin the spec requires.
const safetyMargin = 0.95

// Builder turns validated rows into documents.
type Builder struct {
	tok             port.Tokenizer
	truncator       *truncate.Truncator
	apiTokenLimit   int
	defaultStrategy domain.TruncationStrategy
}

// NewBuilder constructs a Builder. apiTokenLimit is the hard per-document
// token ceiling. defaultStrategy is the caller-level default applied to
// models without their own override; domain.StrategyAuto if unset.
func NewBuilder(tok port.Tokenizer, apiTokenLimit int, defaultStrategy domain.TruncationStrategy) *Builder {
	if defaultStrategy == "" {
		defaultStrategy = domain.StrategyAuto
	}
	return &Builder{tok: tok, truncator: truncate.New(tok), apiTokenLimit: apiTokenLimit, defaultStrategy: defaultStrategy}
}

// BuildResult carries the built document, or a skip signal when the
// document could not be brought under the hard limit even after
// truncation (§4.5 step 5 — should not happen given the Truncator's
// post-condition, but handled defensively).
type BuildResult struct {
	Document domain.Document
	Skipped  bool
	SkipWarning string
}

// Build constructs one Document from a validated row.
func (b *Builder) Build(spec domain.ModelSpec, row map[string]any, partitionName, sourcePath string, schemaVersion int) (BuildResult, error) {
	keyValues := make([]any, len(spec.KeyFields))
	for i, f := range spec.KeyFields {
		keyValues[i] = row[f]
	}
	id := idhash.DocumentID(spec.Name, keyValues)

	text, hasSem, err := BuildText(spec, row)
	if err != nil {
		return BuildResult{}, fmt.Errorf("document: building text for %s: %w", id, err)
	}

	metadata := BuildMetadata(spec, row, partitionName, sourcePath, schemaVersion, hasSem)

	tokenCount := b.tok.Count(text)
	doc := domain.Document{
		ID:              id,
		Text:            text,
		Metadata:        metadata,
		TokenCount:      tokenCount,
		HasSemanticText: hasSem,
	}

	if tokenCount <= b.apiTokenLimit {
		return BuildResult{Document: doc}, nil
	}

	strategy := selectStrategy(spec, b.defaultStrategy)
	target := int(math.Floor(safetyMargin * float64(b.apiTokenLimit)))
	result := b.truncator.Fit(text, target, strategy)

	doc.Text = result.Text
	doc.TokenCount = result.Tokens
	doc.Truncated = true
	doc.OriginalTokenCount = tokenCount
	doc.TruncationStrategy = strategy
	metadata[domain.MetaTruncated] = true
	metadata[domain.MetaOriginalTokens] = tokenCount
	metadata[domain.MetaTruncationStrategy] = string(strategy)

	if doc.TokenCount > b.apiTokenLimit {
		return BuildResult{
			Document:    doc,
			Skipped:     true,
			SkipWarning: fmt.Sprintf("document %s remains over token limit (%d > %d) after truncation with strategy %s; skipping", id, doc.TokenCount, b.apiTokenLimit, strategy),
		}, nil
	}

	return BuildResult{Document: doc}, nil
}

// BuildText joins non-empty, non-whitespace semantic field values with a
// newline. If no semantic field qualifies, it falls back to the canonical
// JSON serialisation of the entire row and reports has_sem=false.
func BuildText(spec domain.ModelSpec, row map[string]any) (string, bool, error) {
	var parts []string
	for _, field := range spec.SemanticFields {
		v, ok := row[field]
		if !ok || isEmptyValue(v) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n"), true, nil
	}

	canon, err := canonical.Marshal(row)
	if err != nil {
		return "", false, err
	}
	return canon, false, nil
}

// BuildMetadata populates the fixed metadata keys plus every keyword_fields
// value.
func BuildMetadata(spec domain.ModelSpec, row map[string]any, partitionName, sourcePath string, schemaVersion int, hasSem bool) map[string]any {
	metadata := map[string]any{
		domain.MetaModelName:     spec.Name,
		domain.MetaPartitionName: partitionName,
		domain.MetaSchemaVersion: schemaVersion,
		domain.MetaSourcePath:    sourcePath,
		domain.MetaHasSem:        hasSem,
	}
	for _, field := range spec.KeywordFields {
		if v, ok := row[field]; ok {
			metadata[field] = v
		}
	}
	return metadata
}

// isEmptyValue reports whether v counts as empty for semantic-field
// purposes: nil, empty string, whitespace-only string, empty slice, or
// empty map.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// selectStrategy resolves the truncation strategy per the selection order:
// per-model override, then caller default, then auto.
func selectStrategy(spec domain.ModelSpec, callerDefault domain.TruncationStrategy) domain.TruncationStrategy {
	if spec.HasTruncationOverride() && spec.TruncationStrategyOverride != domain.StrategyAuto {
		return spec.TruncationStrategyOverride
	}
	if callerDefault != "" && callerDefault != domain.StrategyAuto {
		return callerDefault
	}
	return autoStrategy(spec)
}

// autoStrategy implements the concrete auto heuristic resolved in
// DESIGN.md: table-like models truncate from the end, prose-like models
// truncate by sentence, everything else keeps both ends.
func autoStrategy(spec domain.ModelSpec) domain.TruncationStrategy {
	lowerName := strings.ToLower(spec.Name)
	if strings.Contains(lowerName, "table") {
		return domain.StrategyEnd
	}
	for _, f := range spec.SemanticFields {
		lf := strings.ToLower(f)
		if strings.Contains(lf, "description") || strings.Contains(lf, "help_text") ||
			strings.Contains(lf, "documentation") || strings.Contains(lf, "notes") ||
			strings.Contains(lf, "summary") {
			return domain.StrategySentences
		}
	}
	return domain.StrategyMiddleOut
}
