// Package registry loads the model registry: the read-only, process-wide
// mapping of model name to domain.ModelSpec built once at start-up from a
// YAML descriptor, then passed explicitly through every indexer and
// orchestrator call rather than held as global state.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/schema"
)

// fieldDoc is one field's YAML shape.
type fieldDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// modelDoc is one model's YAML shape.
type modelDoc struct {
	Name                     string     `yaml:"name"`
	Fields                   []fieldDoc `yaml:"fields"`
	SemanticFields           []string   `yaml:"semantic_fields"`
	KeywordFields            []string   `yaml:"keyword_fields"`
	KeyFields                []string   `yaml:"key_fields"`
	TruncationStrategyOverride string   `yaml:"truncation_strategy_override,omitempty"`
}

// document is the top-level YAML shape: an ordered list of models. Order in
// the file becomes the registry's model processing order.
type document struct {
	Models []modelDoc `yaml:"models"`
}

// Registry is the loaded, read-only model registry.
type Registry struct {
	Order []string
	Specs map[string]domain.ModelSpec
}

// Load reads and compiles a model registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parsing %s: %w", path, err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("registry: %s declares no models", path)
	}

	order := make([]string, 0, len(doc.Models))
	specs := make(map[string]domain.ModelSpec, len(doc.Models))

	for _, m := range doc.Models {
		if _, dup := specs[m.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate model %q", m.Name)
		}

		fields := make([]schema.FieldDef, len(m.Fields))
		for i, f := range m.Fields {
			fields[i] = schema.FieldDef{Name: f.Name, Type: fieldType(f.Type), Required: f.Required}
		}

		def := schema.Definition{
			Name:           m.Name,
			Fields:         fields,
			SemanticFields: m.SemanticFields,
			KeywordFields:  m.KeywordFields,
			KeyFields:      m.KeyFields,
		}
		spec, err := def.Build()
		if err != nil {
			return nil, fmt.Errorf("registry: model %q: %w", m.Name, err)
		}
		if m.TruncationStrategyOverride != "" {
			spec.TruncationStrategyOverride = domain.TruncationStrategy(m.TruncationStrategyOverride)
		}

		order = append(order, m.Name)
		specs[m.Name] = spec
	}

	return &Registry{Order: order, Specs: specs}, nil
}

func fieldType(s string) schema.FieldType {
	switch s {
	case "string":
		return schema.FieldString
	case "number":
		return schema.FieldNumber
	case "bool":
		return schema.FieldBool
	default:
		return schema.FieldAny
	}
}
