// Package schema implements the abstract Schema this pipeline depends on in
// place of a full runtime-typed validation library (per the design notes):
// a field list, a validator, and a signature hash stable across processes.
package schema

import (
	"fmt"
	"sort"

	"github.com/GetAdriAI/idxr/internal/canonical"
	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/errs"
	"github.com/GetAdriAI/idxr/internal/idhash"
)

// FieldType is a coarse value-type tag used only for schema signature
// stability, not for coercion.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldAny    FieldType = "any"
)

// FieldDef describes one field of a model's row shape.
type FieldDef struct {
	Name     string
	Type     FieldType
	Required bool
}

// Definition fully describes one ModelSpec's structural shape: its field
// list plus which subsets are semantic, keyword, or key fields. Building a
// domain.ModelSpec from a Definition computes SchemaSignature and Validate
// consistently.
type Definition struct {
	Name           string
	Fields         []FieldDef
	SemanticFields []string
	KeywordFields  []string
	KeyFields      []string
}

// Build compiles a Definition into a domain.ModelSpec, wiring a validator
// that checks required fields are present and non-nil, and a signature hash
// derived from the field names, types, and semantic/keyword/key
// declarations — stable across processes and machines.
func (d Definition) Build() (domain.ModelSpec, error) {
	if d.Name == "" {
		return domain.ModelSpec{}, fmt.Errorf("schema: model definition missing a name")
	}
	fieldOrder := make([]string, len(d.Fields))
	fieldSet := make(map[string]FieldDef, len(d.Fields))
	for i, f := range d.Fields {
		fieldOrder[i] = f.Name
		fieldSet[f.Name] = f
	}
	for _, name := range append(append([]string{}, d.SemanticFields...), append(d.KeywordFields, d.KeyFields...)...) {
		if _, ok := fieldSet[name]; !ok {
			return domain.ModelSpec{}, fmt.Errorf("schema: model %q references undeclared field %q", d.Name, name)
		}
	}

	sig, err := d.signatureHash()
	if err != nil {
		return domain.ModelSpec{}, fmt.Errorf("schema: computing signature for %q: %w", d.Name, err)
	}

	def := d
	validator := func(row map[string]any) (map[string]any, error) {
		return def.validate(row)
	}

	return domain.ModelSpec{
		Name:            d.Name,
		FieldOrder:      fieldOrder,
		SemanticFields:  append([]string{}, d.SemanticFields...),
		KeywordFields:   append([]string{}, d.KeywordFields...),
		KeyFields:       append([]string{}, d.KeyFields...),
		SchemaSignature: sig,
		Validate:        validator,
	}, nil
}

// validate checks that every required field is present and non-nil,
// returning a normalised row keyed by the declared field order. Unknown
// fields in the input row are dropped; this mirrors a schema library's
// object-construction semantics without inventing coercion rules the
// original system didn't specify.
func (d Definition) validate(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		v, present := row[f.Name]
		if f.Required && (!present || v == nil) {
			return nil, &errs.ValidationError{Field: f.Name, Message: "required field missing"}
		}
		out[f.Name] = v
	}
	return out, nil
}

// signatureHash derives a stable, non-cryptographic hash from the field
// names, types, and semantic/keyword/key declarations. Field order does not
// affect the hash; declaring the same fields in a different order yields
// the same signature, since only the structural shape matters for
// staleness detection.
func (d Definition) signatureHash() (string, error) {
	fields := make([]map[string]any, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = map[string]any{
			"name":     f.Name,
			"type":     string(f.Type),
			"required": f.Required,
		}
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i]["name"].(string) < fields[j]["name"].(string)
	})

	semantic := append([]string{}, d.SemanticFields...)
	keyword := append([]string{}, d.KeywordFields...)
	key := append([]string{}, d.KeyFields...)
	sort.Strings(semantic)
	sort.Strings(keyword)
	sort.Strings(key)

	payload := map[string]any{
		"name":            d.Name,
		"fields":          fields,
		"semantic_fields": semantic,
		"keyword_fields":  keyword,
		"key_fields":      key,
	}
	canon, err := canonical.Marshal(payload)
	if err != nil {
		return "", err
	}
	return idhash.Hex16(canon), nil
}
