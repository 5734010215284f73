package schema

import (
	"testing"

	"github.com/GetAdriAI/idxr/internal/errs"
)

func productsDefinition() Definition {
	return Definition{
		Name: "products",
		Fields: []FieldDef{
			{Name: "id", Type: FieldString, Required: true},
			{Name: "title", Type: FieldString, Required: true},
			{Name: "description", Type: FieldString},
		},
		SemanticFields: []string{"title", "description"},
		KeywordFields:  []string{"title"},
		KeyFields:      []string{"id"},
	}
}

func TestBuild_RequiresName(t *testing.T) {
	d := productsDefinition()
	d.Name = ""
	if _, err := d.Build(); err == nil {
		t.Error("expected an error for a definition missing a name")
	}
}

func TestBuild_RejectsUndeclaredField(t *testing.T) {
	d := productsDefinition()
	d.SemanticFields = append(d.SemanticFields, "ghost")
	if _, err := d.Build(); err == nil {
		t.Error("expected an error when a semantic field is not declared in Fields")
	}
}

func TestBuild_PopulatesSpecFromDefinition(t *testing.T) {
	spec, err := productsDefinition().Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Name != "products" {
		t.Errorf("expected name products, got %q", spec.Name)
	}
	if len(spec.FieldOrder) != 3 || spec.FieldOrder[0] != "id" {
		t.Errorf("expected field order to preserve declaration order, got %v", spec.FieldOrder)
	}
	if spec.SchemaSignature == "" {
		t.Error("expected a non-empty schema signature")
	}
}

func TestSignatureHash_StableAcrossFieldDeclarationOrder(t *testing.T) {
	a := productsDefinition()
	b := productsDefinition()
	b.Fields[0], b.Fields[1] = b.Fields[1], b.Fields[0]

	sigA, err := a.signatureHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sigB, err := b.signatureHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sigA != sigB {
		t.Errorf("expected signature to be stable across field declaration order, got %q and %q", sigA, sigB)
	}
}

func TestSignatureHash_ChangesWhenFieldSetChanges(t *testing.T) {
	a := productsDefinition()
	b := productsDefinition()
	b.Fields = append(b.Fields, FieldDef{Name: "price", Type: FieldNumber})

	sigA, _ := a.signatureHash()
	sigB, _ := b.signatureHash()
	if sigA == sigB {
		t.Error("expected signature to change when the field set changes")
	}
}

func TestValidator_RejectsMissingRequiredField(t *testing.T) {
	spec, err := productsDefinition().Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = spec.Validate(map[string]any{"id": "p1"})
	if err == nil {
		t.Fatal("expected an error for a missing required field")
	}
	var verr *errs.ValidationError
	if ve, ok := err.(*errs.ValidationError); ok {
		verr = ve
	}
	if verr == nil || verr.Field != "title" {
		t.Errorf("expected a ValidationError naming title, got %v", err)
	}
}

func TestValidator_DropsUnknownFieldsAndPreservesDeclared(t *testing.T) {
	spec, err := productsDefinition().Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := spec.Validate(map[string]any{"id": "p1", "title": "Widget", "unexpected": "value"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out["unexpected"]; ok {
		t.Error("expected unknown fields to be dropped")
	}
	if out["id"] != "p1" || out["title"] != "Widget" {
		t.Errorf("expected declared fields to survive validation, got %v", out)
	}
	if _, ok := out["description"]; !ok {
		t.Error("expected the optional, absent description field to still be present as nil")
	}
}
