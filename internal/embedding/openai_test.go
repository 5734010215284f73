package embedding

import (
	"context"
	"testing"
)

func TestMockEmbed_Deterministic(t *testing.T) {
	m := NewMock(8)
	ctx := context.Background()

	first, err := m.Embed(ctx, []string{"hello world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := m.Embed(ctx, []string{"hello world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one vector per input, got %d and %d", len(first), len(second))
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Errorf("mock embedder is not deterministic at index %d: %v != %v", i, first[0], second[0])
		}
	}
}

func TestMockEmbed_RespectsDimension(t *testing.T) {
	m := NewMock(4)
	out, err := m.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out[0]) != 4 {
		t.Errorf("expected dimension 4, got %d", len(out[0]))
	}
}

func TestMockEmbed_DefaultsDimension(t *testing.T) {
	m := NewMock(0)
	if m.Dimension() != 16 {
		t.Errorf("expected default dimension 16, got %d", m.Dimension())
	}
}

func TestMockEmbed_EmptyInput(t *testing.T) {
	m := NewMock(8)
	out, err := m.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no vectors, got %d", len(out))
	}
}

func TestDimensionFor_KnownAndUnknownModels(t *testing.T) {
	if got := dimensionFor("text-embedding-3-small"); got != 1536 {
		t.Errorf("expected 1536, got %d", got)
	}
	if got := dimensionFor("text-embedding-3-large"); got != 3072 {
		t.Errorf("expected 3072, got %d", got)
	}
	if got := dimensionFor("some-unknown-model"); got != 1536 {
		t.Errorf("expected fallback 1536, got %d", got)
	}
}

func TestNewCompatible_MissingAPIKey(t *testing.T) {
	t.Setenv("IDXR_TEST_MISSING_KEY", "")
	if _, err := newCompatible("IDXR_TEST_MISSING_KEY_UNSET", "some-model", "https://example.test"); err == nil {
		t.Error("expected error when the API key environment variable is unset")
	}
}

func TestNewOllama_DefaultsBaseURL(t *testing.T) {
	c, err := NewOllama("nomic-embed-text", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.baseURL != "http://localhost:11434/v1" {
		t.Errorf("expected default ollama base url, got %q", c.baseURL)
	}
	if c.Dimension() != 768 {
		t.Errorf("expected dimension 768 for nomic-embed-text, got %d", c.Dimension())
	}
}
