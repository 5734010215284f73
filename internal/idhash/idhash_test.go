package idhash

import "testing"

func TestKeyFieldsConcat_JoinsWithDelimiter(t *testing.T) {
	got := KeyFieldsConcat([]any{"a", "b", "c"})
	want := "a" + fieldDelimiter + "b" + fieldDelimiter + "c"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestKeyFieldsConcat_NilValueBecomesEmptyString(t *testing.T) {
	got := KeyFieldsConcat([]any{"a", nil, "c"})
	want := "a" + fieldDelimiter + "" + fieldDelimiter + "c"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHex16_DeterministicAndFixedLength(t *testing.T) {
	a := Hex16("hello world")
	b := Hex16("hello world")
	if a != b {
		t.Errorf("expected deterministic hash, got %q then %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected a 16-character hex digest, got %q (len %d)", a, len(a))
	}
}

func TestHex16_DifferentInputsDiffer(t *testing.T) {
	if Hex16("a") == Hex16("b") {
		t.Error("expected different inputs to hash differently")
	}
}

func TestDocumentID_CombinesModelAndKeyFieldHash(t *testing.T) {
	id := DocumentID("products", []any{"p1"})
	want := "products:" + Hex16(KeyFieldsConcat([]any{"p1"}))
	if id != want {
		t.Errorf("expected %q, got %q", want, id)
	}
}

func TestDocumentID_DistinctKeysProduceDistinctIDs(t *testing.T) {
	a := DocumentID("products", []any{"p1"})
	b := DocumentID("products", []any{"p2"})
	if a == b {
		t.Error("expected distinct key field values to produce distinct ids")
	}
}
