package csvrow

import (
	"io"
	"strings"
	"testing"
)

func TestReadHeader_ParsesFieldNamesAndAdvancesOffset(t *testing.T) {
	src := "id,title,price\nrow1\n"
	r := New(strings.NewReader(src), 0)
	names, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 3 || names[0] != "id" || names[2] != "price" {
		t.Errorf("expected [id title price], got %v", names)
	}
	if r.Offset() != int64(len("id,title,price\n")) {
		t.Errorf("expected offset past the header line, got %d", r.Offset())
	}
}

func TestNext_ReturnsRowsKeyedByFieldName(t *testing.T) {
	src := "id,title\np1,Widget\np2,Gadget\n"
	r := New(strings.NewReader(src), 0)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["id"] != "p1" || row["title"] != "Widget" {
		t.Errorf("expected {id: p1, title: Widget}, got %v", row)
	}

	row, err = r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["id"] != "p2" {
		t.Errorf("expected p2, got %v", row)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after the last row, got %v", err)
	}
}

func TestNext_MissingTrailingColumnsBecomeEmptyString(t *testing.T) {
	src := "id,title,price\np1,Widget\n"
	r := New(strings.NewReader(src), 0)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["price"] != "" {
		t.Errorf("expected price to default to empty string, got %q", row["price"])
	}
}

func TestNext_WithoutFieldnamesIsAnError(t *testing.T) {
	r := New(strings.NewReader("p1,Widget\n"), 0)
	if _, err := r.Next(); err == nil {
		t.Error("expected an error calling Next before field names are known")
	}
}

func TestSetFieldnames_AllowsMidStreamResume(t *testing.T) {
	src := "p3,Thingamajig\n"
	r := New(strings.NewReader(src), 42)
	r.SetFieldnames([]string{"id", "title"})
	row, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["id"] != "p3" || row["title"] != "Thingamajig" {
		t.Errorf("expected {id: p3, title: Thingamajig}, got %v", row)
	}
	if got := r.Fieldnames(); len(got) != 2 {
		t.Errorf("expected fieldnames to be retrievable, got %v", got)
	}
}

func TestOffset_TracksExactBytesConsumed(t *testing.T) {
	src := "id,title\np1,Widget\np2,Gadget\n"
	r := New(strings.NewReader(src), 0)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	afterHeader := r.Offset()
	if _, err := r.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	afterRow1 := r.Offset()
	if afterRow1 != afterHeader+int64(len("p1,Widget\n")) {
		t.Errorf("expected offset to advance by exactly the consumed row's bytes, got %d vs %d", afterRow1, afterHeader+int64(len("p1,Widget\n")))
	}
}

func TestNext_FinalLineWithoutTrailingNewlineIsAccepted(t *testing.T) {
	src := "id,title\np1,Widget"
	r := New(strings.NewReader(src), 0)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["id"] != "p1" {
		t.Errorf("expected p1, got %v", row)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF on the subsequent call, got %v", err)
	}
}
