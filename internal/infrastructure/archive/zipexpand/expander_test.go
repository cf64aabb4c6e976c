package zipexpand

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExpandKeepsOnlyPDFs(t *testing.T) {
	payload := buildZip(t, map[string][]byte{
		"essay_john.pdf":          []byte("pdf-a"),
		"nested/thesis_smith.PDF": []byte("pdf-b"),
		"readme.txt":              []byte("notes"),
		"__MACOSX/junk.pdf.txt":   []byte("junk"),
	})

	files, err := New().Expand(payload)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}

	byName := map[string][]byte{}
	for _, f := range files {
		byName[f.Name] = f.Data
		if f.ContentType != "application/pdf" {
			t.Fatalf("content type = %s", f.ContentType)
		}
	}
	if string(byName["essay_john.pdf"]) != "pdf-a" {
		t.Fatal("essay_john.pdf payload wrong")
	}
	// Nested entries are flattened to their basename.
	if string(byName["thesis_smith.PDF"]) != "pdf-b" {
		t.Fatal("nested entry not flattened to basename")
	}
}

func TestExpandCorruptArchive(t *testing.T) {
	if _, err := New().Expand([]byte("this is not a zip")); err == nil {
		t.Fatal("expected error for corrupt archive")
	}
}

func TestExpandEmptyArchive(t *testing.T) {
	payload := buildZip(t, map[string][]byte{})
	files, err := New().Expand(payload)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("got %d files, want 0", len(files))
	}
}
