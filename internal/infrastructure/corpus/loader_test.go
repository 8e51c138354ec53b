package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mkravets/consultrag/internal/infrastructure/lexical"
)

func writeCorpusFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadIntoRegistersCollections(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "tax_docs.jsonl",
		`{"id": "tax-1", "title": "VAT guide", "origin": "tax-office", "text": "value added tax registration thresholds"}
{"id": "tax-2", "title": "Income tax", "origin": "tax-office", "text": "income tax brackets and deductions"}
`)
	writeCorpusFile(t, dir, "labor_docs.jsonl",
		`{"id": "lab-1", "title": "Overtime", "origin": "labor-board", "text": "overtime pay rules for employees"}
`)
	writeCorpusFile(t, dir, "notes.txt", "not a corpus file")

	store := lexical.NewStore()
	if err := NewLoader(dir).LoadInto(store); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}

	got := store.Collections()
	sort.Strings(got)
	want := []string{"labor_docs", "tax_docs"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected collections %v, got %v", want, got)
	}

	docs, err := store.Search(context.Background(), "tax_docs", "vat registration", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) == 0 || docs[0].ID != "tax-1" {
		t.Fatalf("expected tax-1 to rank first, got %+v", docs)
	}
}

func TestLoadIntoSkipsBlankLinesAndAssignsIDs(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "legal_docs.jsonl",
		`{"title": "Contracts", "text": "contract termination notice period"}

{"id": "leg-2", "title": "Liability", "text": "limited liability company obligations"}
`)

	store := lexical.NewStore()
	if err := NewLoader(dir).LoadInto(store); err != nil {
		t.Fatalf("LoadInto: %v", err)
	}

	docs, err := store.Search(context.Background(), "legal_docs", "contract termination", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) == 0 || docs[0].ID != "legal_docs.jsonl#1" {
		t.Fatalf("expected synthesized id for line 1, got %+v", docs)
	}
}

func TestLoadIntoMissingDirIsNotAnError(t *testing.T) {
	store := lexical.NewStore()
	if err := NewLoader(filepath.Join(t.TempDir(), "absent")).LoadInto(store); err != nil {
		t.Fatalf("expected nil error for missing dir, got %v", err)
	}
	if got := store.Collections(); len(got) != 0 {
		t.Fatalf("expected no collections, got %v", got)
	}
}

func TestLoadIntoRejectsMalformedLine(t *testing.T) {
	dir := t.TempDir()
	writeCorpusFile(t, dir, "broken.jsonl", `{"id": "ok", "text": "fine"}
{not json}
`)

	if err := NewLoader(dir).LoadInto(lexical.NewStore()); err == nil {
		t.Fatalf("expected error for malformed line")
	}
}
