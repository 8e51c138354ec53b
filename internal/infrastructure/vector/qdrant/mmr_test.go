package qdrant

import (
	"math"
	"testing"
)

func hit(id string, vec []float32) searchHit {
	return searchHit{Vector: vec, Payload: map[string]any{"doc_id": id}}
}

func TestSelectMMRPicksMostRelevantFirst(t *testing.T) {
	query := []float32{1, 0}
	hits := []searchHit{
		hit("far", []float32{0, 1}),
		hit("near", []float32{1, 0}),
	}

	selected := selectMMR(query, hits, 1, 0.5)
	if len(selected) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(selected))
	}
	if selected[0].Payload["doc_id"] != "near" {
		t.Fatalf("expected the closest hit first")
	}
}

func TestSelectMMRPenalizesRedundancy(t *testing.T) {
	query := []float32{1, 0.3, 0}
	hits := []searchHit{
		hit("a", []float32{1, 0, 0}),
		hit("a-dup", []float32{1, 0, 0}),
		hit("b", []float32{0, 1, 0}),
	}

	selected := selectMMR(query, hits, 2, 0.5)
	if len(selected) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(selected))
	}
	if selected[0].Payload["doc_id"] != "a" {
		t.Fatalf("expected most relevant hit first")
	}
	// The near-duplicate of the first pick loses to the diverse candidate.
	if selected[1].Payload["doc_id"] != "b" {
		t.Fatalf("expected diverse hit second, got %v", selected[1].Payload["doc_id"])
	}
}

func TestSelectMMRLimitBounds(t *testing.T) {
	query := []float32{1, 0}
	hits := []searchHit{hit("a", []float32{1, 0})}

	if got := selectMMR(query, hits, 5, 0.5); len(got) != 1 {
		t.Fatalf("expected limit clamped to candidate count, got %d", len(got))
	}
	if got := selectMMR(query, hits, 0, 0.5); got != nil {
		t.Fatalf("expected nil for non-positive limit")
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected identical vectors to score 1.0, got %.3f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("expected orthogonal vectors to score 0, got %.3f", got)
	}
	if got := cosine([]float32{1, 0}, []float32{1}); got != 0 {
		t.Fatalf("expected mismatched dimensions to score 0, got %.3f", got)
	}
}
