package rerank

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mkravets/consultrag/internal/core/domain"
)

func testDocs() []domain.ScoredDocument {
	return []domain.ScoredDocument{
		{ID: "a", Title: "Grant programs", Text: "startup grant programs open twice a year", Score: 0.9},
		{ID: "b", Title: "Severance pay", Text: "severance pay is calculated from the average wage", Score: 0.5},
		{ID: "c", Title: "VAT filing", Text: "vat returns are filed quarterly", Score: 0.4},
	}
}

func TestRankByOverlapPromotesMatchingDocument(t *testing.T) {
	ranked := RankByOverlap("severance pay average wage", testDocs(), 3)
	if ranked[0].ID != "b" {
		t.Fatalf("expected overlapping document first, got %q", ranked[0].ID)
	}
}

func TestRankByOverlapTrimsToTopK(t *testing.T) {
	ranked := RankByOverlap("severance", testDocs(), 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(ranked))
	}
}

func TestRankByOverlapDeterministic(t *testing.T) {
	first := RankByOverlap("vat filing", testDocs(), 3)
	for i := 0; i < 5; i++ {
		again := RankByOverlap("vat filing", testDocs(), 3)
		for j := range first {
			if first[j].ID != again[j].ID {
				t.Fatalf("ordering changed between identical runs")
			}
		}
	}
}

type erroringReranker struct{}

func (erroringReranker) Rerank(context.Context, string, []domain.ScoredDocument, int) ([]domain.ScoredDocument, error) {
	return nil, errors.New("model unavailable")
}

func TestWithFallbackDegradesToOverlap(t *testing.T) {
	fallbacks := 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reranker := NewWithFallback(erroringReranker{}, logger, func() { fallbacks++ })

	ranked, err := reranker.Rerank(context.Background(), "severance pay", testDocs(), 2)
	if err != nil {
		t.Fatalf("expected degraded ranking, got error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(ranked))
	}
	if ranked[0].ID != "b" {
		t.Fatalf("expected overlap ranking, got %q first", ranked[0].ID)
	}
	if fallbacks != 1 {
		t.Fatalf("expected fallback callback once, got %d", fallbacks)
	}
}

func TestWithFallbackPassesThroughOnSuccess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reranker := NewWithFallback(NewOverlap(), logger, func() {
		t.Fatalf("fallback must not fire when the primary succeeds")
	})

	if _, err := reranker.Rerank(context.Background(), "vat", testDocs(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
