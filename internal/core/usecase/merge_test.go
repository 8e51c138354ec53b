package usecase

import (
	"context"
	"testing"

	"github.com/mkravets/consultrag/internal/core/domain"
)

func TestMergeHonorsBudgetsAndPriority(t *testing.T) {
	merger := NewMerger(nil, false, discardLogger(), nil)

	results := map[string]domain.RetrievalResult{
		"tax": {Domain: "tax", Documents: []domain.ScoredDocument{
			doc("t1", "vat rate details", 0.9),
			doc("t2", "vat filing details", 0.8),
			doc("t3", "vat penalty details", 0.7),
		}},
		"funding": {Domain: "funding", Documents: []domain.ScoredDocument{
			doc("f1", "grant program details", 0.95),
		}},
	}
	budgets := []domain.DomainBudget{
		{Domain: "tax", K: 2, Primary: true, Priority: 0},
		{Domain: "funding", K: 1, Priority: 1},
	}

	merged := merger.Merge(context.Background(), "vat and grants", results, budgets)
	if len(merged) != 3 {
		t.Fatalf("expected 3 documents after trimming, got %d", len(merged))
	}
	if merged[0].ID != "t1" || merged[1].ID != "t2" {
		t.Fatalf("expected primary domain documents first, got %q, %q", merged[0].ID, merged[1].ID)
	}
	if merged[2].ID != "f1" {
		t.Fatalf("expected secondary domain document last, got %q", merged[2].ID)
	}
}

func TestMergeDeduplicatesAcrossDomains(t *testing.T) {
	merger := NewMerger(nil, false, discardLogger(), nil)

	shared := "startup grants may be taxed as ordinary income"
	results := map[string]domain.RetrievalResult{
		"tax":     {Documents: []domain.ScoredDocument{doc("t1", shared, 0.9)}},
		"funding": {Documents: []domain.ScoredDocument{doc("f1", shared, 0.8)}},
	}
	budgets := []domain.DomainBudget{
		{Domain: "tax", K: 2, Primary: true, Priority: 0},
		{Domain: "funding", K: 2, Priority: 1},
	}

	merged := merger.Merge(context.Background(), "grant taxation", results, budgets)
	if len(merged) != 1 {
		t.Fatalf("expected shared chunk to appear once, got %d", len(merged))
	}
	if merged[0].ID != "t1" {
		t.Fatalf("expected the higher-priority copy to win, got %q", merged[0].ID)
	}
}

func TestMergeAppendsUnbudgetedSupplement(t *testing.T) {
	merger := NewMerger(nil, false, discardLogger(), nil)

	results := map[string]domain.RetrievalResult{
		"tax": {Documents: []domain.ScoredDocument{doc("t1", "vat basics", 0.9)}},
		domain.SupplementDomain: {Documents: []domain.ScoredDocument{
			doc("s1", "article 12 statutory wording", 0.7),
		}},
	}
	budgets := []domain.DomainBudget{{Domain: "tax", K: 2, Primary: true, Priority: 0}}

	merged := merger.Merge(context.Background(), "vat article 12", results, budgets)
	if len(merged) != 2 {
		t.Fatalf("expected supplement appended, got %d documents", len(merged))
	}
	if merged[len(merged)-1].ID != "s1" {
		t.Fatalf("expected supplement document last, got %q", merged[len(merged)-1].ID)
	}
}

func TestMergeCrossDomainRerankFallsBackOnError(t *testing.T) {
	fallbacks := 0
	merger := NewMerger(failingReranker{}, true, discardLogger(), func() { fallbacks++ })

	results := map[string]domain.RetrievalResult{
		"tax": {Documents: []domain.ScoredDocument{
			doc("t1", "vat rate", 0.9),
			doc("t2", "vat filing", 0.8),
		}},
	}
	budgets := []domain.DomainBudget{{Domain: "tax", K: 2, Primary: true, Priority: 0}}

	merged := merger.Merge(context.Background(), "vat", results, budgets)
	if len(merged) != 2 {
		t.Fatalf("expected priority-ordered documents on fallback, got %d", len(merged))
	}
	if fallbacks != 1 {
		t.Fatalf("expected fallback to be recorded once, got %d", fallbacks)
	}
}

type failingReranker struct{}

func (failingReranker) Rerank(context.Context, string, []domain.ScoredDocument, int) ([]domain.ScoredDocument, error) {
	return nil, context.DeadlineExceeded
}

func TestMergeCrossDomainRerankSeesOverBudgetDocuments(t *testing.T) {
	reranker := &recordingReranker{}
	merger := NewMerger(reranker, true, discardLogger(), nil)

	results := map[string]domain.RetrievalResult{
		"tax": {Documents: []domain.ScoredDocument{
			doc("w1", "vat rate overview", 0.9),
			doc("w2", "vat on cross-border grants", 0.8),
		}},
		"funding": {Documents: []domain.ScoredDocument{
			doc("f1", "grant program details", 0.95),
		}},
	}
	budgets := []domain.DomainBudget{
		{Domain: "tax", K: 1, Primary: true, Priority: 0},
		{Domain: "funding", K: 1, Priority: 1},
	}

	merged := merger.Merge(context.Background(), "vat on grants", results, budgets)

	// The reranker must see every deduplicated candidate, including w2,
	// which sits below the tax budget cutoff.
	sawOverBudget := false
	for _, d := range reranker.pool {
		if d.ID == "w2" {
			sawOverBudget = true
		}
	}
	if !sawOverBudget {
		t.Fatalf("expected the reranker pool to include the over-budget document, got %d candidates", len(reranker.pool))
	}
	if reranker.topK != 2 {
		t.Fatalf("expected rerank to the combined budget total of 2, got %d", reranker.topK)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 documents after reranking, got %d", len(merged))
	}
	if merged[0].ID != "w2" {
		t.Fatalf("expected the promoted document to lead, got %q", merged[0].ID)
	}
}

// recordingReranker captures its input pool and promotes document w2.
type recordingReranker struct {
	pool []domain.ScoredDocument
	topK int
}

func (r *recordingReranker) Rerank(_ context.Context, _ string, docs []domain.ScoredDocument, topK int) ([]domain.ScoredDocument, error) {
	r.pool = append([]domain.ScoredDocument(nil), docs...)
	r.topK = topK
	out := make([]domain.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		if d.ID == "w2" {
			out = append([]domain.ScoredDocument{d}, out...)
			continue
		}
		out = append(out, d)
	}
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}
