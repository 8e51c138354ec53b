package usecase

import (
	"reflect"
	"testing"

	"github.com/mkravets/consultrag/internal/core/domain"
)

func TestFuseRRFPrefersDocumentsInBothRankings(t *testing.T) {
	lexical := []domain.ScoredDocument{
		doc("a", "vat registration threshold for small businesses", 0.9),
		doc("b", "quarterly vat filing deadlines", 0.7),
	}
	vector := []domain.ScoredDocument{
		doc("c", "income tax brackets", 0.8),
		doc("a", "vat registration threshold for small businesses", 0.6),
	}

	fused := fuseRRF(lexical, vector, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 distinct documents, got %d", len(fused))
	}
	if fused[0].ID != "a" {
		t.Fatalf("expected doc present in both rankings to lead, got %q", fused[0].ID)
	}
}

func TestFuseRRFDeterministic(t *testing.T) {
	lexical := []domain.ScoredDocument{doc("a", "alpha text", 0.9), doc("b", "beta text", 0.8)}
	vector := []domain.ScoredDocument{doc("c", "gamma text", 0.7), doc("d", "delta text", 0.6)}

	first := fuseRRF(lexical, vector, 60)
	for i := 0; i < 10; i++ {
		again := fuseRRF(lexical, vector, 60)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("fusion order changed between identical runs")
		}
	}
}

func TestFuseRRFDeduplicatesByContentPrefix(t *testing.T) {
	// Same text under different IDs collapses to one candidate.
	lexical := []domain.ScoredDocument{doc("chunk-1", "the severance formula uses average wage", 0.9)}
	vector := []domain.ScoredDocument{doc("chunk-9", "the severance formula uses average wage", 0.8)}

	fused := fuseRRF(lexical, vector, 60)
	if len(fused) != 1 {
		t.Fatalf("expected duplicate content to collapse, got %d documents", len(fused))
	}
}

func TestContentKeyFallsBackToIDForEmptyText(t *testing.T) {
	a := domain.ScoredDocument{ID: "x"}
	b := domain.ScoredDocument{ID: "y"}
	if contentKey(a) == contentKey(b) {
		t.Fatalf("expected distinct keys for distinct empty-text documents")
	}
}
