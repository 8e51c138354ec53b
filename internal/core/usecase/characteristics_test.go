package usecase

import (
	"testing"

	"github.com/mkravets/consultrag/internal/core/domain"
)

func TestAnalyzeQueryLegalCitation(t *testing.T) {
	chars := AnalyzeQuery("What does Article 17 of the Labor Standards Act require?", testRegistry())
	if !chars.HasLegalCitation {
		t.Fatalf("expected legal citation to be detected")
	}
	if chars.Mode != domain.SearchModeExactMatchPlusVector {
		t.Fatalf("expected exact_match_plus_vector mode, got %s", chars.Mode)
	}
	if chars.TopK != 5 {
		t.Fatalf("expected top_k 5, got %d", chars.TopK)
	}
}

func TestAnalyzeQueryShortKeywordDense(t *testing.T) {
	chars := AnalyzeQuery("vat deduction", testRegistry())
	if chars.Mode != domain.SearchModeLexicalHeavy {
		t.Fatalf("expected lexical_heavy mode, got %s", chars.Mode)
	}
	if chars.TopK != 3 {
		t.Fatalf("expected top_k 3, got %d", chars.TopK)
	}
}

func TestAnalyzeQueryLongComplex(t *testing.T) {
	text := "I run a small bakery and want to understand which grants and subsidies " +
		"apply to a food business expanding into a second location"
	chars := AnalyzeQuery(text, testRegistry())
	if !chars.IsComplex {
		t.Fatalf("expected query to be complex")
	}
	if chars.Mode != domain.SearchModeVectorHeavy {
		t.Fatalf("expected vector_heavy mode, got %s", chars.Mode)
	}
	if chars.TopK != 7 {
		t.Fatalf("expected top_k 7, got %d", chars.TopK)
	}
}

func TestAnalyzeQueryVague(t *testing.T) {
	chars := AnalyzeQuery("can you help me please", testRegistry())
	if !chars.IsVague {
		t.Fatalf("expected query to be vague")
	}
	if chars.Mode != domain.SearchModeDiversity {
		t.Fatalf("expected diversity mode, got %s", chars.Mode)
	}
}

func TestAnalyzeQueryDefaultHybrid(t *testing.T) {
	chars := AnalyzeQuery("hi there", testRegistry())
	if chars.Mode != domain.SearchModeHybrid {
		t.Fatalf("expected hybrid mode, got %s", chars.Mode)
	}
	if chars.TopK != 5 {
		t.Fatalf("expected top_k 5, got %d", chars.TopK)
	}
}

func TestAnalyzeQueryFactualDetection(t *testing.T) {
	chars := AnalyzeQuery("What is the vat rate", testRegistry())
	if !chars.IsFactual {
		t.Fatalf("expected short what-question to be factual")
	}
}
