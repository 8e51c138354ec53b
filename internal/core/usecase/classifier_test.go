package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// axisEmbedder maps text onto fixed axes so cosine similarity against the
// per-domain mean vectors is predictable in tests.
func axisEmbedder() *fakeEmbedder {
	return &fakeEmbedder{embedFn: func(text string) ([]float32, error) {
		lowered := strings.ToLower(text)
		switch {
		case strings.Contains(lowered, "vat") || strings.Contains(lowered, "deduction"):
			return []float32{0, 1, 0}, nil
		case strings.Contains(lowered, "grant") || strings.Contains(lowered, "subsidy"):
			return []float32{1, 0, 0}, nil
		case strings.Contains(lowered, "overtime"):
			return []float32{0, 0, 1}, nil
		default:
			return []float32{0.05, 0.05, 0.05}, nil
		}
	}}
}

func TestClassifyKeywordOnly(t *testing.T) {
	classifier := NewDomainClassifier(testRegistry(), &fakeEmbedder{}, &fakeCompletion{},
		ClassifierConfig{VectorEnabled: false}, discardLogger())

	result := classifier.Classify(context.Background(), "how do I claim a vat deduction")
	if !result.Relevant {
		t.Fatalf("expected relevant result")
	}
	if result.Primary() != "tax" {
		t.Fatalf("expected tax domain, got %q", result.Primary())
	}
	if result.Method != domain.MethodKeyword {
		t.Fatalf("expected keyword method, got %s", result.Method)
	}
	// Two keyword hits: 0.5 + 0.1*2.
	if math.Abs(result.Confidence-0.7) > 1e-9 {
		t.Fatalf("expected confidence 0.7, got %.2f", result.Confidence)
	}
}

func TestClassifyNoSignalsRejects(t *testing.T) {
	classifier := NewDomainClassifier(testRegistry(), &fakeEmbedder{}, &fakeCompletion{},
		ClassifierConfig{VectorEnabled: false}, discardLogger())

	result := classifier.Classify(context.Background(), "what is the weather today")
	if result.Relevant {
		t.Fatalf("expected rejection for off-topic query")
	}
	if result.Method != domain.MethodNone {
		t.Fatalf("expected method none, got %s", result.Method)
	}
}

func TestClassifyKeywordVectorAgreementBoostsConfidence(t *testing.T) {
	classifier := NewDomainClassifier(testRegistry(), axisEmbedder(), &fakeCompletion{},
		ClassifierConfig{VectorEnabled: true, SimilarityThreshold: 0.6, SimilarityGap: 0.15},
		discardLogger())

	result := classifier.Classify(context.Background(), "how is vat calculated")
	if !result.Relevant {
		t.Fatalf("expected relevant result")
	}
	if result.Method != domain.MethodKeywordVector {
		t.Fatalf("expected keyword+vector method, got %s", result.Method)
	}
	if result.Primary() != "tax" {
		t.Fatalf("expected tax domain, got %q", result.Primary())
	}
	// Similarity is 1.0 on the tax axis; the boost is capped at 1.0.
	if result.Confidence != 1.0 {
		t.Fatalf("expected capped confidence 1.0, got %.2f", result.Confidence)
	}
}

func TestClassifyVectorOverrulesKeywordHit(t *testing.T) {
	// Embed everything far from every mean so similarity stays below the
	// threshold despite the keyword match.
	embedder := &fakeEmbedder{embedFn: func(text string) ([]float32, error) {
		lowered := strings.ToLower(text)
		switch {
		case strings.Contains(lowered, "how is vat calculated"),
			strings.Contains(lowered, "deduction"),
			strings.Contains(lowered, "grant"),
			strings.Contains(lowered, "subsidy"),
			strings.Contains(lowered, "overtime"),
			strings.Contains(lowered, "contract"):
			return []float32{1, 0}, nil
		default:
			return []float32{0, 1}, nil
		}
	}}
	classifier := NewDomainClassifier(testRegistry(), embedder, &fakeCompletion{},
		ClassifierConfig{VectorEnabled: true, SimilarityThreshold: 0.6}, discardLogger())

	result := classifier.Classify(context.Background(), "my cat knocked over the vat of soup")
	if result.Relevant {
		t.Fatalf("expected vector layer to reject despite keyword hit")
	}
	if result.Method != domain.MethodVector {
		t.Fatalf("expected vector method on rejection, got %s", result.Method)
	}
}

func TestClassifyVectorFailureFallsBackToKeywords(t *testing.T) {
	embedder := &fakeEmbedder{embedFn: func(string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}}
	classifier := NewDomainClassifier(testRegistry(), embedder, &fakeCompletion{},
		ClassifierConfig{VectorEnabled: true}, discardLogger())

	result := classifier.Classify(context.Background(), "how do I claim a vat deduction")
	if !result.Relevant {
		t.Fatalf("expected keyword fallback to accept")
	}
	if result.Method != domain.MethodKeyword {
		t.Fatalf("expected keyword method, got %s", result.Method)
	}
}

func TestClassifyLLMKeywordOverride(t *testing.T) {
	completion := &fakeCompletion{jsonFn: func(string) (string, error) {
		return `{"relevant": false, "domains": []}`, nil
	}}
	classifier := NewDomainClassifier(testRegistry(), &fakeEmbedder{}, completion,
		ClassifierConfig{VectorEnabled: false, LLMEnabled: true}, discardLogger())

	result := classifier.Classify(context.Background(), "how is overtime calculated")
	if !result.Relevant {
		t.Fatalf("expected keyword override to accept")
	}
	if result.Method != domain.MethodLLMKeywordOverride {
		t.Fatalf("expected llm+keyword_override, got %s", result.Method)
	}
	if result.Primary() != "labor" {
		t.Fatalf("expected labor domain, got %q", result.Primary())
	}
}

func TestClassifyComputesMeanEmbeddingsOnce(t *testing.T) {
	repCounts := make(map[string]int)
	for _, d := range testRegistry().Domains() {
		for _, q := range d.RepresentativeQueries {
			repCounts[q] = 0
		}
	}

	var mu sync.Mutex
	base := axisEmbedder()
	embedder := &fakeEmbedder{embedFn: func(text string) ([]float32, error) {
		mu.Lock()
		if _, ok := repCounts[text]; ok {
			repCounts[text]++
		}
		mu.Unlock()
		return base.embedFn(text)
	}}
	classifier := NewDomainClassifier(testRegistry(), embedder, &fakeCompletion{},
		ClassifierConfig{VectorEnabled: true, SimilarityThreshold: 0.6, SimilarityGap: 0.15},
		discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			classifier.Classify(context.Background(), "how is vat calculated")
		}()
	}
	wg.Wait()

	for query, count := range repCounts {
		if count != 1 {
			t.Fatalf("representative query %q embedded %d times, want 1", query, count)
		}
	}
}
