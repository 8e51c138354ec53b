package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/mkravets/consultrag/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *domain.Registry {
	return domain.NewRegistry([]domain.DomainConfig{
		{
			Name:                  "funding",
			Label:                 "Funding Programs",
			Collection:            "funding_docs",
			Keywords:              []string{"grant", "subsidy", "funding"},
			RepresentativeQueries: []string{"what grants are available", "how to apply for a subsidy"},
			Adjacent:              []string{"finance"},
			SuggestedActions:      []string{"Browse open funding calls"},
		},
		{
			Name:                  "tax",
			Label:                 "Tax",
			Collection:            "tax_docs",
			Keywords:              []string{"vat", "income tax", "deduction"},
			RepresentativeQueries: []string{"how is vat calculated", "what deductions can I claim"},
			Adjacent:              []string{"finance"},
			SuggestedActions:      []string{"Estimate your tax"},
		},
		{
			Name:                  "labor",
			Label:                 "Labor",
			Collection:            "labor_docs",
			Keywords:              []string{"overtime", "dismissal", "severance"},
			RepresentativeQueries: []string{"how is overtime paid"},
			Adjacent:              []string{"legal", "tax", "funding"},
		},
		{
			Name:                  "legal",
			Label:                 "Legal",
			Collection:            "legal_docs",
			Keywords:              []string{"contract", "liability"},
			RepresentativeQueries: []string{"what must a contract contain"},
			Adjacent:              []string{"labor"},
		},
	})
}

type fakeEmbedder struct {
	embedFn func(text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.embedFn == nil {
		return nil, errors.New("embedder unavailable")
	}
	return f.embedFn(text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type fakeCompletion struct {
	mu          sync.Mutex
	completeFn  func(prompt string) (string, error)
	jsonFn      func(prompt string) (string, error)
	streamFn    func(prompt string, onToken func(string) error) error
	completes   int
	jsonCalls   int
	streamCalls int
}

func (f *fakeCompletion) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.completes++
	f.mu.Unlock()
	if f.completeFn == nil {
		return "", errors.New("completion unavailable")
	}
	return f.completeFn(prompt)
}

func (f *fakeCompletion) CompleteJSON(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.jsonCalls++
	f.mu.Unlock()
	if f.jsonFn == nil {
		return "", errors.New("completion unavailable")
	}
	return f.jsonFn(prompt)
}

func (f *fakeCompletion) CompleteStream(_ context.Context, prompt string, onToken func(string) error) error {
	f.mu.Lock()
	f.streamCalls++
	f.mu.Unlock()
	if f.streamFn == nil {
		return errors.New("completion unavailable")
	}
	return f.streamFn(prompt, onToken)
}

type fakeLexical struct {
	mu          sync.Mutex
	searchFn    func(collection, query string, limit int) ([]domain.ScoredDocument, error)
	collections []string
}

func (f *fakeLexical) Search(_ context.Context, collection, query string, limit int) ([]domain.ScoredDocument, error) {
	f.mu.Lock()
	f.collections = append(f.collections, collection)
	f.mu.Unlock()
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(collection, query, limit)
}

func (f *fakeLexical) searched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.collections...)
}

type fakeVector struct {
	searchFn func(collection string, limit int) ([]domain.ScoredDocument, error)
}

func (f *fakeVector) Search(_ context.Context, collection string, _ []float32, limit int) ([]domain.ScoredDocument, error) {
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(collection, limit)
}

func (f *fakeVector) SearchMMR(ctx context.Context, collection string, queryVector []float32, limit, _ int, _ float64) ([]domain.ScoredDocument, error) {
	return f.Search(ctx, collection, queryVector, limit)
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	published []*domain.Answer
}

func (f *fakePublisher) PublishAnswerCompleted(_ context.Context, answer *domain.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, answer)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func doc(id, text string, score float64) domain.ScoredDocument {
	return domain.ScoredDocument{ID: id, Title: "Doc " + id, Origin: "test", Text: text, Score: score}
}
