package rerank

import (
	"context"
	"sort"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/infrastructure/lexical"
)

// Overlap ranks documents by lexical token overlap with the query. It is the
// deterministic fallback every other strategy degrades to and never errors.
type Overlap struct{}

func NewOverlap() *Overlap {
	return &Overlap{}
}

func (o *Overlap) Rerank(_ context.Context, query string, docs []domain.ScoredDocument, topK int) ([]domain.ScoredDocument, error) {
	return RankByOverlap(query, docs, topK), nil
}

// RankByOverlap blends the incoming similarity score with query-token overlap
// and returns the top topK documents.
func RankByOverlap(query string, docs []domain.ScoredDocument, topK int) []domain.ScoredDocument {
	if len(docs) == 0 {
		return docs
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}

	queryTokens := tokenSet(query)
	out := make([]domain.ScoredDocument, len(docs))
	copy(out, docs)

	for i := range out {
		overlap := overlapRatio(queryTokens, tokenSet(out[i].Title+" "+out[i].Text))
		out[i].Score = 0.5*out[i].Score + 0.5*overlap
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out[:topK]
}

func tokenSet(text string) map[string]struct{} {
	tokens := lexical.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlapRatio(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
