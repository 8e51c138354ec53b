package usecase

import (
	"fmt"
	"strings"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/infrastructure/lexical"
)

// EvaluatorConfig tunes rule-based retrieval evaluation.
type EvaluatorConfig struct {
	MinDocuments     int
	KeywordThreshold float64
	ScoreThreshold   float64
}

func (c EvaluatorConfig) normalize() EvaluatorConfig {
	out := c
	if out.MinDocuments <= 0 {
		out.MinDocuments = 2
	}
	if out.KeywordThreshold <= 0 {
		out.KeywordThreshold = 0.3
	}
	if out.ScoreThreshold <= 0 {
		out.ScoreThreshold = 0.5
	}
	return out
}

// RetrievalEvaluator scores retrieval quality with rules only; no model
// call is involved.
type RetrievalEvaluator struct {
	cfg EvaluatorConfig
}

func NewRetrievalEvaluator(cfg EvaluatorConfig) *RetrievalEvaluator {
	return &RetrievalEvaluator{cfg: cfg.normalize()}
}

// Relaxed returns a copy with both thresholds lowered by delta but never
// below the given floors. The original evaluator is untouched, so normal
// thresholds apply again after the relaxed attempt.
func (e *RetrievalEvaluator) Relaxed(delta, keywordFloor, scoreFloor float64) *RetrievalEvaluator {
	relaxed := e.cfg
	relaxed.KeywordThreshold -= delta
	if relaxed.KeywordThreshold < keywordFloor {
		relaxed.KeywordThreshold = keywordFloor
	}
	relaxed.ScoreThreshold -= delta
	if relaxed.ScoreThreshold < scoreFloor {
		relaxed.ScoreThreshold = scoreFloor
	}
	return &RetrievalEvaluator{cfg: relaxed}
}

// Evaluate applies the rules in order: document count first, then keyword
// match ratio and average similarity.
func (e *RetrievalEvaluator) Evaluate(query string, docs []domain.ScoredDocument) domain.RetrievalEvaluation {
	count := len(docs)
	if count < e.cfg.MinDocuments {
		return domain.RetrievalEvaluation{
			Status:        domain.EvaluationFailed,
			DocumentCount: count,
			Reason:        fmt.Sprintf("%d documents, minimum %d", count, e.cfg.MinDocuments),
		}
	}

	keywordRatio := keywordMatchRatio(query, docs)
	avgScore := averageScore(docs)

	eval := domain.RetrievalEvaluation{
		DocumentCount:     count,
		KeywordMatchRatio: keywordRatio,
		AverageScore:      avgScore,
	}

	switch {
	case keywordRatio < e.cfg.KeywordThreshold:
		eval.Status = domain.EvaluationNeedsRetry
		eval.Reason = fmt.Sprintf("keyword match %.2f below %.2f", keywordRatio, e.cfg.KeywordThreshold)
	case avgScore < e.cfg.ScoreThreshold:
		eval.Status = domain.EvaluationNeedsRetry
		eval.Reason = fmt.Sprintf("average similarity %.2f below %.2f", avgScore, e.cfg.ScoreThreshold)
	default:
		eval.Status = domain.EvaluationSuccess
	}
	return eval
}

// keywordMatchRatio is the fraction of query tokens present anywhere in the
// returned text.
func keywordMatchRatio(query string, docs []domain.ScoredDocument) float64 {
	queryTokens := lexical.Tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}

	var combined strings.Builder
	for _, doc := range docs {
		combined.WriteString(doc.Title)
		combined.WriteString(" ")
		combined.WriteString(doc.Text)
		combined.WriteString(" ")
	}
	docTokens := make(map[string]struct{})
	for _, t := range lexical.Tokenize(combined.String()) {
		docTokens[t] = struct{}{}
	}

	unique := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		unique[t] = struct{}{}
	}
	hits := 0
	for t := range unique {
		if _, ok := docTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(unique))
}

func averageScore(docs []domain.ScoredDocument) float64 {
	if len(docs) == 0 {
		return 0
	}
	sum := 0.0
	for _, doc := range docs {
		sum += doc.Score
	}
	return sum / float64(len(docs))
}
