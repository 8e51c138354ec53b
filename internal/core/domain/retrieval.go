package domain

import "time"

// ScoredDocument is one retrieved passage with its similarity score.
type ScoredDocument struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Origin string  `json:"origin"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Domain string  `json:"domain"`
}

// Source is a user-facing citation derived from a retrieved document.
type Source struct {
	Title   string  `json:"title"`
	Origin  string  `json:"origin"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// EvaluationStatus is the outcome of rule-based retrieval evaluation.
type EvaluationStatus string

const (
	EvaluationSuccess    EvaluationStatus = "success"
	EvaluationNeedsRetry EvaluationStatus = "needs_retry"
	EvaluationFailed     EvaluationStatus = "failed"
)

// RetrievalEvaluation scores one domain's retrieval outcome.
type RetrievalEvaluation struct {
	Status            EvaluationStatus `json:"status"`
	DocumentCount     int              `json:"document_count"`
	KeywordMatchRatio float64          `json:"keyword_match_ratio"`
	AverageScore      float64          `json:"average_score"`
	Reason            string           `json:"reason,omitempty"`
}

// Passed reports whether evaluation succeeded without retry.
func (e RetrievalEvaluation) Passed() bool {
	return e.Status == EvaluationSuccess
}

// RetrievalResult holds one domain's ranked documents and evaluation.
type RetrievalResult struct {
	Domain          string              `json:"domain"`
	Query           string              `json:"query"`
	ExpandedQueries []string            `json:"expanded_queries,omitempty"`
	Documents       []ScoredDocument    `json:"documents"`
	Evaluation      RetrievalEvaluation `json:"evaluation"`
	UsedMultiQuery  bool                `json:"used_multi_query"`
	Elapsed         time.Duration       `json:"elapsed"`
}

// Sources derives user-facing citations from the ranked documents.
func (r RetrievalResult) Sources() []Source {
	out := make([]Source, 0, len(r.Documents))
	for _, doc := range r.Documents {
		excerpt := doc.Text
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		out = append(out, Source{
			Title:   doc.Title,
			Origin:  doc.Origin,
			Excerpt: excerpt,
			Score:   doc.Score,
		})
	}
	return out
}

// SupplementDomain is the synthetic result key for the legal supplement search.
const SupplementDomain = "legal-supplement"
