package domain

// ClassificationMethod records which layer produced the final decision.
type ClassificationMethod string

const (
	MethodNone                 ClassificationMethod = "none"
	MethodKeyword              ClassificationMethod = "keyword"
	MethodVector               ClassificationMethod = "vector"
	MethodKeywordVector        ClassificationMethod = "keyword+vector"
	MethodLLM                  ClassificationMethod = "llm"
	MethodLLMKeywordOverride   ClassificationMethod = "llm+keyword_override"
	MethodLLMHeuristicOverride ClassificationMethod = "llm+heuristic_override"
)

// ClassificationResult is produced once per request and read-only downstream.
type ClassificationResult struct {
	Domains         []string             `json:"domains"`
	Confidence      float64              `json:"confidence"`
	Relevant        bool                 `json:"relevant"`
	Method          ClassificationMethod `json:"method"`
	MatchedKeywords map[string][]string  `json:"matched_keywords,omitempty"`
}

// Primary returns the first matched domain, or "" when none matched.
func (r ClassificationResult) Primary() string {
	if len(r.Domains) == 0 {
		return ""
	}
	return r.Domains[0]
}
