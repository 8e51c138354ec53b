package domain

// DialogueTurn is one prior message of the consultation dialogue.
type DialogueTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CallerProfile carries read-only caller context used to bias generation.
type CallerProfile struct {
	Region  string `json:"region,omitempty"`
	Persona string `json:"persona,omitempty"`
}

// Query is the immutable request input.
type Query struct {
	Text       string         `json:"text"`
	History    []DialogueTurn `json:"history,omitempty"`
	Profile    *CallerProfile `json:"profile,omitempty"`
	DomainHint string         `json:"domain,omitempty"`
}

// LastAssistantTurn returns the content of the most recent assistant message.
func (q Query) LastAssistantTurn() string {
	for i := len(q.History) - 1; i >= 0; i-- {
		if q.History[i].Role == RoleAssistant {
			return q.History[i].Content
		}
	}
	return ""
}

// RecentHistory returns up to n most recent turns in chronological order.
func (q Query) RecentHistory(n int) []DialogueTurn {
	if n <= 0 || len(q.History) <= n {
		return q.History
	}
	return q.History[len(q.History)-n:]
}

// SubQuery is one decomposed, single-domain fragment of the original question.
type SubQuery struct {
	Domain string `json:"domain"`
	Text   string `json:"text"`
}

// SearchMode selects the retrieval strategy for one sub-query.
type SearchMode string

const (
	SearchModeExactMatchPlusVector SearchMode = "exact_match_plus_vector"
	SearchModeLexicalHeavy         SearchMode = "lexical_heavy"
	SearchModeVectorHeavy          SearchMode = "vector_heavy"
	SearchModeDiversity            SearchMode = "diversity"
	SearchModeHybrid               SearchMode = "hybrid"
)

// QueryCharacteristics holds attributes derived once from the raw query text.
type QueryCharacteristics struct {
	Length            int        `json:"length"`
	WordCount         int        `json:"word_count"`
	HasLegalCitation  bool       `json:"has_legal_citation"`
	HasNumericContent bool       `json:"has_numeric_content"`
	IsFactual         bool       `json:"is_factual"`
	IsComplex         bool       `json:"is_complex"`
	IsVague           bool       `json:"is_vague"`
	KeywordDensity    float64    `json:"keyword_density"`
	Mode              SearchMode `json:"mode"`
	TopK              int        `json:"top_k"`
}
