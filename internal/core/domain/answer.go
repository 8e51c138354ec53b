package domain

import "time"

// AnswerStatus distinguishes normal answers from designed terminal states.
type AnswerStatus string

const (
	AnswerStatusOK         AnswerStatus = "ok"
	AnswerStatusOutOfScope AnswerStatus = "out_of_scope"
	AnswerStatusFallback   AnswerStatus = "fallback"
)

// AnswerEvaluation scores the final answer text against a pass threshold.
type AnswerEvaluation struct {
	Score      float64 `json:"score"`
	Passed     bool    `json:"passed"`
	Feedback   string  `json:"feedback,omitempty"`
	Adjustment string  `json:"adjustment,omitempty"`
}

// StageTimings reports per-stage elapsed time for one request.
type StageTimings struct {
	Classify time.Duration `json:"classify"`
	Retrieve time.Duration `json:"retrieve"`
	Generate time.Duration `json:"generate"`
	Total    time.Duration `json:"total"`
}

// Answer is the payload produced for the calling layer.
type Answer struct {
	RequestID        string           `json:"request_id"`
	Text             string           `json:"text"`
	Status           AnswerStatus     `json:"status"`
	Domains          []string         `json:"domains"`
	Sources          []Source         `json:"sources"`
	SuggestedActions []string         `json:"suggested_actions,omitempty"`
	Evaluation       AnswerEvaluation `json:"evaluation"`
	RetryCount       int              `json:"retry_count"`
	Timings          StageTimings     `json:"timings"`
}

// Cacheable reports whether the answer may be stored in the response cache.
// Fallback and out-of-scope payloads are never cached.
func (a *Answer) Cacheable() bool {
	return a != nil && a.Status == AnswerStatusOK
}

// StreamEventType identifies one event of the streaming answer variant.
type StreamEventType string

const (
	StreamEventToken   StreamEventType = "token"
	StreamEventSources StreamEventType = "sources"
	StreamEventDone    StreamEventType = "done"
)

// StreamEvent is one emission of the streaming answer variant: token events
// first, then one sources/actions event, then a terminal done event carrying
// the full answer metadata.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Token   string          `json:"token,omitempty"`
	Sources []Source        `json:"sources,omitempty"`
	Actions []string        `json:"actions,omitempty"`
	Answer  *Answer         `json:"answer,omitempty"`
}
