package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
	"github.com/mkravets/consultrag/internal/infrastructure/lexical"
)

var citationMarkerPattern = regexp.MustCompile(`\[\d+\]`)

// AnswerEvaluatorConfig tunes the post-generation quality gate.
type AnswerEvaluatorConfig struct {
	PassThreshold float64
	UseLLM        bool
}

func (c AnswerEvaluatorConfig) normalize() AnswerEvaluatorConfig {
	out := c
	if out.PassThreshold <= 0 || out.PassThreshold > 1 {
		out.PassThreshold = 0.6
	}
	return out
}

// AnswerEvaluator scores a generated answer against the question and the
// documents it was grounded on. The rule-based checks always run; the
// model-based score replaces them only when it is available.
type AnswerEvaluator struct {
	completion ports.CompletionService
	cfg        AnswerEvaluatorConfig
	logger     *slog.Logger
}

func NewAnswerEvaluator(completion ports.CompletionService, cfg AnswerEvaluatorConfig, logger *slog.Logger) *AnswerEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerEvaluator{completion: completion, cfg: cfg.normalize(), logger: logger}
}

func (e *AnswerEvaluator) Evaluate(ctx context.Context, question, answer string, docs []domain.ScoredDocument) domain.AnswerEvaluation {
	if e.cfg.UseLLM && e.completion != nil {
		if eval, err := e.llmEvaluate(ctx, question, answer); err == nil {
			return eval
		} else {
			e.logger.Warn("model answer evaluation failed, using rule-based score", "error", err)
		}
	}
	return e.ruleEvaluate(question, answer, docs)
}

// ruleEvaluate blends three signals: answer substance, question-term
// coverage, and citation usage when grounding documents exist.
func (e *AnswerEvaluator) ruleEvaluate(question, answer string, docs []domain.ScoredDocument) domain.AnswerEvaluation {
	var feedback []string

	lengthScore := 1.0
	trimmed := strings.TrimSpace(answer)
	switch {
	case len(trimmed) < 40:
		lengthScore = 0.2
		feedback = append(feedback, "answer is too short to be useful")
	case len(trimmed) < 120:
		lengthScore = 0.6
		feedback = append(feedback, "answer could be more detailed")
	}

	coverage := answerCoverage(question, trimmed)
	if coverage < 0.3 {
		feedback = append(feedback, "answer does not address the question terms")
	}

	citationScore := 1.0
	if len(docs) > 0 && !citationMarkerPattern.MatchString(trimmed) {
		citationScore = 0.4
		feedback = append(feedback, "answer cites none of the provided sources")
	}

	score := 0.4*lengthScore + 0.4*coverage + 0.2*citationScore
	eval := domain.AnswerEvaluation{
		Score:    score,
		Passed:   score >= e.cfg.PassThreshold,
		Feedback: strings.Join(feedback, "; "),
	}
	if !eval.Passed {
		eval.Adjustment = suggestAdjustment(lengthScore, coverage, citationScore)
	}
	return eval
}

func (e *AnswerEvaluator) llmEvaluate(ctx context.Context, question, answer string) (domain.AnswerEvaluation, error) {
	raw, err := e.completion.CompleteJSON(ctx, buildAnswerEvalPrompt(question, answer))
	if err != nil {
		return domain.AnswerEvaluation{}, err
	}
	var parsed struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.AnswerEvaluation{}, err
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}
	eval := domain.AnswerEvaluation{
		Score:    parsed.Score,
		Passed:   parsed.Score >= e.cfg.PassThreshold,
		Feedback: parsed.Feedback,
	}
	if !eval.Passed {
		eval.Adjustment = AdjustRegenerate
	}
	return eval, nil
}

// Adjustment values a failed evaluation can suggest to the pipeline.
const (
	AdjustExpandRetrieval = "expand_retrieval"
	AdjustAddCitations    = "add_citations"
	AdjustElaborate       = "elaborate"
	AdjustRegenerate      = "regenerate"
)

func suggestAdjustment(lengthScore, coverage, citationScore float64) string {
	switch {
	case coverage < 0.3:
		return AdjustExpandRetrieval
	case citationScore < 1.0:
		return AdjustAddCitations
	case lengthScore < 1.0:
		return AdjustElaborate
	default:
		return AdjustRegenerate
	}
}

// answerCoverage is the share of distinct question tokens that appear in
// the answer text.
func answerCoverage(question, answer string) float64 {
	queryTokens := lexical.Tokenize(question)
	if len(queryTokens) == 0 {
		return 1.0
	}
	answerSet := make(map[string]struct{})
	for _, tok := range lexical.Tokenize(answer) {
		answerSet[tok] = struct{}{}
	}
	unique := make(map[string]struct{}, len(queryTokens))
	matched := 0
	for _, tok := range queryTokens {
		if _, dup := unique[tok]; dup {
			continue
		}
		unique[tok] = struct{}{}
		if _, ok := answerSet[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(unique))
}
