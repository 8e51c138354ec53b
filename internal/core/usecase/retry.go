package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

// RetryConfig bounds the graduated escalation ladder.
type RetryConfig struct {
	MaxLevel           int
	ExtraK             int
	RelaxDelta         float64
	KeywordFloor       float64
	ScoreFloor         float64
	CrossDomainK       int
	MaxAdjacentDomains int
	QueryVariants      int
}

func (c RetryConfig) normalize() RetryConfig {
	out := c
	if out.MaxLevel <= 0 || out.MaxLevel > 4 {
		out.MaxLevel = 4
	}
	if out.ExtraK <= 0 {
		out.ExtraK = 3
	}
	if out.RelaxDelta <= 0 {
		out.RelaxDelta = 0.15
	}
	if out.KeywordFloor <= 0 {
		out.KeywordFloor = 0.15
	}
	if out.ScoreFloor <= 0 {
		out.ScoreFloor = 0.35
	}
	if out.CrossDomainK <= 0 {
		out.CrossDomainK = 3
	}
	if out.MaxAdjacentDomains <= 0 {
		out.MaxAdjacentDomains = 2
	}
	if out.QueryVariants <= 0 {
		out.QueryVariants = 2
	}
	return out
}

// RetryHandler escalates a failed retrieval one level at a time until the
// evaluation passes or the ladder is exhausted. Relaxed thresholds apply
// only to the first level; later levels change the retrieval itself and
// are judged under the normal thresholds. A level that errors keeps the
// best result gathered so far instead of aborting.
type RetryHandler struct {
	retriever  *HybridRetriever
	evaluator  *RetrievalEvaluator
	completion ports.CompletionService
	registry   *domain.Registry
	cfg        RetryConfig
	logger     *slog.Logger

	// onEscalate is invoked with the level name each time a level runs.
	onEscalate func(level string)
}

func NewRetryHandler(
	retriever *HybridRetriever,
	evaluator *RetrievalEvaluator,
	completion ports.CompletionService,
	registry *domain.Registry,
	cfg RetryConfig,
	logger *slog.Logger,
	onEscalate func(level string),
) *RetryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if onEscalate == nil {
		onEscalate = func(string) {}
	}
	return &RetryHandler{
		retriever:  retriever,
		evaluator:  evaluator,
		completion: completion,
		registry:   registry,
		cfg:        cfg.normalize(),
		logger:     logger,
		onEscalate: onEscalate,
	}
}

// Handle runs the escalation ladder for one sub-query whose initial
// retrieval did not pass evaluation. It returns the best result reached
// and the highest level applied.
func (h *RetryHandler) Handle(ctx context.Context, sub domain.SubQuery, opts RetrieveOptions, initial domain.RetrievalResult) (domain.RetrievalResult, domain.EscalationLevel) {
	best := initial
	level := domain.EscalationNone

	rc := domain.NewRetryContext()
	rc.MarkTried(sub.Domain)

	relaxed := h.evaluator.Relaxed(h.cfg.RelaxDelta, h.cfg.KeywordFloor, h.cfg.ScoreFloor)
	relaxedOpts := opts
	relaxedOpts.K = opts.K + h.cfg.ExtraK

	// The shared reference collection joins the search only from the
	// multi-query level onward.
	widenedOpts := relaxedOpts
	widenedOpts.IncludeCommon = true

	for next := domain.EscalationRelaxParams; int(next) <= h.cfg.MaxLevel; next++ {
		if ctx.Err() != nil {
			return best, level
		}
		level = next
		h.onEscalate(next.String())
		h.logger.Info("escalating retrieval",
			"domain", sub.Domain,
			"level", next.String(),
			"status", best.Evaluation.Status,
		)

		var candidate domain.RetrievalResult
		switch next {
		case domain.EscalationRelaxParams:
			candidate = h.relaxParams(ctx, sub, relaxedOpts, relaxed)
		case domain.EscalationMultiQuery:
			candidate = h.multiQuery(ctx, sub, widenedOpts, h.evaluator, best)
		case domain.EscalationCrossDomain:
			candidate = h.crossDomain(ctx, sub, rc, h.evaluator, best)
		case domain.EscalationPartialAnswer:
			h.logger.Warn("accepting partial retrieval",
				"domain", sub.Domain,
				"documents", len(best.Documents),
			)
			return best, next
		}

		if len(candidate.Documents) >= len(best.Documents) {
			best = candidate
		}
		if best.Evaluation.Passed() {
			return best, next
		}
	}
	return best, level
}

func (h *RetryHandler) relaxParams(ctx context.Context, sub domain.SubQuery, opts RetrieveOptions, eval *RetrievalEvaluator) domain.RetrievalResult {
	result := h.retriever.Retrieve(ctx, sub, opts)
	result.Evaluation = eval.Evaluate(sub.Text, result.Documents)
	return result
}

// multiQuery asks the model for paraphrased variants and unions their
// retrievals with the current best document set.
func (h *RetryHandler) multiQuery(ctx context.Context, sub domain.SubQuery, opts RetrieveOptions, eval *RetrievalEvaluator, best domain.RetrievalResult) domain.RetrievalResult {
	variants, err := h.generateVariants(ctx, sub.Text)
	if err != nil || len(variants) == 0 {
		h.logger.Warn("variant generation failed", "domain", sub.Domain, "error", err)
		return best
	}

	result := best
	result.UsedMultiQuery = true
	result.ExpandedQueries = append(result.ExpandedQueries, variants...)

	docs := append([]domain.ScoredDocument(nil), best.Documents...)
	for _, variant := range variants {
		r := h.retriever.Retrieve(ctx, domain.SubQuery{Domain: sub.Domain, Text: variant}, opts)
		docs = append(docs, r.Documents...)
	}
	result.Documents = trimDocuments(dedupeDocuments(docs), opts.K)
	result.Evaluation = eval.Evaluate(sub.Text, result.Documents)
	return result
}

// crossDomain widens the search into adjacent domains, capped so a vague
// query cannot fan out across the whole registry.
func (h *RetryHandler) crossDomain(ctx context.Context, sub domain.SubQuery, rc *domain.RetryContext, eval *RetrievalEvaluator, best domain.RetrievalResult) domain.RetrievalResult {
	adjacent := h.registry.AdjacentDomains(sub.Domain)
	searched := 0

	docs := append([]domain.ScoredDocument(nil), best.Documents...)
	for _, adj := range adjacent {
		if searched >= h.cfg.MaxAdjacentDomains {
			break
		}
		if !rc.MarkTried(adj) {
			continue
		}
		searched++
		r := h.retriever.Retrieve(ctx, domain.SubQuery{Domain: adj, Text: sub.Text}, RetrieveOptions{
			K:           h.cfg.CrossDomainK,
			Mode:        domain.SearchModeHybrid,
			SkipRewrite: true,
		})
		docs = append(docs, r.Documents...)
	}

	merged := dedupeDocuments(docs)
	if len(merged) <= len(best.Documents) {
		return best
	}
	result := best
	result.Documents = merged
	result.Evaluation = eval.Evaluate(sub.Text, result.Documents)
	return result
}

func (h *RetryHandler) generateVariants(ctx context.Context, text string) ([]string, error) {
	raw, err := h.completion.CompleteJSON(ctx, buildVariantsPrompt(text, h.cfg.QueryVariants))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Variants []string `json:"variants"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, err
	}
	out := make([]string, 0, h.cfg.QueryVariants)
	for _, v := range parsed.Variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) >= h.cfg.QueryVariants {
			break
		}
	}
	return out, nil
}

// dedupeDocuments keeps the first occurrence of each document by content
// identity, preserving input order.
func dedupeDocuments(docs []domain.ScoredDocument) []domain.ScoredDocument {
	seen := make(map[string]struct{}, len(docs))
	out := make([]domain.ScoredDocument, 0, len(docs))
	for _, doc := range docs {
		key := contentKey(doc)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, doc)
	}
	return out
}
