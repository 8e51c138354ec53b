package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
	"github.com/mkravets/consultrag/internal/observability/metrics"
)

const serviceName = "engine"

// EngineConfig tunes the top-level consultation pipeline.
type EngineConfig struct {
	MaxConcurrentTasks int
	MaxAnswerRetries   int
	AnswerRetryExtraK  int
	GenerationTimeout  time.Duration
	GenerationFallback bool
	FallbackMessage    string
	OutOfScopeMessage  string
	SupplementTriggers []string
	SupplementDomain   string
	SupplementK        int
}

func (c EngineConfig) normalize() EngineConfig {
	out := c
	if out.MaxConcurrentTasks <= 0 {
		out.MaxConcurrentTasks = 4
	}
	if out.MaxAnswerRetries < 0 {
		out.MaxAnswerRetries = 0
	}
	if out.AnswerRetryExtraK <= 0 {
		out.AnswerRetryExtraK = 3
	}
	if out.GenerationTimeout <= 0 {
		out.GenerationTimeout = 60 * time.Second
	}
	if out.FallbackMessage == "" {
		out.FallbackMessage = "I could not produce a complete answer right now. Please try rephrasing your question."
	}
	if out.OutOfScopeMessage == "" {
		out.OutOfScopeMessage = "That question is outside the scope of this consultation service. I can help with funding, finance, labor, legal and tax questions."
	}
	if out.SupplementK <= 0 {
		out.SupplementK = 3
	}
	return out
}

// Engine drives one consultation request through classification,
// decomposition, budgeted retrieval, merging, generation and answer
// evaluation. It implements ports.ConsultationService.
type Engine struct {
	classifier *DomainClassifier
	decomposer *QuestionDecomposer
	budgets    *BudgetCalculator
	retriever  *HybridRetriever
	evaluator  *RetrievalEvaluator
	retry      *RetryHandler
	merger     *Merger
	answerEval *AnswerEvaluator
	completion ports.CompletionService
	cache      ports.ResponseCache
	publisher  ports.AnswerPublisher
	registry   *domain.Registry
	metrics    *metrics.EngineMetrics
	cfg        EngineConfig
	logger     *slog.Logger
}

type EngineDeps struct {
	Classifier *DomainClassifier
	Decomposer *QuestionDecomposer
	Budgets    *BudgetCalculator
	Retriever  *HybridRetriever
	Evaluator  *RetrievalEvaluator
	Retry      *RetryHandler
	Merger     *Merger
	AnswerEval *AnswerEvaluator
	Completion ports.CompletionService
	Cache      ports.ResponseCache
	Publisher  ports.AnswerPublisher
	Registry   *domain.Registry
	Metrics    *metrics.EngineMetrics
	Logger     *slog.Logger
}

func NewEngine(deps EngineDeps, cfg EngineConfig) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewEngineMetrics("consultrag", serviceName)
	}
	return &Engine{
		classifier: deps.Classifier,
		decomposer: deps.Decomposer,
		budgets:    deps.Budgets,
		retriever:  deps.Retriever,
		evaluator:  deps.Evaluator,
		retry:      deps.Retry,
		merger:     deps.Merger,
		answerEval: deps.AnswerEval,
		completion: deps.Completion,
		cache:      deps.Cache,
		publisher:  deps.Publisher,
		registry:   deps.Registry,
		metrics:    m,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

// pipelineState carries the intermediate products of one request between
// the shared preparation phase and the generation variants.
type pipelineState struct {
	requestID      string
	started        time.Time
	classification domain.ClassificationResult
	chars          domain.QueryCharacteristics
	subQueries     []domain.SubQuery
	budgets        []domain.DomainBudget
	merged         []domain.ScoredDocument
	retryCount     int
	timings        domain.StageTimings
}

// Answer runs the full pipeline and returns a finished answer.
func (e *Engine) Answer(ctx context.Context, query domain.Query) (*domain.Answer, error) {
	state, short, err := e.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if short != nil {
		return short, nil
	}

	answer, err := e.generate(ctx, query, state)
	if err != nil {
		e.metrics.RecordRequest(serviceName, "error")
		return nil, err
	}
	e.finish(ctx, query, answer, state)
	return answer, nil
}

// AnswerStream runs the pipeline and streams generation tokens through
// emit, followed by one sources event and a terminal done event. The
// answer-regeneration loop is skipped; the single draft is evaluated once.
func (e *Engine) AnswerStream(ctx context.Context, query domain.Query, emit func(domain.StreamEvent) error) error {
	state, short, err := e.prepare(ctx, query)
	if err != nil {
		return err
	}
	if short != nil {
		if short.Text != "" {
			if err := emit(domain.StreamEvent{Type: domain.StreamEventToken, Token: short.Text}); err != nil {
				return err
			}
		}
		return emit(domain.StreamEvent{Type: domain.StreamEventDone, Answer: short})
	}

	genStart := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	var builder strings.Builder
	prompt := buildAnswerPrompt(query.Text, state.merged, query.Profile)
	streamErr := e.completion.CompleteStream(genCtx, prompt, func(token string) error {
		builder.WriteString(token)
		return emit(domain.StreamEvent{Type: domain.StreamEventToken, Token: token})
	})
	state.timings.Generate = time.Since(genStart)

	answer := e.newAnswer(state, query)
	if streamErr != nil {
		e.logger.Error("streamed generation failed", "request_id", state.requestID, "error", streamErr)
		if !e.cfg.GenerationFallback {
			e.metrics.RecordRequest(serviceName, "error")
			return domain.WrapError(domain.ErrGenerationTimeout, "engine.answer_stream", streamErr)
		}
		answer.Text = e.cfg.FallbackMessage
		answer.Status = domain.AnswerStatusFallback
	} else {
		answer.Text = builder.String()
		answer.Evaluation = e.answerEval.Evaluate(ctx, query.Text, answer.Text, state.merged)
	}

	if err := emit(domain.StreamEvent{
		Type:    domain.StreamEventSources,
		Sources: answer.Sources,
		Actions: answer.SuggestedActions,
	}); err != nil {
		return err
	}
	e.finish(ctx, query, answer, state)
	return emit(domain.StreamEvent{Type: domain.StreamEventDone, Answer: answer})
}

// prepare runs the stages shared by both variants: validation, cache
// lookup, classification, decomposition, budgeting, retrieval and merge.
// A non-nil short answer means the pipeline terminated early (cache hit
// or out-of-scope) and no generation is needed.
func (e *Engine) prepare(ctx context.Context, query domain.Query) (*pipelineState, *domain.Answer, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "engine.prepare", fmt.Errorf("empty question"))
	}
	query.Text = text

	state := &pipelineState{
		requestID: uuid.NewString(),
		started:   time.Now(),
	}

	if cached, ok := e.cache.Get(query.Text, query.DomainHint); ok {
		e.metrics.RecordCacheEvent(serviceName, "hit")
		e.metrics.RecordRequest(serviceName, "cache_hit")
		hit := *cached
		hit.RequestID = state.requestID
		return state, &hit, nil
	}
	e.metrics.RecordCacheEvent(serviceName, "miss")

	classifyStart := time.Now()
	state.classification = e.classifier.Classify(ctx, query.Text)
	state.timings.Classify = time.Since(classifyStart)
	e.metrics.ObserveStage(serviceName, "classify", state.timings.Classify)
	e.metrics.ObserveDomainsMatched(len(state.classification.Domains))

	e.logger.Info("query classified",
		"request_id", state.requestID,
		"domains", state.classification.Domains,
		"confidence", state.classification.Confidence,
		"method", state.classification.Method,
	)

	if !state.classification.Relevant {
		answer := e.newAnswer(state, query)
		answer.Text = e.cfg.OutOfScopeMessage
		answer.Status = domain.AnswerStatusOutOfScope
		answer.Timings.Total = time.Since(state.started)
		e.metrics.RecordRequest(serviceName, "out_of_scope")
		e.publish(ctx, answer)
		return state, answer, nil
	}

	domains := e.applyHint(state.classification.Domains, query.DomainHint)
	state.chars = AnalyzeQuery(query.Text, e.registry)
	state.subQueries = e.decomposer.Decompose(ctx, query, domains)
	state.budgets = e.budgets.Allocate(state.chars, domains)

	retrieveStart := time.Now()
	results := e.retrieveAll(ctx, query, state, retrievalBias{})
	state.timings.Retrieve = time.Since(retrieveStart)
	e.metrics.ObserveStage(serviceName, "retrieve", state.timings.Retrieve)

	state.merged = e.merger.Merge(ctx, query.Text, results, state.budgets)
	e.metrics.ObserveDocumentsMerged(len(state.merged))
	return state, nil, nil
}

// retrievalBias widens retrieval when the pipeline re-enters the retrieve
// stage after a rejected draft.
type retrievalBias struct {
	extraK        int
	includeCommon bool
}

// retrieveAll fans sub-queries out over a bounded worker group. A failed
// or weak sub-query escalates in isolation; siblings are never aborted.
func (e *Engine) retrieveAll(ctx context.Context, query domain.Query, state *pipelineState, bias retrievalBias) map[string]domain.RetrievalResult {
	budgetByDomain := make(map[string]domain.DomainBudget, len(state.budgets))
	for _, b := range state.budgets {
		budgetByDomain[b.Domain] = b
	}

	var mu sync.Mutex
	results := make(map[string]domain.RetrievalResult, len(state.subQueries)+1)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.MaxConcurrentTasks)

	for _, sub := range state.subQueries {
		sub := sub
		group.Go(func() error {
			k := state.chars.TopK
			if b, ok := budgetByDomain[sub.Domain]; ok {
				k = b.K
			}
			opts := RetrieveOptions{K: k + bias.extraK, Mode: state.chars.Mode, IncludeCommon: bias.includeCommon}
			result := e.retriever.Retrieve(groupCtx, sub, opts)
			result.Evaluation = e.evaluator.Evaluate(sub.Text, result.Documents)

			level := domain.EscalationNone
			if !result.Evaluation.Passed() {
				result, level = e.retry.Handle(groupCtx, sub, opts, result)
			}

			mu.Lock()
			results[sub.Domain] = result
			state.retryCount += int(level)
			mu.Unlock()
			return nil
		})
	}

	if supplement, ok := e.supplementQuery(query.Text, state.subQueries); ok {
		group.Go(func() error {
			result := e.retriever.Retrieve(groupCtx, supplement, RetrieveOptions{
				K:           e.cfg.SupplementK,
				Mode:        domain.SearchModeExactMatchPlusVector,
				SkipRewrite: true,
			})
			mu.Lock()
			results[domain.SupplementDomain] = result
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait()
	return results
}

// supplementQuery detects statutory phrasing and targets the configured
// legal collection with the original question, unless the legal domain is
// already part of the request.
func (e *Engine) supplementQuery(text string, subQueries []domain.SubQuery) (domain.SubQuery, bool) {
	if e.cfg.SupplementDomain == "" || len(e.cfg.SupplementTriggers) == 0 {
		return domain.SubQuery{}, false
	}
	for _, sub := range subQueries {
		if sub.Domain == e.cfg.SupplementDomain {
			return domain.SubQuery{}, false
		}
	}
	lowered := strings.ToLower(text)
	for _, trigger := range e.cfg.SupplementTriggers {
		trigger = strings.TrimSpace(strings.ToLower(trigger))
		if trigger != "" && strings.Contains(lowered, trigger) {
			return domain.SubQuery{Domain: e.cfg.SupplementDomain, Text: text}, true
		}
	}
	return domain.SubQuery{}, false
}

// generate produces the answer text, re-prompting up to the configured
// retry budget when the draft fails answer evaluation. Each rejected draft
// sends the pipeline back through retrieval and merge first, so the next
// draft is grounded in a context window revised per the suggested
// adjustment rather than the one that already failed.
func (e *Engine) generate(ctx context.Context, query domain.Query, state *pipelineState) (*domain.Answer, error) {
	genStart := time.Now()
	defer func() {
		state.timings.Generate = time.Since(genStart)
		e.metrics.ObserveStage(serviceName, "generate", state.timings.Generate)
	}()

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	prompt := buildAnswerPrompt(query.Text, state.merged, query.Profile)

	var best string
	var bestEval domain.AnswerEvaluation
	for attempt := 0; ; attempt++ {
		text, err := e.completion.Complete(genCtx, prompt)
		if err != nil {
			e.logger.Error("generation failed",
				"request_id", state.requestID,
				"attempt", attempt,
				"error", err,
			)
			if best != "" {
				break
			}
			if e.cfg.GenerationFallback {
				answer := e.newAnswer(state, query)
				answer.Text = e.cfg.FallbackMessage
				answer.Status = domain.AnswerStatusFallback
				return answer, nil
			}
			return nil, domain.WrapError(domain.ErrGenerationTimeout, "engine.generate", err)
		}

		eval := e.answerEval.Evaluate(ctx, query.Text, text, state.merged)
		if eval.Score >= bestEval.Score || best == "" {
			best = text
			bestEval = eval
		}
		if eval.Passed || attempt >= e.cfg.MaxAnswerRetries {
			break
		}
		e.metrics.RecordAnswerRetry()
		state.retryCount++
		e.logger.Info("regenerating answer",
			"request_id", state.requestID,
			"score", eval.Score,
			"adjustment", eval.Adjustment,
		)
		e.reviseRetrieval(ctx, query, state, eval.Adjustment)
		prompt = buildAnswerPrompt(query.Text, state.merged, query.Profile) +
			"\n\nA previous draft was rejected: " + eval.Feedback + ". Address this in your answer."
	}

	answer := e.newAnswer(state, query)
	answer.Text = best
	answer.Evaluation = bestEval
	return answer, nil
}

// reviseRetrieval re-runs retrieval and merge for the next draft. An
// expand_retrieval adjustment widens every sub-query and pulls in the
// shared reference collection; other adjustments refresh the merge with
// the standard options.
func (e *Engine) reviseRetrieval(ctx context.Context, query domain.Query, state *pipelineState, adjustment string) {
	bias := retrievalBias{}
	if adjustment == AdjustExpandRetrieval {
		bias.extraK = e.cfg.AnswerRetryExtraK
		bias.includeCommon = true
	}

	retrieveStart := time.Now()
	results := e.retrieveAll(ctx, query, state, bias)
	elapsed := time.Since(retrieveStart)
	state.timings.Retrieve += elapsed
	e.metrics.ObserveStage(serviceName, "retrieve", elapsed)

	state.merged = e.merger.Merge(ctx, query.Text, results, state.budgets)
	e.metrics.ObserveDocumentsMerged(len(state.merged))
}

// finish stamps timings, caches and publishes a completed answer.
func (e *Engine) finish(ctx context.Context, query domain.Query, answer *domain.Answer, state *pipelineState) {
	answer.RetryCount = state.retryCount
	state.timings.Total = time.Since(state.started)
	answer.Timings = state.timings

	e.cache.Set(query.Text, query.DomainHint, answer)
	outcome := "success"
	if answer.Status != domain.AnswerStatusOK {
		outcome = string(answer.Status)
	}
	e.metrics.RecordRequest(serviceName, outcome)
	e.publish(ctx, answer)

	e.logger.Info("consultation answered",
		"request_id", answer.RequestID,
		"status", answer.Status,
		"domains", answer.Domains,
		"sources", len(answer.Sources),
		"retries", answer.RetryCount,
		"total_ms", state.timings.Total.Milliseconds(),
	)
}

func (e *Engine) newAnswer(state *pipelineState, query domain.Query) *domain.Answer {
	answer := &domain.Answer{
		RequestID: state.requestID,
		Status:    domain.AnswerStatusOK,
		Domains:   state.classification.Domains,
		Timings:   state.timings,
	}
	if len(state.merged) > 0 {
		answer.Sources = domain.RetrievalResult{Documents: state.merged}.Sources()
	}
	answer.SuggestedActions = e.suggestedActions(state.classification.Domains)
	return answer
}

func (e *Engine) suggestedActions(domains []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range domains {
		cfg, ok := e.registry.Get(name)
		if !ok {
			continue
		}
		for _, action := range cfg.SuggestedActions {
			if _, dup := seen[action]; dup {
				continue
			}
			seen[action] = struct{}{}
			out = append(out, action)
		}
	}
	return out
}

// applyHint promotes a valid caller-supplied domain hint to the front of
// the classified domain list.
func (e *Engine) applyHint(domains []string, hint string) []string {
	hint = strings.TrimSpace(strings.ToLower(hint))
	if hint == "" {
		return domains
	}
	if _, ok := e.registry.Get(hint); !ok {
		return domains
	}
	out := []string{hint}
	for _, d := range domains {
		if d != hint {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) publish(ctx context.Context, answer *domain.Answer) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishAnswerCompleted(ctx, answer); err != nil {
		e.logger.Warn("answer event publish failed", "request_id", answer.RequestID, "error", err)
	}
}
