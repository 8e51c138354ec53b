package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mkravets/consultrag/internal/config"
	"github.com/mkravets/consultrag/internal/core/ports"
	"github.com/mkravets/consultrag/internal/core/usecase"
	"github.com/mkravets/consultrag/internal/infrastructure/cache"
	"github.com/mkravets/consultrag/internal/infrastructure/corpus"
	"github.com/mkravets/consultrag/internal/infrastructure/events/nats"
	"github.com/mkravets/consultrag/internal/infrastructure/lexical"
	"github.com/mkravets/consultrag/internal/infrastructure/llm/ollama"
	"github.com/mkravets/consultrag/internal/infrastructure/rerank"
	"github.com/mkravets/consultrag/internal/infrastructure/resilience"
	"github.com/mkravets/consultrag/internal/infrastructure/vector/qdrant"
	"github.com/mkravets/consultrag/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.EngineMetrics
	Engine  ports.ConsultationService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	registry, err := config.LoadDomains(cfg.DomainsFile)
	if err != nil {
		return nil, fmt.Errorf("load domain registry: %w", err)
	}

	engineMetrics := metrics.NewEngineMetrics(cfg.MetricsNamespace, "engine")
	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            cfg.UpstreamTimeout,
		CompletionRPS:      cfg.CompletionRPS,
		CompletionBurst:    cfg.CompletionBurst,
		ResilienceExecutor: executor,
	})

	vectorDB := qdrant.New(cfg.QdrantURL, qdrant.Options{
		Timeout:            cfg.UpstreamTimeout,
		ResilienceExecutor: executor,
	})

	lexicalStore := lexical.NewStore()
	if err := corpus.NewLoader(cfg.CorpusDir).LoadInto(lexicalStore); err != nil {
		return nil, fmt.Errorf("load lexical corpus: %w", err)
	}
	logger.Info("lexical corpus loaded", "collections", len(lexicalStore.Collections()))

	reranker := buildReranker(cfg, ollamaClient, executor, logger, engineMetrics)

	var publisher ports.AnswerPublisher
	var closePublisher func()
	if cfg.NATSEnabled {
		natsPublisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject, logger, nats.Options{})
		if err != nil {
			return nil, fmt.Errorf("connect answer publisher: %w", err)
		}
		publisher = natsPublisher
		closePublisher = natsPublisher.Close
	}

	classifier := usecase.NewDomainClassifier(registry, ollamaClient, ollamaClient, usecase.ClassifierConfig{
		VectorEnabled:       cfg.ClassifierVectorEnabled,
		LLMEnabled:          cfg.ClassifierLLMEnabled,
		SimilarityThreshold: cfg.SimilarityThreshold,
		SimilarityGap:       cfg.SimilarityGap,
	}, logger)

	decomposer := usecase.NewQuestionDecomposer(ollamaClient, cfg.DecomposeTTL, logger)

	budgets := usecase.NewBudgetCalculator(usecase.BudgetConfig{
		Mode:         usecase.BudgetMode(cfg.BudgetMode),
		PerDomainCap: cfg.PerDomainCap,
		GlobalMax:    cfg.GlobalMaxK,
		PrimaryRatio: cfg.PrimaryRatio,
	})

	retriever := usecase.NewHybridRetriever(lexicalStore, vectorDB, ollamaClient, ollamaClient, reranker, registry, usecase.RetrieverConfig{
		RRFK:             cfg.RRFK,
		FetchKMultiplier: cfg.FetchKMultiplier,
		FetchKMin:        cfg.FetchKMin,
		EnableRewrite:    cfg.EnableRewrite,
		RerankEnabled:    cfg.RerankEnabled,
		CommonCollection: cfg.CommonCollection,
	}, logger)

	evaluator := usecase.NewRetrievalEvaluator(usecase.EvaluatorConfig{
		MinDocuments:     cfg.EvalMinDocuments,
		KeywordThreshold: cfg.EvalKeywordThreshold,
		ScoreThreshold:   cfg.EvalScoreThreshold,
	})

	retryHandler := usecase.NewRetryHandler(retriever, evaluator, ollamaClient, registry, usecase.RetryConfig{
		MaxLevel:           cfg.RetryMaxLevel,
		ExtraK:             cfg.RetryExtraK,
		RelaxDelta:         cfg.RetryRelaxDelta,
		KeywordFloor:       cfg.RetryKeywordFloor,
		ScoreFloor:         cfg.RetryScoreFloor,
		CrossDomainK:       cfg.CrossDomainK,
		MaxAdjacentDomains: cfg.MaxAdjacentDomains,
		QueryVariants:      cfg.RetryQueryVariants,
	}, logger, func(level string) {
		engineMetrics.RecordRetryLevel("engine", level)
	})

	merger := usecase.NewMerger(reranker, cfg.CrossDomainRerank, logger, engineMetrics.RecordRerankFallback)

	answerEval := usecase.NewAnswerEvaluator(ollamaClient, usecase.AnswerEvaluatorConfig{
		PassThreshold: cfg.AnswerPassThreshold,
		UseLLM:        cfg.AnswerLLMEval,
	}, logger)

	responseCache := cache.NewResponseCache(cfg.CacheCapacity, cfg.CacheTTL)

	engine := usecase.NewEngine(usecase.EngineDeps{
		Classifier: classifier,
		Decomposer: decomposer,
		Budgets:    budgets,
		Retriever:  retriever,
		Evaluator:  evaluator,
		Retry:      retryHandler,
		Merger:     merger,
		AnswerEval: answerEval,
		Completion: ollamaClient,
		Cache:      responseCache,
		Publisher:  publisher,
		Registry:   registry,
		Metrics:    engineMetrics,
		Logger:     logger,
	}, usecase.EngineConfig{
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		MaxAnswerRetries:   cfg.MaxAnswerRetries,
		AnswerRetryExtraK:  cfg.RetryExtraK,
		GenerationTimeout:  cfg.GenerationTimeout,
		GenerationFallback: cfg.GenerationFallback,
		FallbackMessage:    cfg.FallbackMessage,
		OutOfScopeMessage:  cfg.OutOfScopeMessage,
		SupplementTriggers: splitTriggers(cfg.SupplementTriggers),
		SupplementDomain:   cfg.SupplementDomain,
		SupplementK:        cfg.SupplementK,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: engineMetrics,
		Engine:  engine,
		closeFn: func() {
			if closePublisher != nil {
				closePublisher()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// buildReranker selects the configured strategy and wraps it so a model
// outage degrades to deterministic lexical-overlap ranking.
func buildReranker(
	cfg config.Config,
	ollamaClient *ollama.Client,
	executor *resilience.Executor,
	logger *slog.Logger,
	engineMetrics *metrics.EngineMetrics,
) ports.Reranker {
	var primary ports.Reranker
	switch strings.ToLower(cfg.RerankStrategy) {
	case "remote":
		primary = rerank.NewRemote(cfg.RerankURL, rerank.RemoteOptions{
			Model:              cfg.RerankModel,
			Timeout:            cfg.UpstreamTimeout,
			ResilienceExecutor: executor,
		})
	case "llm":
		primary = rerank.NewLLM(ollamaClient, cfg.RerankWorkers)
	default:
		return rerank.NewOverlap()
	}
	return rerank.NewWithFallback(primary, logger, engineMetrics.RecordRerankFallback)
}

func splitTriggers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
