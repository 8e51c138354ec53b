package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string
	UpstreamTimeout  time.Duration
	CompletionRPS    float64
	CompletionBurst  int

	QdrantURL string

	NATSEnabled bool
	NATSURL     string
	NATSSubject string

	DomainsFile      string
	CorpusDir        string
	CommonCollection string

	ClassifierVectorEnabled bool
	ClassifierLLMEnabled    bool
	SimilarityThreshold     float64
	SimilarityGap           float64

	BudgetMode   string
	PerDomainCap int
	GlobalMaxK   int
	PrimaryRatio float64

	RRFK              int
	FetchKMultiplier  int
	FetchKMin         int
	EnableRewrite     bool
	RerankEnabled     bool
	RerankStrategy    string
	RerankURL         string
	RerankModel       string
	RerankWorkers     int
	CrossDomainRerank bool

	EvalMinDocuments     int
	EvalKeywordThreshold float64
	EvalScoreThreshold   float64

	RetryMaxLevel       int
	RetryExtraK         int
	RetryRelaxDelta     float64
	RetryKeywordFloor   float64
	RetryScoreFloor     float64
	CrossDomainK        int
	MaxAdjacentDomains  int
	RetryQueryVariants  int
	MaxConcurrentTasks  int
	SupplementTriggers  string
	SupplementDomain    string
	SupplementK         int
	MaxAnswerRetries    int
	AnswerPassThreshold float64
	AnswerLLMEval       bool

	GenerationTimeout  time.Duration
	GenerationFallback bool
	FallbackMessage    string
	OutOfScopeMessage  string

	CacheCapacity    int
	CacheTTL         time.Duration
	DecomposeTTL     time.Duration
	MetricsNamespace string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		UpstreamTimeout:  mustEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		CompletionRPS:    mustEnvFloat("COMPLETION_RPS", 4),
		CompletionBurst:  mustEnvInt("COMPLETION_BURST", 4),

		QdrantURL: mustEnv("QDRANT_URL", "http://localhost:6333"),

		NATSEnabled: mustEnvBool("NATS_ENABLED", false),
		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "consult.answers"),

		DomainsFile:      mustEnv("DOMAINS_FILE", "./config/domains.yaml"),
		CorpusDir:        mustEnv("CORPUS_DIR", "./data/corpus"),
		CommonCollection: mustEnv("COMMON_COLLECTION", "common_reference"),

		ClassifierVectorEnabled: mustEnvBool("CLASSIFIER_VECTOR_ENABLED", true),
		ClassifierLLMEnabled:    mustEnvBool("CLASSIFIER_LLM_ENABLED", false),
		SimilarityThreshold:     mustEnvFloat("SIMILARITY_THRESHOLD", 0.6),
		SimilarityGap:           mustEnvFloat("SIMILARITY_GAP", 0.15),

		BudgetMode:   mustEnv("BUDGET_MODE", "dynamic"),
		PerDomainCap: mustEnvInt("BUDGET_PER_DOMAIN_CAP", 5),
		GlobalMaxK:   mustEnvInt("BUDGET_GLOBAL_MAX", 12),
		PrimaryRatio: mustEnvFloat("BUDGET_PRIMARY_RATIO", 0.6),

		RRFK:              mustEnvInt("RRF_K", 60),
		FetchKMultiplier:  mustEnvInt("FETCH_K_MULTIPLIER", 3),
		FetchKMin:         mustEnvInt("FETCH_K_MIN", 15),
		EnableRewrite:     mustEnvBool("ENABLE_QUERY_REWRITE", false),
		RerankEnabled:     mustEnvBool("RERANK_ENABLED", true),
		RerankStrategy:    mustEnv("RERANK_STRATEGY", "lexical"),
		RerankURL:         mustEnv("RERANK_URL", ""),
		RerankModel:       mustEnv("RERANK_MODEL", ""),
		RerankWorkers:     mustEnvInt("RERANK_WORKERS", 2),
		CrossDomainRerank: mustEnvBool("CROSS_DOMAIN_RERANK", false),

		EvalMinDocuments:     mustEnvInt("EVAL_MIN_DOCUMENTS", 2),
		EvalKeywordThreshold: mustEnvFloat("EVAL_KEYWORD_THRESHOLD", 0.3),
		EvalScoreThreshold:   mustEnvFloat("EVAL_SCORE_THRESHOLD", 0.5),

		RetryMaxLevel:       mustEnvInt("RETRY_MAX_LEVEL", 4),
		RetryExtraK:         mustEnvInt("RETRY_EXTRA_K", 3),
		RetryRelaxDelta:     mustEnvFloat("RETRY_RELAX_DELTA", 0.15),
		RetryKeywordFloor:   mustEnvFloat("RETRY_KEYWORD_FLOOR", 0.15),
		RetryScoreFloor:     mustEnvFloat("RETRY_SCORE_FLOOR", 0.35),
		CrossDomainK:        mustEnvInt("CROSS_DOMAIN_K", 3),
		MaxAdjacentDomains:  mustEnvInt("MAX_ADJACENT_DOMAINS", 2),
		RetryQueryVariants:  mustEnvInt("RETRY_QUERY_VARIANTS", 2),
		MaxConcurrentTasks:  mustEnvInt("MAX_CONCURRENT_TASKS", 4),
		SupplementTriggers:  mustEnv("SUPPLEMENT_TRIGGERS", "article,section,enforcement decree,statute,regulation"),
		SupplementDomain:    mustEnv("SUPPLEMENT_DOMAIN", "legal"),
		SupplementK:         mustEnvInt("SUPPLEMENT_K", 3),
		MaxAnswerRetries:    mustEnvInt("MAX_ANSWER_RETRIES", 2),
		AnswerPassThreshold: mustEnvFloat("ANSWER_PASS_THRESHOLD", 0.6),
		AnswerLLMEval:       mustEnvBool("ANSWER_LLM_EVAL", false),

		GenerationTimeout:  mustEnvDuration("GENERATION_TIMEOUT", 60*time.Second),
		GenerationFallback: mustEnvBool("GENERATION_FALLBACK", true),
		FallbackMessage: mustEnv("FALLBACK_MESSAGE",
			"The answer service is busy right now. Please try again in a moment."),
		OutOfScopeMessage: mustEnv("OUT_OF_SCOPE_MESSAGE",
			"This question is outside the consultation topics I cover. I can help with funding, finance, labor, legal and tax questions."),

		CacheCapacity:    mustEnvInt("CACHE_CAPACITY", 256),
		CacheTTL:         mustEnvDuration("CACHE_TTL", 10*time.Minute),
		DecomposeTTL:     mustEnvDuration("DECOMPOSE_CACHE_TTL", 10*time.Minute),
		MetricsNamespace: mustEnv("METRICS_NAMESPACE", "consultrag"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
