package ports

import (
	"context"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// EmbeddingService builds vectors for query and document text.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionService is the external model used for query rewriting,
// decomposition, domain arbitration and answer synthesis.
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string) (string, error)
	CompleteStream(ctx context.Context, prompt string, onToken func(token string) error) error
}

// VectorSearcher performs semantic search over a domain-scoped collection.
type VectorSearcher interface {
	Search(ctx context.Context, collection string, queryVector []float32, limit int) ([]domain.ScoredDocument, error)
	SearchMMR(ctx context.Context, collection string, queryVector []float32, limit, fetchK int, lambda float64) ([]domain.ScoredDocument, error)
}

// LexicalSearcher performs BM25 search over a domain-scoped collection.
type LexicalSearcher interface {
	Search(ctx context.Context, collection, query string, limit int) ([]domain.ScoredDocument, error)
}

// Reranker reorders candidate documents by relevance to the query. A reranker
// must degrade rather than fail: implementations fall back to deterministic
// lexical-overlap ranking when the underlying model is unavailable.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []domain.ScoredDocument, topK int) ([]domain.ScoredDocument, error)
}

// ResponseCache stores finished answers keyed by normalized query and
// optional domain hint.
type ResponseCache interface {
	Get(query, domainHint string) (*domain.Answer, bool)
	Set(query, domainHint string, answer *domain.Answer)
	Reset()
}

// AnswerPublisher notifies downstream consumers that an answer completed.
// Publishing is best-effort; failures never fail the request.
type AnswerPublisher interface {
	PublishAnswerCompleted(ctx context.Context, answer *domain.Answer) error
}
