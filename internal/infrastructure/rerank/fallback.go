package rerank

import (
	"context"
	"log/slog"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

// WithFallback wraps a reranking strategy so that any failure degrades to
// deterministic lexical-overlap ranking instead of propagating. Reranking is
// a quality enhancement, never a hard dependency.
type WithFallback struct {
	primary    ports.Reranker
	logger     *slog.Logger
	onFallback func()
}

func NewWithFallback(primary ports.Reranker, logger *slog.Logger, onFallback func()) *WithFallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &WithFallback{primary: primary, logger: logger, onFallback: onFallback}
}

func (f *WithFallback) Rerank(ctx context.Context, query string, docs []domain.ScoredDocument, topK int) ([]domain.ScoredDocument, error) {
	if f.primary != nil {
		out, err := f.primary.Rerank(ctx, query, docs, topK)
		if err == nil {
			return out, nil
		}
		f.logger.Warn("reranker degraded to lexical overlap", "error", err)
		if f.onFallback != nil {
			f.onFallback()
		}
	}
	return RankByOverlap(query, docs, topK), nil
}
