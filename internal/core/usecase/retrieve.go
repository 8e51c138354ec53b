package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

// RetrieverConfig tunes hybrid retrieval.
type RetrieverConfig struct {
	RRFK             int
	FetchKMultiplier int
	FetchKMin        int
	EnableRewrite    bool
	RerankEnabled    bool
	CommonCollection string
	MMRLambda        float64
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.RRFK <= 0 {
		out.RRFK = 60
	}
	if out.FetchKMultiplier <= 0 {
		out.FetchKMultiplier = 3
	}
	if out.FetchKMin <= 0 {
		out.FetchKMin = 15
	}
	if out.MMRLambda <= 0 || out.MMRLambda > 1 {
		out.MMRLambda = 0.5
	}
	return out
}

// RetrieveOptions carries the per-call knobs the retry handler adjusts.
type RetrieveOptions struct {
	K             int
	Mode          domain.SearchMode
	IncludeCommon bool
	SkipRewrite   bool
}

// HybridRetriever runs lexical and vector search per domain-scoped
// sub-query and fuses the rankings.
type HybridRetriever struct {
	lexical    ports.LexicalSearcher
	vector     ports.VectorSearcher
	embedder   ports.EmbeddingService
	completion ports.CompletionService
	reranker   ports.Reranker
	registry   *domain.Registry
	cfg        RetrieverConfig
	logger     *slog.Logger
}

func NewHybridRetriever(
	lexicalSearcher ports.LexicalSearcher,
	vectorSearcher ports.VectorSearcher,
	embedder ports.EmbeddingService,
	completion ports.CompletionService,
	reranker ports.Reranker,
	registry *domain.Registry,
	cfg RetrieverConfig,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		lexical:    lexicalSearcher,
		vector:     vectorSearcher,
		embedder:   embedder,
		completion: completion,
		reranker:   reranker,
		registry:   registry,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

// Retrieve runs one sub-query against its domain collection. Upstream
// failures degrade to a partial or empty document set; the caller decides
// via evaluation whether to retry.
func (r *HybridRetriever) Retrieve(ctx context.Context, sub domain.SubQuery, opts RetrieveOptions) domain.RetrievalResult {
	started := time.Now()

	k := opts.K
	if k <= 0 {
		k = 5
	}
	fetchK := k * r.cfg.FetchKMultiplier
	if fetchK < r.cfg.FetchKMin {
		fetchK = r.cfg.FetchKMin
	}

	searchQuery := sub.Text
	var expanded []string
	if r.cfg.EnableRewrite && !opts.SkipRewrite {
		if rewritten, err := r.completion.Complete(ctx, buildRewritePrompt(sub.Text)); err != nil {
			r.logger.Warn("query rewrite failed, using original", "domain", sub.Domain, "error", err)
		} else if rewritten = strings.TrimSpace(rewritten); rewritten != "" {
			searchQuery = rewritten
			expanded = append(expanded, rewritten)
		}
	}

	collection := r.registry.Collection(sub.Domain)
	fused := r.searchAndFuse(ctx, collection, sub.Domain, searchQuery, opts.Mode, fetchK)

	docs := fused
	if r.cfg.RerankEnabled && r.reranker != nil && len(fused) > k {
		reranked, err := r.reranker.Rerank(ctx, searchQuery, fused, k)
		if err != nil {
			r.logger.Warn("rerank failed, slicing fused ranking", "domain", sub.Domain, "error", err)
			docs = trimDocuments(fused, k)
		} else {
			docs = reranked
		}
	} else {
		docs = trimDocuments(fused, k)
	}

	if opts.IncludeCommon && r.cfg.CommonCollection != "" && collection != r.cfg.CommonCollection {
		commonK := k / 2
		if commonK < 1 {
			commonK = 1
		}
		common := r.searchAndFuse(ctx, r.cfg.CommonCollection, sub.Domain, searchQuery, opts.Mode, commonK*r.cfg.FetchKMultiplier)
		docs = append(docs, trimDocuments(common, commonK)...)
	}

	for i := range docs {
		docs[i].Domain = sub.Domain
	}

	return domain.RetrievalResult{
		Domain:          sub.Domain,
		Query:           searchQuery,
		ExpandedQueries: expanded,
		Documents:       docs,
		Elapsed:         time.Since(started),
	}
}

// searchAndFuse runs both retrieval channels and fuses them. A failed
// channel contributes an empty ranking instead of failing the sub-query.
func (r *HybridRetriever) searchAndFuse(ctx context.Context, collection, domainName, query string, mode domain.SearchMode, fetchK int) []domain.ScoredDocument {
	lexicalDocs, err := r.lexical.Search(ctx, collection, query, fetchK)
	if err != nil {
		r.logger.Warn("lexical search failed", "collection", collection, "domain", domainName, "error", err)
		lexicalDocs = nil
	}

	vectorDocs := r.vectorSearch(ctx, collection, domainName, query, mode, fetchK)

	return fuseRRF(lexicalDocs, vectorDocs, r.cfg.RRFK)
}

func (r *HybridRetriever) vectorSearch(ctx context.Context, collection, domainName, query string, mode domain.SearchMode, fetchK int) []domain.ScoredDocument {
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, lexical ranking only", "domain", domainName, "error", err)
		return nil
	}

	var docs []domain.ScoredDocument
	if mode == domain.SearchModeDiversity {
		docs, err = r.vector.SearchMMR(ctx, collection, queryVector, fetchK, fetchK*2, r.cfg.MMRLambda)
	} else {
		docs, err = r.vector.Search(ctx, collection, queryVector, fetchK)
	}
	if err != nil {
		r.logger.Warn("vector search failed", "collection", collection, "domain", domainName, "error", err)
		return nil
	}
	return docs
}
