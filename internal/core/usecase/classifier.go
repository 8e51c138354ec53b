package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

// ClassifierConfig tunes the layered domain decision.
type ClassifierConfig struct {
	VectorEnabled       bool
	LLMEnabled          bool
	SimilarityThreshold float64
	SimilarityGap       float64
}

func (c ClassifierConfig) normalize() ClassifierConfig {
	out := c
	if out.SimilarityThreshold <= 0 || out.SimilarityThreshold > 1 {
		out.SimilarityThreshold = 0.6
	}
	if out.SimilarityGap <= 0 || out.SimilarityGap > 1 {
		out.SimilarityGap = 0.15
	}
	return out
}

// DomainClassifier decides which topic domains a query belongs to via a
// keyword layer, an always-on vector layer, and optional LLM arbitration
// reachable only when the vector layer is disabled.
type DomainClassifier struct {
	registry   *domain.Registry
	embedder   ports.EmbeddingService
	completion ports.CompletionService
	cfg        ClassifierConfig
	logger     *slog.Logger

	// Mean embedding per domain over its representative queries, computed
	// once on first use. The guard allows a later retry when the first
	// computation fails.
	meanMu      sync.Mutex
	meanVectors map[string][]float32
}

func NewDomainClassifier(
	registry *domain.Registry,
	embedder ports.EmbeddingService,
	completion ports.CompletionService,
	cfg ClassifierConfig,
	logger *slog.Logger,
) *DomainClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainClassifier{
		registry:   registry,
		embedder:   embedder,
		completion: completion,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

type vectorDecision struct {
	domains    []string
	confidence float64
	relevant   bool
}

// Classify runs the layered decision. It never returns an error: upstream
// failures degrade to the next-best layer.
func (c *DomainClassifier) Classify(ctx context.Context, text string) domain.ClassificationResult {
	matched := c.registry.MatchKeywords(text)
	keywordDomains := rankKeywordDomains(matched, c.registry)
	keywordConfidence := keywordLayerConfidence(matched)

	if c.cfg.VectorEnabled {
		// The vector layer runs regardless of the keyword outcome.
		vec, err := c.vectorLayer(ctx, text)
		if err != nil {
			c.logger.Warn("vector layer unavailable, falling back to keywords", "error", err)
			return c.keywordOnlyResult(keywordDomains, keywordConfidence, matched)
		}
		return c.combine(keywordDomains, matched, vec)
	}

	if c.cfg.LLMEnabled {
		return c.arbitrate(ctx, text, keywordDomains, keywordConfidence, matched)
	}

	return c.keywordOnlyResult(keywordDomains, keywordConfidence, matched)
}

func (c *DomainClassifier) combine(
	keywordDomains []string,
	matched map[string][]string,
	vec vectorDecision,
) domain.ClassificationResult {
	switch {
	case vec.relevant && len(keywordDomains) > 0:
		return domain.ClassificationResult{
			Domains:         vec.domains,
			Confidence:      math.Min(1.0, vec.confidence+0.1),
			Relevant:        true,
			Method:          domain.MethodKeywordVector,
			MatchedKeywords: matched,
		}
	case vec.relevant:
		return domain.ClassificationResult{
			Domains:    vec.domains,
			Confidence: vec.confidence,
			Relevant:   true,
			Method:     domain.MethodVector,
		}
	default:
		// The vector layer is the authority: keyword hits without vector
		// support are rejected.
		return domain.ClassificationResult{
			Confidence:      0,
			Relevant:        false,
			Method:          domain.MethodVector,
			MatchedKeywords: matched,
		}
	}
}

func (c *DomainClassifier) keywordOnlyResult(
	keywordDomains []string,
	confidence float64,
	matched map[string][]string,
) domain.ClassificationResult {
	if len(keywordDomains) == 0 {
		return domain.ClassificationResult{Relevant: false, Confidence: 0, Method: domain.MethodNone}
	}
	return domain.ClassificationResult{
		Domains:         keywordDomains,
		Confidence:      confidence,
		Relevant:        true,
		Method:          domain.MethodKeyword,
		MatchedKeywords: matched,
	}
}

func (c *DomainClassifier) vectorLayer(ctx context.Context, text string) (vectorDecision, error) {
	means, err := c.meanEmbeddings(ctx)
	if err != nil {
		return vectorDecision{}, err
	}

	queryVec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return vectorDecision{}, err
	}

	type domainSim struct {
		name string
		sim  float64
	}
	sims := make([]domainSim, 0, len(means))
	for _, d := range c.registry.Domains() {
		mean, ok := means[d.Name]
		if !ok {
			continue
		}
		sims = append(sims, domainSim{name: d.Name, sim: cosine32(queryVec, mean)})
	}
	sort.SliceStable(sims, func(i, j int) bool { return sims[i].sim > sims[j].sim })

	if len(sims) == 0 || sims[0].sim < c.cfg.SimilarityThreshold {
		return vectorDecision{relevant: false}, nil
	}

	best := sims[0].sim
	domains := []string{sims[0].name}
	for _, s := range sims[1:] {
		if best-s.sim <= c.cfg.SimilarityGap {
			domains = append(domains, s.name)
		}
	}
	return vectorDecision{domains: domains, confidence: best, relevant: true}, nil
}

// meanEmbeddings lazily computes the per-domain mean representative-query
// embedding. Safe under concurrent first access; a failed computation leaves
// the cache empty so the next request retries.
func (c *DomainClassifier) meanEmbeddings(ctx context.Context) (map[string][]float32, error) {
	c.meanMu.Lock()
	defer c.meanMu.Unlock()

	if c.meanVectors != nil {
		return c.meanVectors, nil
	}

	means := make(map[string][]float32)
	for _, d := range c.registry.Domains() {
		if len(d.RepresentativeQueries) == 0 {
			continue
		}
		vectors, err := c.embedder.EmbedBatch(ctx, d.RepresentativeQueries)
		if err != nil {
			return nil, err
		}
		if mean := meanVector(vectors); mean != nil {
			means[d.Name] = mean
		}
	}
	c.meanVectors = means
	return means, nil
}

type arbitrationResponse struct {
	Relevant bool     `json:"relevant"`
	Domains  []string `json:"domains"`
}

func (c *DomainClassifier) arbitrate(
	ctx context.Context,
	text string,
	keywordDomains []string,
	keywordConfidence float64,
	matched map[string][]string,
) domain.ClassificationResult {
	raw, err := c.completion.CompleteJSON(ctx, buildArbitrationPrompt(text, c.registry.Domains()))
	if err != nil {
		c.logger.Warn("llm arbitration unavailable, falling back to keywords", "error", err)
		return c.keywordOnlyResult(keywordDomains, keywordConfidence, matched)
	}

	var parsed arbitrationResponse
	if jsonErr := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); jsonErr != nil {
		c.logger.Warn("llm arbitration returned unparseable output", "error", jsonErr)
		return c.keywordOnlyResult(keywordDomains, keywordConfidence, matched)
	}

	if parsed.Relevant {
		domains := c.knownDomains(parsed.Domains)
		if len(domains) == 0 {
			domains = keywordDomains
		}
		if len(domains) == 0 {
			return domain.ClassificationResult{Relevant: false, Confidence: 0, Method: domain.MethodLLM}
		}
		return domain.ClassificationResult{
			Domains:         domains,
			Confidence:      0.7,
			Relevant:        true,
			Method:          domain.MethodLLM,
			MatchedKeywords: matched,
		}
	}

	// The model rejected. A keyword hit overrides the rejection through an
	// explicit, auditable path.
	if len(keywordDomains) > 0 {
		return domain.ClassificationResult{
			Domains:         keywordDomains,
			Confidence:      keywordConfidence,
			Relevant:        true,
			Method:          domain.MethodLLMKeywordOverride,
			MatchedKeywords: matched,
		}
	}
	if heuristic := c.heuristicScan(text); len(heuristic) > 0 {
		return domain.ClassificationResult{
			Domains:    heuristic,
			Confidence: 0.5,
			Relevant:   true,
			Method:     domain.MethodLLMHeuristicOverride,
		}
	}
	return domain.ClassificationResult{Relevant: false, Confidence: 0, Method: domain.MethodLLM}
}

// heuristicScan is the light fallback scan used by the override path: it
// looks for domain names and labels rather than the full keyword sets.
func (c *DomainClassifier) heuristicScan(text string) []string {
	lowered := strings.ToLower(text)
	var out []string
	for _, d := range c.registry.Domains() {
		if strings.Contains(lowered, strings.ToLower(d.Name)) ||
			(d.Label != "" && strings.Contains(lowered, strings.ToLower(d.Label))) {
			out = append(out, d.Name)
		}
	}
	return out
}

func (c *DomainClassifier) knownDomains(names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := c.registry.Get(strings.TrimSpace(strings.ToLower(name))); ok {
			out = append(out, strings.TrimSpace(strings.ToLower(name)))
		}
	}
	return out
}

func rankKeywordDomains(matched map[string][]string, registry *domain.Registry) []string {
	type hit struct {
		name  string
		count int
		order int
	}
	var hits []hit
	for i, d := range registry.Domains() {
		if kws, ok := matched[d.Name]; ok && len(kws) > 0 {
			hits = append(hits, hit{name: d.Name, count: len(kws), order: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].order < hits[j].order
	})
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}

func keywordLayerConfidence(matched map[string][]string) float64 {
	best := 0
	for _, kws := range matched {
		if len(kws) > best {
			best = len(kws)
		}
	}
	if best == 0 {
		return 0
	}
	return math.Min(1.0, 0.5+0.1*float64(best))
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	count := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i := range v {
			sum[i] += float64(v[i])
		}
		count++
	}
	if count == 0 {
		return nil
	}
	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(count))
	}
	return mean
}

func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
