package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

// Merger combines per-domain retrieval results into one ordered context
// window, honoring per-domain budgets and deduplicating across domains.
type Merger struct {
	reranker    ports.Reranker
	crossRerank bool
	logger      *slog.Logger
	onFallback  func()
}

func NewMerger(reranker ports.Reranker, crossRerank bool, logger *slog.Logger, onFallback func()) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if onFallback == nil {
		onFallback = func() {}
	}
	return &Merger{reranker: reranker, crossRerank: crossRerank, logger: logger, onFallback: onFallback}
}

// Merge deduplicates globally in budget-priority order and concatenates
// domains by ascending priority. Without cross-domain rerank each domain is
// trimmed to its budget. With it, all surviving candidates are pooled
// unsliced and the reranker picks the combined budget total, so a strong
// document below its domain's cutoff can still be promoted.
func (m *Merger) Merge(ctx context.Context, question string, results map[string]domain.RetrievalResult, budgets []domain.DomainBudget) []domain.ScoredDocument {
	ordered := append([]domain.DomainBudget(nil), budgets...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	if m.crossRerank && m.reranker != nil {
		pool := m.collect(results, ordered, false)
		if len(pool) > 1 {
			total := domain.TotalK(budgets)
			if total <= 0 || total > len(pool) {
				total = len(pool)
			}
			reranked, err := m.reranker.Rerank(ctx, question, pool, total)
			if err == nil {
				return reranked
			}
			m.logger.Warn("cross-domain rerank failed, keeping priority order", "error", err)
			m.onFallback()
		}
	}
	return m.collect(results, ordered, true)
}

// collect walks the budgeted domains in priority order, dedupes by content
// identity, and optionally trims each domain to its budget. Supplement
// results carry no budget and ride along at the end.
func (m *Merger) collect(results map[string]domain.RetrievalResult, ordered []domain.DomainBudget, applyBudget bool) []domain.ScoredDocument {
	seen := make(map[string]struct{})
	var merged []domain.ScoredDocument
	for _, budget := range ordered {
		result, ok := results[budget.Domain]
		if !ok {
			continue
		}
		kept := 0
		for _, doc := range sortedByScore(result.Documents) {
			if applyBudget && kept >= budget.K {
				break
			}
			key := contentKey(doc)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, doc)
			kept++
		}
	}
	return m.appendUnbudgeted(merged, seen, results, ordered)
}

func (m *Merger) appendUnbudgeted(merged []domain.ScoredDocument, seen map[string]struct{}, results map[string]domain.RetrievalResult, budgets []domain.DomainBudget) []domain.ScoredDocument {
	budgeted := make(map[string]struct{}, len(budgets))
	for _, b := range budgets {
		budgeted[b.Domain] = struct{}{}
	}
	var extraNames []string
	for name := range results {
		if _, ok := budgeted[name]; !ok {
			extraNames = append(extraNames, name)
		}
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		for _, doc := range sortedByScore(results[name].Documents) {
			key := contentKey(doc)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, doc)
		}
	}
	return merged
}

func sortedByScore(docs []domain.ScoredDocument) []domain.ScoredDocument {
	out := append([]domain.ScoredDocument(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
