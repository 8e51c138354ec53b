package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

const decompositionHistoryTurns = 3

// QuestionDecomposer splits a multi-domain question into one sub-query per
// domain. Single-domain questions pass through without a model call.
type QuestionDecomposer struct {
	completion ports.CompletionService
	logger     *slog.Logger
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]decompositionEntry
}

type decompositionEntry struct {
	subQueries []domain.SubQuery
	storedAt   time.Time
}

func NewQuestionDecomposer(completion ports.CompletionService, ttl time.Duration, logger *slog.Logger) *QuestionDecomposer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionDecomposer{
		completion: completion,
		logger:     logger,
		ttl:        ttl,
		cache:      make(map[string]decompositionEntry),
	}
}

// Decompose returns at least one sub-query per requested domain. Requested
// domains are never silently dropped: any domain the model misses gets a
// fallback sub-query carrying the original text, and a failed call falls
// back to the original text for every domain.
func (d *QuestionDecomposer) Decompose(ctx context.Context, query domain.Query, domains []string) []domain.SubQuery {
	if len(domains) == 0 {
		return nil
	}
	if len(domains) == 1 {
		return []domain.SubQuery{{Domain: domains[0], Text: query.Text}}
	}

	key := decompositionKey(query, domains)
	if cached, ok := d.lookup(key); ok {
		return cached
	}

	fromModel := d.callModel(ctx, query, domains)
	subQueries := coverAllDomains(fromModel, domains, query.Text)

	// Only successful decompositions are cached. A failed call produced
	// pure fallback sub-queries, and the next request should consult the
	// model again instead of replaying them for the cache TTL.
	if fromModel != nil {
		d.store(key, subQueries)
	}
	return subQueries
}

func (d *QuestionDecomposer) callModel(ctx context.Context, query domain.Query, domains []string) []domain.SubQuery {
	history := query.RecentHistory(decompositionHistoryTurns)
	raw, err := d.completion.CompleteJSON(ctx, buildDecompositionPrompt(query.Text, domains, history))
	if err != nil {
		d.logger.Warn("decomposition call failed, using original query per domain", "error", err)
		return nil
	}

	var parsed struct {
		SubQueries []struct {
			Domain   string `json:"domain"`
			Question string `json:"question"`
		} `json:"sub_queries"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		d.logger.Warn("decomposition output unparseable, using original query per domain", "error", err)
		return nil
	}

	requested := make(map[string]struct{}, len(domains))
	for _, name := range domains {
		requested[name] = struct{}{}
	}

	var out []domain.SubQuery
	for _, sq := range parsed.SubQueries {
		name := strings.TrimSpace(strings.ToLower(sq.Domain))
		text := strings.TrimSpace(sq.Question)
		if text == "" {
			continue
		}
		if _, ok := requested[name]; !ok {
			continue
		}
		out = append(out, domain.SubQuery{Domain: name, Text: text})
	}
	return out
}

// coverAllDomains enforces the post-parse invariant: every requested domain
// gets a sub-query, synthesized from the original text when missing.
func coverAllDomains(subQueries []domain.SubQuery, domains []string, original string) []domain.SubQuery {
	covered := make(map[string]struct{}, len(subQueries))
	var out []domain.SubQuery
	for _, sq := range subQueries {
		if _, seen := covered[sq.Domain]; seen {
			continue
		}
		covered[sq.Domain] = struct{}{}
		out = append(out, sq)
	}
	for _, name := range domains {
		if _, ok := covered[name]; !ok {
			out = append(out, domain.SubQuery{Domain: name, Text: original})
		}
	}
	return out
}

func (d *QuestionDecomposer) lookup(key string) ([]domain.SubQuery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.cache[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > d.ttl {
		delete(d.cache, key)
		return nil, false
	}
	return entry.subQueries, true
}

func (d *QuestionDecomposer) store(key string, subQueries []domain.SubQuery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Opportunistic expiry sweep keeps the map bounded without a janitor.
	for k, entry := range d.cache {
		if time.Since(entry.storedAt) > d.ttl {
			delete(d.cache, k)
		}
	}
	d.cache[key] = decompositionEntry{subQueries: subQueries, storedAt: time.Now()}
}

func decompositionKey(query domain.Query, domains []string) string {
	sorted := make([]string, len(domains))
	copy(sorted, domains)
	sort.Strings(sorted)
	return query.Text + "|" + strings.Join(sorted, ",") + "|" + query.LastAssistantTurn()
}
