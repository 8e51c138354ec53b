package rerank

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/core/ports"
)

// LLM scores each (query, document) pair with the completion service on a
// 0-10 relevance scale. Scoring runs on a bounded worker pool so model-bound
// work stays off the request-handling path width.
type LLM struct {
	completion ports.CompletionService
	workers    int
}

func NewLLM(completion ports.CompletionService, workers int) *LLM {
	if workers <= 0 {
		workers = 2
	}
	return &LLM{completion: completion, workers: workers}
}

func (l *LLM) Rerank(ctx context.Context, query string, docs []domain.ScoredDocument, topK int) ([]domain.ScoredDocument, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}

	type scoredIdx struct {
		idx   int
		score float64
		err   error
	}

	jobs := make(chan int)
	results := make(chan scoredIdx, len(docs))
	var wg sync.WaitGroup

	for w := 0; w < l.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				score, err := l.scorePair(ctx, query, docs[idx].Text)
				results <- scoredIdx{idx: idx, score: score, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range docs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]domain.ScoredDocument, len(docs))
	copy(out, docs)
	var firstErr error
	scoredCount := 0
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		out[res.idx].Score = res.score / 10.0
		scoredCount++
	}
	if scoredCount == 0 {
		if firstErr == nil {
			firstErr = ctx.Err()
		}
		return nil, fmt.Errorf("llm rerank scored no documents: %w", firstErr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out[:topK], nil
}

func (l *LLM) scorePair(ctx context.Context, query, text string) (float64, error) {
	const maxSnippet = 1500
	if len(text) > maxSnippet {
		text = text[:maxSnippet]
	}

	prompt := fmt.Sprintf(`Rate how relevant the passage is to the question on a scale from 0 to 10.
Reply with a single number only.

Question:
%s

Passage:
%s
`, query, text)

	raw, err := l.completion.Complete(ctx, prompt)
	if err != nil {
		return 0, err
	}
	return parseScore(raw)
}

func parseScore(raw string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty rerank score")
	}
	score, err := strconv.ParseFloat(strings.Trim(fields[0], ".,"), 64)
	if err != nil {
		return 0, fmt.Errorf("parse rerank score %q: %w", raw, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, nil
}
