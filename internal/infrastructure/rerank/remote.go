package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/infrastructure/resilience"
)

// Remote calls a cross-encoder inference endpoint with (query, documents)
// pairs and reorders by the returned relevance scores.
type Remote struct {
	url        string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type RemoteOptions struct {
	Timeout            time.Duration
	Model              string
	ResilienceExecutor *resilience.Executor
}

func NewRemote(url string, options RemoteOptions) *Remote {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Remote{
		url:        strings.TrimRight(url, "/"),
		model:      options.Model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (r *Remote) Rerank(ctx context.Context, query string, docs []domain.ScoredDocument, topK int) ([]domain.ScoredDocument, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	reqBody := map[string]any{
		"query":     query,
		"documents": texts,
		"top_n":     topK,
	}
	if r.model != "" {
		reqBody["model"] = r.model
	}

	var response struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}

	call := func(callCtx context.Context) error {
		return r.post(callCtx, reqBody, &response)
	}
	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, "rerank.remote", call, nil)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredDocument, 0, topK)
	for _, res := range response.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			continue
		}
		doc := docs[res.Index]
		doc.Score = res.RelevanceScore
		out = append(out, doc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rerank endpoint returned no usable results")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (r *Remote) post(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/rerank", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("rerank status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}
