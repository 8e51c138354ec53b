package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkravets/consultrag/internal/core/domain"
	"github.com/mkravets/consultrag/internal/infrastructure/resilience"
)

// Client is a thin HTTP adapter over the qdrant points API. Collections are
// domain-scoped; the engine never creates or mutates them.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type searchHit struct {
	Score   float64        `json:"score"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Search runs dense similarity search over one collection.
func (c *Client) Search(ctx context.Context, collection string, queryVector []float32, limit int) ([]domain.ScoredDocument, error) {
	hits, err := c.search(ctx, collection, queryVector, limit, false)
	if err != nil {
		return nil, err
	}
	return hitsToDocuments(hits), nil
}

// SearchMMR fetches fetchK candidates with their vectors and selects limit
// documents by maximal marginal relevance with the given lambda.
func (c *Client) SearchMMR(ctx context.Context, collection string, queryVector []float32, limit, fetchK int, lambda float64) ([]domain.ScoredDocument, error) {
	if fetchK < limit {
		fetchK = limit
	}
	hits, err := c.search(ctx, collection, queryVector, fetchK, true)
	if err != nil {
		return nil, err
	}
	selected := selectMMR(queryVector, hits, limit, lambda)
	return hitsToDocuments(selected), nil
}

func (c *Client) search(ctx context.Context, collection string, queryVector []float32, limit int, withVector bool) ([]searchHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  withVector,
	}

	var searchResp struct {
		Result []searchHit `json:"result"`
	}

	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, fmt.Sprintf("/collections/%s/points/search", collection), reqBody, &searchResp)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant.search", call, classifySearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return searchResp.Result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.WrapError(domain.ErrCollectionNotFound, "qdrant search", fmt.Errorf("status %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("qdrant search status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func hitsToDocuments(hits []searchHit) []domain.ScoredDocument {
	out := make([]domain.ScoredDocument, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.ScoredDocument{
			ID:     payloadString(h.Payload, "doc_id"),
			Title:  payloadString(h.Payload, "title"),
			Origin: payloadString(h.Payload, "origin"),
			Text:   payloadString(h.Payload, "text"),
			Score:  h.Score,
		})
	}
	return out
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
