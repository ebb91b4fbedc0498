// Package qdrant implements the VectorStore port against Qdrant's HTTP
// API using named dense and sparse vectors.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Query runs the dense and sparse prefetch legs. A failure in either
// leg fails the whole hybrid query; the retriever owns retry and
// degradation policy.
func (c *Client) Query(ctx context.Context, query ports.VectorQuery) (*ports.PrefetchResult, error) {
	dense, err := c.queryLeg(ctx, queryRequest{
		Query: query.Dense,
		Using: denseVectorName,
		Limit: query.Limit,
	}, domain.MethodDense)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("dense prefetch", err)
	}

	sparse, err := c.queryLeg(ctx, queryRequest{
		Query: sparsePayload(query.Sparse),
		Using: sparseVectorName,
		Limit: query.Limit,
	}, domain.MethodSparse)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("sparse prefetch", err)
	}

	return &ports.PrefetchResult{Dense: dense, Sparse: sparse}, nil
}

func (c *Client) QueryDenseOnly(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]domain.Candidate, error) {
	candidates, err := c.queryLeg(ctx, queryRequest{
		Query:          vector,
		Using:          denseVectorName,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
	}, domain.MethodDense)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("dense-only query", err)
	}
	return candidates, nil
}

type queryRequest struct {
	Query          any     `json:"query"`
	Using          string  `json:"using"`
	Limit          int     `json:"limit"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
	WithPayload    bool    `json:"with_payload"`
}

func sparsePayload(vector domain.SparseVector) map[string]any {
	indices := make([]uint32, 0, len(vector))
	values := make([]float64, 0, len(vector))
	for _, entry := range vector {
		indices = append(indices, entry.Index)
		values = append(values, entry.Weight)
	}
	return map[string]any{
		"indices": indices,
		"values":  values,
	}
}

func (c *Client) queryLeg(ctx context.Context, request queryRequest, method domain.RetrievalMethod) ([]domain.Candidate, error) {
	request.WithPayload = true

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, statusError("query", resp)
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				ID      string         `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(queryResp.Result.Points))
	for _, point := range queryResp.Result.Points {
		out = append(out, domain.Candidate{
			Chunk: domain.Chunk{
				ID:         point.ID,
				DocumentID: stringPayload(point.Payload, "doc_id"),
				Page:       intPayload(point.Payload, "page"),
				Text:       stringPayload(point.Payload, "text"),
				Context: domain.ContextTiers{
					Master:   stringPayload(point.Payload, "ctx_master"),
					Document: stringPayload(point.Payload, "ctx_document"),
					Chunk:    stringPayload(point.Payload, "ctx_chunk"),
				},
			},
			Score:  point.Score,
			Method: method,
		})
	}
	return out, nil
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
