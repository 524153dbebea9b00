package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// QdrantClient talks to a Qdrant collection over its REST API.
type QdrantClient struct {
	collection string
	http       *resty.Client
}

// NewQdrantClient creates a client for the collection at baseURL.
func NewQdrantClient(baseURL, collection string) *QdrantClient {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)

	return &QdrantClient{
		collection: collection,
		http:       httpClient,
	}
}

type qdrantQueryRequest struct {
	Query       []float32 `json:"query"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []struct {
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search implements PointSearcher against the points query endpoint.
func (c *QdrantClient) Search(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error) {
	var resp qdrantQueryResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(qdrantQueryRequest{Query: vector, Limit: limit, WithPayload: true}).
		SetResult(&resp).
		Post(fmt.Sprintf("/collections/%s/points/query", c.collection))
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("qdrant query error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}

	points := make([]ScoredPoint, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		points = append(points, ScoredPoint{Score: p.Score, Payload: p.Payload})
	}
	return points, nil
}

// UpsertPoint is one chunk to index.
type UpsertPoint struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// EnsureCollection creates the collection with a cosine-distance vector
// space of the given dimension, dropping any existing collection first so
// ingestion is a clean rebuild.
func (c *QdrantClient) EnsureCollection(ctx context.Context, dim int) error {
	// Drop is best-effort: a 404 just means there was nothing to rebuild.
	_, _ = c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/collections/%s", c.collection))

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Put(fmt.Sprintf("/collections/%s", c.collection))
	if err != nil {
		return fmt.Errorf("qdrant create collection failed: %w", err)
	}
	if httpResp.IsError() {
		return fmt.Errorf("qdrant create collection error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}
	return nil
}

// Upsert writes a batch of points into the collection.
func (c *QdrantClient) Upsert(ctx context.Context, points []UpsertPoint) error {
	if len(points) == 0 {
		return nil
	}
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"points": points}).
		SetQueryParam("wait", "true").
		Put(fmt.Sprintf("/collections/%s/points", c.collection))
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	if httpResp.IsError() {
		return fmt.Errorf("qdrant upsert error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}
	return nil
}
