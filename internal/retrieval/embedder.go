package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint. The
// same endpoint and model must be used at ingestion and query time so both
// sides share one vector space.
type OpenAIEmbedder struct {
	model string
	http  *resty.Client
}

// NewOpenAIEmbedder creates an embedder against baseURL with the given model.
func NewOpenAIEmbedder(baseURL, model string) *OpenAIEmbedder {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &OpenAIEmbedder{
		model: model,
		http:  httpClient,
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingsResponse
	httpResp, err := e.http.R().
		SetContext(ctx).
		SetBody(embeddingsRequest{Model: e.model, Input: []string{text}}).
		SetResult(&resp).
		Post("/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("embeddings error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embeddings response contained no vector")
	}
	return resp.Data[0].Embedding, nil
}
