package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Payload is the stored shape of one indexed chunk. allowed_roles is part
// of the payload written at ingestion time, not derived at query time: a
// role absent from it never sees the fragment regardless of score.
type Payload struct {
	DocName      string   `json:"doc_name"`
	ChunkID      int      `json:"chunk_id"`
	Text         string   `json:"text"`
	AllowedRoles []string `json:"allowed_roles"`
}

// Record is one retrieval result visible to the requesting role.
type Record struct {
	DocName      string
	ChunkID      int
	Text         string
	Score        float64
	AllowedRoles []string
}

// ScoredPoint is a raw nearest-neighbour hit from the index.
type ScoredPoint struct {
	Score   float64
	Payload Payload
}

// Embedder turns query text into a vector in the same space used at
// ingestion time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PointSearcher returns the top-limit nearest neighbours for a vector,
// ordered by descending similarity.
type PointSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error)
}

// Gateway performs similarity search and post-filters results by role.
//
// The role filter runs after the top-K fetch, so a caller may receive fewer
// than topK records even when more visible chunks exist further down the
// ranked list. OverfetchFactor > 1 requests factor*topK candidates before
// filtering as an explicit opt-in; results are still truncated to topK.
type Gateway struct {
	embedder  Embedder
	searcher  PointSearcher
	cache     *EmbedCache
	overfetch int
	logger    *zap.Logger
}

// GatewayConfig configures the Gateway.
type GatewayConfig struct {
	Embedder        Embedder
	Searcher        PointSearcher
	EmbedCacheTTL   time.Duration // 0 uses the default
	OverfetchFactor int           // 1 = documented under-filled behavior
	Logger          *zap.Logger
}

// NewGateway creates a Gateway with the given dependencies.
func NewGateway(cfg GatewayConfig) *Gateway {
	overfetch := cfg.OverfetchFactor
	if overfetch < 1 {
		overfetch = 1
	}
	return &Gateway{
		embedder:  cfg.Embedder,
		searcher:  cfg.Searcher,
		cache:     NewEmbedCache(cfg.EmbedCacheTTL),
		overfetch: overfetch,
		logger:    cfg.Logger,
	}
}

// Retrieve returns at most topK records visible to role, ordered by
// descending score. The returned slice is fully materialized.
func (g *Gateway) Retrieve(ctx context.Context, queryText, role string, topK int) ([]Record, error) {
	if topK <= 0 {
		return []Record{}, nil
	}

	vector, err := g.embedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("Retrieve: %w", err)
	}

	points, err := g.searcher.Search(ctx, vector, topK*g.overfetch)
	if err != nil {
		return nil, fmt.Errorf("Retrieve: %w", err)
	}

	records := make([]Record, 0, topK)
	for _, p := range points {
		if !roleVisible(role, p.Payload.AllowedRoles) {
			continue
		}
		records = append(records, Record{
			DocName:      p.Payload.DocName,
			ChunkID:      p.Payload.ChunkID,
			Text:         p.Payload.Text,
			Score:        p.Score,
			AllowedRoles: p.Payload.AllowedRoles,
		})
		if len(records) == topK {
			break
		}
	}
	return records, nil
}

func (g *Gateway) embedQuery(ctx context.Context, queryText string) ([]float32, error) {
	hit := g.cache.Get(queryText)
	if hit.Hit {
		if hit.NeedsRefresh {
			go g.refreshInBackground(queryText)
		}
		return hit.Vector, nil
	}

	vector, err := g.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	g.cache.Set(queryText, vector)
	return vector, nil
}

func (g *Gateway) refreshInBackground(queryText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	vector, err := g.embedder.Embed(ctx, queryText)
	if err != nil {
		g.logger.Warn("background embedding refresh failed", zap.Error(err))
		return
	}
	g.cache.Set(queryText, vector)
}

func roleVisible(role string, allowedRoles []string) bool {
	for _, r := range allowedRoles {
		if r == role {
			return true
		}
	}
	return false
}
