package retrieval

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// mockEmbedder counts Embed calls.
type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

// mockSearcher returns canned points and records the requested limit.
type mockSearcher struct {
	points    []ScoredPoint
	err       error
	lastLimit int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, limit int) ([]ScoredPoint, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.points, nil
}

func point(doc string, chunk int, score float64, roles ...string) ScoredPoint {
	return ScoredPoint{
		Score: score,
		Payload: Payload{
			DocName:      doc,
			ChunkID:      chunk,
			Text:         "text",
			AllowedRoles: roles,
		},
	}
}

func newTestGateway(embedder Embedder, searcher PointSearcher, overfetch int) *Gateway {
	return NewGateway(GatewayConfig{
		Embedder:        embedder,
		Searcher:        searcher,
		OverfetchFactor: overfetch,
		Logger:          zap.NewNop(),
	})
}

func TestRetrieve_FiltersByRole(t *testing.T) {
	searcher := &mockSearcher{points: []ScoredPoint{
		point("secrets.md", 0, 0.99, "finance"),
		point("runbook.md", 0, 0.80, "finance", "ops"),
		point("runbook.md", 1, 0.70, "ops"),
	}}
	g := newTestGateway(&mockEmbedder{vector: []float32{0.1}}, searcher, 1)

	records, err := g.Retrieve(context.Background(), "why did revenue drop", "ops", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 visible records, got %d", len(records))
	}
	for _, r := range records {
		if r.DocName == "secrets.md" {
			t.Fatal("record whose allowed_roles excludes the caller must never appear")
		}
	}
}

func TestRetrieve_TopMatchHiddenWhenNotVisible(t *testing.T) {
	// The single closest match is finance-only; ops must not see it.
	searcher := &mockSearcher{points: []ScoredPoint{
		point("finance-only.md", 0, 0.99, "finance"),
	}}
	g := newTestGateway(&mockEmbedder{vector: []float32{0.1}}, searcher, 1)

	records, err := g.Retrieve(context.Background(), "q", "ops", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no visible records, got %d", len(records))
	}
}

func TestRetrieve_OrderAndLengthBound(t *testing.T) {
	searcher := &mockSearcher{points: []ScoredPoint{
		point("a.md", 0, 0.9, "finance"),
		point("b.md", 0, 0.8, "finance"),
		point("c.md", 0, 0.7, "finance"),
	}}
	g := newTestGateway(&mockEmbedder{vector: []float32{0.1}}, searcher, 1)

	records, err := g.Retrieve(context.Background(), "q", "finance", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected topK=2 records, got %d", len(records))
	}
	if records[0].Score < records[1].Score {
		t.Fatal("records must be ordered by descending score")
	}
}

func TestRetrieve_UnderfilledByDefault(t *testing.T) {
	// Default policy: filter after top-K, so the caller can get fewer than
	// topK even when more visible chunks exist beyond the fetched window.
	searcher := &mockSearcher{points: []ScoredPoint{
		point("hidden.md", 0, 0.9, "finance"),
		point("visible.md", 0, 0.8, "ops"),
	}}
	g := newTestGateway(&mockEmbedder{vector: []float32{0.1}}, searcher, 1)

	records, err := g.Retrieve(context.Background(), "q", "ops", 2)
	if err != nil {
		t.Fatal(err)
	}
	if searcher.lastLimit != 2 {
		t.Fatalf("default policy must request exactly topK candidates, got %d", searcher.lastLimit)
	}
	if len(records) != 1 {
		t.Fatalf("expected under-filled result of 1, got %d", len(records))
	}
}

func TestRetrieve_OverfetchFactor(t *testing.T) {
	searcher := &mockSearcher{}
	g := newTestGateway(&mockEmbedder{vector: []float32{0.1}}, searcher, 3)

	if _, err := g.Retrieve(context.Background(), "q", "ops", 2); err != nil {
		t.Fatal(err)
	}
	if searcher.lastLimit != 6 {
		t.Fatalf("overfetch=3 with topK=2 must request 6 candidates, got %d", searcher.lastLimit)
	}
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	searcher := &mockSearcher{err: errors.New("index unreachable")}
	g := newTestGateway(&mockEmbedder{vector: []float32{0.1}}, searcher, 1)

	if _, err := g.Retrieve(context.Background(), "q", "ops", 3); err == nil {
		t.Fatal("expected search failure to propagate")
	}
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	g := newTestGateway(&mockEmbedder{err: errors.New("model down")}, &mockSearcher{}, 1)

	if _, err := g.Retrieve(context.Background(), "q", "ops", 3); err == nil {
		t.Fatal("expected embedding failure to propagate")
	}
}

func TestRetrieve_ZeroTopK(t *testing.T) {
	embedder := &mockEmbedder{vector: []float32{0.1}}
	g := newTestGateway(embedder, &mockSearcher{}, 1)

	records, err := g.Retrieve(context.Background(), "q", "ops", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatal("topK=0 must return an empty materialized slice")
	}
	if embedder.calls != 0 {
		t.Fatal("topK=0 must not call the embedder")
	}
}

func TestRetrieve_EmbeddingCached(t *testing.T) {
	embedder := &mockEmbedder{vector: []float32{0.1}}
	g := newTestGateway(embedder, &mockSearcher{}, 1)

	for i := 0; i < 3; i++ {
		if _, err := g.Retrieve(context.Background(), "same query", "ops", 3); err != nil {
			t.Fatal(err)
		}
	}
	if embedder.calls != 1 {
		t.Fatalf("repeated query must hit the embed cache, got %d embedder calls", embedder.calls)
	}
}
