package retrieval

import (
	"testing"
	"time"
)

func TestEmbedCache_MissThenHit(t *testing.T) {
	c := NewEmbedCache(time.Minute)

	if res := c.Get("q"); res.Hit {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("q", []float32{1, 2, 3})
	res := c.Get("q")
	if !res.Hit {
		t.Fatal("expected hit after Set")
	}
	if res.NeedsRefresh {
		t.Fatal("fresh entry must not request a refresh")
	}
	if len(res.Vector) != 3 {
		t.Fatalf("expected vector of length 3, got %d", len(res.Vector))
	}
}

func TestEmbedCache_StaleServedWithSingleRefresh(t *testing.T) {
	c := NewEmbedCache(time.Nanosecond)
	c.Set("q", []float32{1})
	time.Sleep(time.Millisecond)

	first := c.Get("q")
	if !first.Hit || !first.NeedsRefresh {
		t.Fatal("stale entry must be served with NeedsRefresh")
	}

	second := c.Get("q")
	if !second.Hit {
		t.Fatal("stale entry must still be served")
	}
	if second.NeedsRefresh {
		t.Fatal("only one caller may win the refresh CAS")
	}
}

func TestChunkText(t *testing.T) {
	chunks := ChunkText("abcdefghij", 4)
	want := []string{"abcd", "efgh", "ij"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}

	if got := ChunkText("", 4); got != nil {
		t.Fatal("empty text must produce no chunks")
	}
	if got := ChunkText("abc", 0); got != nil {
		t.Fatal("non-positive size must produce no chunks")
	}
}
