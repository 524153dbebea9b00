package retrieval

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultEmbedCacheTTL = 60 * time.Second

// EmbedCache is a TTL-based in-memory cache with stale-while-revalidate for
// query embeddings. The orchestrator embeds the same fixed notes query on
// every run, so the hot path is a lock-free sync.Map read.
type EmbedCache struct {
	store sync.Map // map[string]*embedCacheEntry
	ttl   time.Duration
}

type embedCacheEntry struct {
	vector     []float32
	expiresAt  time.Time
	refreshing atomic.Bool
}

// EmbedCacheResult holds the result of a cache lookup.
type EmbedCacheResult struct {
	Vector       []float32
	Hit          bool
	NeedsRefresh bool // true once per expiry — caller should refresh in background
}

// NewEmbedCache creates a cache with the given TTL.
func NewEmbedCache(ttl time.Duration) *EmbedCache {
	if ttl == 0 {
		ttl = defaultEmbedCacheTTL
	}
	return &EmbedCache{ttl: ttl}
}

// Get performs a non-blocking cache lookup. Stale entries are returned with
// NeedsRefresh=true for exactly one caller (CAS-guarded).
func (c *EmbedCache) Get(queryText string) EmbedCacheResult {
	val, ok := c.store.Load(queryText)
	if !ok {
		return EmbedCacheResult{Hit: false}
	}

	entry := val.(*embedCacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return EmbedCacheResult{Vector: entry.vector, Hit: true}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return EmbedCacheResult{
		Vector:       entry.vector,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores an embedding with a fresh TTL.
func (c *EmbedCache) Set(queryText string, vector []float32) {
	c.store.Store(queryText, &embedCacheEntry{
		vector:    vector,
		expiresAt: time.Now().Add(c.ttl),
	})
}
