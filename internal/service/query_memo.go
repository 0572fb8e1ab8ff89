package service

import (
	"sync"
	"time"

	"github.com/content-sync-engine/internal/clock"
	"github.com/content-sync-engine/internal/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// memoEntry wraps a filtered result and its expiry
type memoEntry struct {
	posts     []models.Post
	total     int
	expiresAt time.Time
}

// queryMemo caches filtered reads keyed by the normalized filter. It is
// purged on every cache mutation; the TTL bounds how long derived event
// flags may lag the clock. Each purge starts a new generation, and a result
// computed in an older generation is never stored.
type queryMemo struct {
	lruCache *lru.Cache[string, memoEntry]
	ttl      time.Duration
	clock    clock.Clock

	mu  sync.Mutex
	gen uint64
}

// newQueryMemo returns nil when size or ttl disable memoization
func newQueryMemo(size int, ttl time.Duration, clk clock.Clock) (*queryMemo, error) {
	if size <= 0 || ttl <= 0 {
		return nil, nil
	}
	l, err := lru.New[string, memoEntry](size)
	if err != nil {
		return nil, err
	}
	return &queryMemo{lruCache: l, ttl: ttl, clock: clk}, nil
}

func (m *queryMemo) get(key string) ([]models.Post, int, bool) {
	if m == nil {
		return nil, 0, false
	}
	val, ok := m.lruCache.Get(key)
	if !ok {
		return nil, 0, false
	}
	if m.clock.Now().After(val.expiresAt) {
		m.lruCache.Remove(key)
		return nil, 0, false
	}
	return models.ClonePosts(val.posts), val.total, true
}

// generation identifies the current purge epoch
func (m *queryMemo) generation() uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// set stores a result computed during generation gen
func (m *queryMemo) set(key string, gen uint64, posts []models.Post, total int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.lruCache.Add(key, memoEntry{
		posts:     models.ClonePosts(posts),
		total:     total,
		expiresAt: m.clock.Now().Add(m.ttl),
	})
}

func (m *queryMemo) purge() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.lruCache.Purge()
}
