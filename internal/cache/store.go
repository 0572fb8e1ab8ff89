// Package cache owns the persisted content cache aggregate: its schema
// version, its denormalized indexes and its freshness rules.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/content-sync-engine/internal/clock"
	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/storage"
	"github.com/content-sync-engine/internal/transform"
	"github.com/rs/zerolog"
)

// StorageKey is where the current schema is persisted
const StorageKey = "content_cache_v9"

// LegacyKeys are keys written by earlier schemas
var LegacyKeys = []string{"content_cache", "content_cache_v7", "content_cache_v8"}

// Store holds the in-memory cache and mirrors every mutation to a BlobStore.
// A nil cache means "empty": nothing loaded and nothing fetched yet.
type Store struct {
	mu    sync.RWMutex
	cache *models.ContentCache

	blobs storage.BlobStore
	clock clock.Clock
	cfg   config.SyncConfig
	log   zerolog.Logger
}

// NewStore creates an empty store; call Load to restore persisted state
func NewStore(blobs storage.BlobStore, clk clock.Clock, cfg config.SyncConfig, log zerolog.Logger) *Store {
	return &Store{
		blobs: blobs,
		clock: clk,
		cfg:   cfg,
		log:   log.With().Str("component", "cache").Logger(),
	}
}

// Load restores the persisted cache. An absent blob leaves the cache empty.
// A blob from another schema version, or one that cannot be decoded, is
// evicted together with the legacy keys.
func (s *Store) Load(ctx context.Context) error {
	data, found, err := s.blobs.Get(ctx, StorageKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil

	if !found {
		s.deleteLegacy(ctx)
		return nil
	}

	var loaded models.ContentCache
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn().Err(err).Msg("Persisted cache is corrupt, evicting")
		s.evict(ctx)
		return nil
	}
	if loaded.Version != models.CacheVersion {
		s.log.Info().
			Str("found", loaded.Version).
			Str("expected", models.CacheVersion).
			Msg("Cache schema version mismatch, evicting")
		s.evict(ctx)
		return nil
	}

	migrated := !modificationMapInSync(&loaded)
	now := s.clock.Now()
	loaded.Posts = transform.Rematerialize(loaded.Posts, now)
	reindex(&loaded)
	s.cache = &loaded

	if migrated {
		s.log.Info().Int("posts", len(loaded.Posts)).Msg("Rebuilt post modification map")
		s.persistLocked(ctx)
	}

	s.log.Info().
		Int("posts", len(loaded.Posts)).
		Time("timestamp", loaded.Timestamp).
		Msg("Content cache loaded")
	return nil
}

// Save persists the current cache. Errors are logged, never returned.
func (s *Store) Save(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(s.cache)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode content cache")
		return
	}
	if err := s.blobs.Put(ctx, StorageKey, data); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist content cache")
	}
}

func (s *Store) evict(ctx context.Context) {
	if err := s.blobs.Delete(ctx, StorageKey); err != nil {
		s.log.Warn().Err(err).Msg("Failed to delete persisted cache")
	}
	s.deleteLegacy(ctx)
}

func (s *Store) deleteLegacy(ctx context.Context) {
	for _, key := range LegacyKeys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.Debug().Err(err).Str("key", key).Msg("Failed to delete legacy cache key")
		}
	}
}

// Clear drops the in-memory cache and every persisted key
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.evict(ctx)
}

// IsEmpty reports whether there is no cache at all
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache == nil
}

// IsValid reports whether the cache is within its hard TTL
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return false
	}
	return s.clock.Now().Sub(s.cache.Timestamp) < s.cfg.FullTTL
}

// IsStale reports whether the cache is old enough to warrant a background check
func (s *Store) IsStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return false
	}
	return s.clock.Now().Sub(s.cache.Timestamp) > s.cfg.StaleThreshold
}

// Posts returns a copy of the cached posts with event flags evaluated at now
func (s *Store) Posts(now time.Time) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return nil
	}
	return transform.Rematerialize(s.cache.Posts, now)
}

// Snapshot returns a deep copy of the whole aggregate, or nil when empty
func (s *Store) Snapshot() *models.ContentCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return nil
	}
	return cloneCache(s.cache)
}

// KnownModifications returns the modified instant of every id the last
// fetches saw, including finished events that were dropped
func (s *Store) KnownModifications() map[int]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return nil
	}
	out := make(map[int]time.Time, len(s.cache.PostModificationMap)+len(s.cache.ExpiredModifications))
	for id, m := range s.cache.ExpiredModifications {
		out[id] = m
	}
	for id, m := range s.cache.PostModificationMap {
		out[id] = m
	}
	return out
}

// LastValidationCheck returns the instant of the last staleness check
func (s *Store) LastValidationCheck() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cache == nil {
		return time.Time{}, false
	}
	return s.cache.LastValidationCheck, true
}

// Replace swaps in a freshly fetched post set. Local bookmark and like flags
// carry over by id. Both timestamps are set to now. expired lists the
// fetched posts that were dropped as finished events.
func (s *Store) Replace(ctx context.Context, posts, expired []models.Post, now time.Time) []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := models.ClonePosts(posts)
	if s.cache != nil {
		local := make(map[int]models.Post, len(s.cache.Posts))
		for _, p := range s.cache.Posts {
			local[p.ID] = p
		}
		for i := range next {
			if prev, ok := local[next[i].ID]; ok {
				next[i].IsBookmarked = prev.IsBookmarked
				next[i].IsLiked = prev.IsLiked
			}
		}
	}
	if next == nil {
		next = []models.Post{}
	}

	s.cache = &models.ContentCache{
		Posts:               next,
		Timestamp:           now,
		Version:             models.CacheVersion,
		LastValidationCheck: now,
	}
	recordExpired(s.cache, expired)
	reindex(s.cache)
	s.persistLocked(ctx)
	return transform.Rematerialize(s.cache.Posts, now)
}

// Patch merges freshly fetched posts by id. Existing posts are replaced in
// place keeping their local flags unless the entry overrides them; unknown
// ids are added. A copy older than the cached one is ignored. Posts listed in
// expired are removed and remembered as finished events.
//
// A cleared cache is left alone. Patch reports whether the post set changed;
// both timestamps advance only then, otherwise just the validation check.
func (s *Store) Patch(ctx context.Context, entries []models.PatchEntry, expired []models.Post, now time.Time) ([]models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		return nil, false
	}

	changed := false
	if len(expired) > 0 {
		gone := make(map[int]bool, len(expired))
		for _, p := range expired {
			gone[p.ID] = true
		}
		kept := s.cache.Posts[:0:0]
		for _, p := range s.cache.Posts {
			if !gone[p.ID] {
				kept = append(kept, p)
			}
		}
		changed = len(kept) != len(s.cache.Posts)
		s.cache.Posts = kept
		recordExpired(s.cache, expired)
	}

	index := make(map[int]int, len(s.cache.Posts))
	for i, p := range s.cache.Posts {
		index[p.ID] = i
	}

	var added []models.Post
	addedAt := make(map[int]int)
	for _, entry := range entries {
		post := entry.Post.Clone()
		if j, ok := addedAt[post.ID]; ok {
			entry.Flags.ApplyTo(&post)
			added[j] = post
			continue
		}
		if i, ok := index[post.ID]; ok {
			prev := s.cache.Posts[i]
			if models.IsNewer(prev.Modified, post.Modified) {
				continue
			}
			post.IsFeatured = prev.IsFeatured
			post.IsBookmarked = prev.IsBookmarked
			post.IsLiked = prev.IsLiked
			entry.Flags.ApplyTo(&post)
			s.cache.Posts[i] = post
			changed = true
			continue
		}
		entry.Flags.ApplyTo(&post)
		addedAt[post.ID] = len(added)
		added = append(added, post)
	}
	if len(added) > 0 {
		s.cache.Posts = append(added, s.cache.Posts...)
		changed = true
	}

	if changed {
		s.cache.Timestamp = now
	}
	s.cache.LastValidationCheck = now
	reindex(s.cache)
	s.persistLocked(ctx)
	return transform.Rematerialize(s.cache.Posts, now), changed
}

// recordExpired remembers the modified instant of each finished event,
// keeping the later one when an id is already known
func recordExpired(c *models.ContentCache, expired []models.Post) {
	if len(expired) == 0 {
		return
	}
	if c.ExpiredModifications == nil {
		c.ExpiredModifications = make(map[int]time.Time, len(expired))
	}
	for _, p := range expired {
		if prev, ok := c.ExpiredModifications[p.ID]; !ok || models.IsNewer(p.Modified, prev) {
			c.ExpiredModifications[p.ID] = p.Modified
		}
	}
}

// Remove drops one post by id. It reports false when the id was not cached.
func (s *Store) Remove(ctx context.Context, id int) ([]models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		return nil, false
	}
	kept := s.cache.Posts[:0:0]
	for _, p := range s.cache.Posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(s.cache.Posts) {
		return nil, false
	}

	s.cache.Posts = kept
	reindex(s.cache)
	s.persistLocked(ctx)
	return transform.Rematerialize(s.cache.Posts, s.clock.Now()), true
}

// MarkValidated stamps a digest check that found nothing to do
func (s *Store) MarkValidated(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		return
	}
	s.cache.LastValidationCheck = now
	s.persistLocked(ctx)
}

// UpdateFlags sets local flags on one post
func (s *Store) UpdateFlags(ctx context.Context, id int, overrides models.FlagOverrides) ([]models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil {
		return nil, false
	}
	for i := range s.cache.Posts {
		if s.cache.Posts[i].ID == id {
			overrides.ApplyTo(&s.cache.Posts[i])
			s.persistLocked(ctx)
			return transform.Rematerialize(s.cache.Posts, s.clock.Now()), true
		}
	}
	return nil, false
}

// Info projects cache health at now. In-flight flags are left to the caller.
func (s *Store) Info(now time.Time) models.CacheInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cache == nil {
		return models.CacheInfo{
			PostTypeCount:  map[models.PostType]int{},
			EventTypeCount: map[string]int{},
		}
	}

	c := s.cache
	age := now.Sub(c.Timestamp)
	ts := c.Timestamp
	info := models.CacheInfo{
		Exists:         true,
		Version:        c.Version,
		TotalPosts:     len(c.Posts),
		Timestamp:      &ts,
		AgeMs:          age.Milliseconds(),
		AgeSeconds:     int64(age / time.Second),
		AgeMinutes:     int64(age / time.Minute),
		AgeHours:       age.Hours(),
		IsValid:        age < s.cfg.FullTTL,
		IsStale:        age > s.cfg.StaleThreshold,
		PostTypeCount:  copyCounts(c.PostTypeCount),
		EventTypeCount: copyCounts(c.EventTypeCount),
		CategoryCount:  len(c.Categories),
		TagCount:       len(c.Tags),
	}
	if !c.LastValidationCheck.IsZero() {
		lv := c.LastValidationCheck
		mins := int64(now.Sub(lv) / time.Minute)
		info.LastValidationCheck = &lv
		info.MinutesSinceValidation = &mins
	}
	return info
}

// Ping checks the backing blob store
func (s *Store) Ping(ctx context.Context) error {
	return s.blobs.Ping(ctx)
}

// reindex restores every invariant derived from Posts: date-descending
// order, counts, term lists and the modification map. A cached id is never
// also listed as expired.
func reindex(c *models.ContentCache) {
	sort.SliceStable(c.Posts, func(i, j int) bool {
		return c.Posts[i].Date.After(c.Posts[j].Date)
	})

	c.PostTypeCount = make(map[models.PostType]int)
	c.EventTypeCount = make(map[string]int)
	c.PostModificationMap = make(map[int]time.Time, len(c.Posts))
	categories := make(map[string]struct{})
	tags := make(map[string]struct{})

	for _, p := range c.Posts {
		c.PostTypeCount[p.PostType]++
		if p.EventType != "" {
			c.EventTypeCount[p.EventType]++
		}
		for _, name := range p.Categories {
			categories[name] = struct{}{}
		}
		for _, name := range p.Tags {
			tags[name] = struct{}{}
		}
		c.PostModificationMap[p.ID] = p.Modified
		delete(c.ExpiredModifications, p.ID)
	}
	if len(c.ExpiredModifications) == 0 {
		c.ExpiredModifications = nil
	}

	c.Categories = sortedKeys(categories)
	c.Tags = sortedKeys(tags)
}

func modificationMapInSync(c *models.ContentCache) bool {
	if c.PostModificationMap == nil || len(c.PostModificationMap) != len(c.Posts) {
		return false
	}
	for _, p := range c.Posts {
		m, ok := c.PostModificationMap[p.ID]
		if !ok || !m.Equal(p.Modified) {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyCounts[K comparable](in map[K]int) map[K]int {
	out := make(map[K]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneCache(c *models.ContentCache) *models.ContentCache {
	out := *c
	out.Posts = models.ClonePosts(c.Posts)
	out.PostTypeCount = copyCounts(c.PostTypeCount)
	out.EventTypeCount = copyCounts(c.EventTypeCount)
	out.Categories = append([]string(nil), c.Categories...)
	out.Tags = append([]string(nil), c.Tags...)
	out.PostModificationMap = make(map[int]time.Time, len(c.PostModificationMap))
	for id, m := range c.PostModificationMap {
		out.PostModificationMap[id] = m
	}
	if c.ExpiredModifications != nil {
		out.ExpiredModifications = make(map[int]time.Time, len(c.ExpiredModifications))
		for id, m := range c.ExpiredModifications {
			out.ExpiredModifications[id] = m
		}
	}
	return &out
}
