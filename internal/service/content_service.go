package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/content-sync-engine/internal/cache"
	"github.com/content-sync-engine/internal/clock"
	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/query"
	"github.com/content-sync-engine/internal/remote"
	"github.com/content-sync-engine/internal/transform"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const fullRefreshKey = "full-refresh"

// contentService is the concrete implementation of ContentService
type contentService struct {
	store       *cache.Store
	origin      remote.Client
	transformer *transform.Transformer
	clock       clock.Clock
	guard       *syncGuard
	flight      singleflight.Group
	memo        *queryMemo
	subscribers *broadcaster
	kick        func()
	closed      chan struct{}
	closeOnce   sync.Once

	pageSize int
	maxPages int
	log      zerolog.Logger
}

func newContentService(deps Dependencies, guard *syncGuard, cfg *config.Config, log zerolog.Logger) (*contentService, error) {
	memo, err := newQueryMemo(cfg.Sync.QueryCacheSize, cfg.Sync.QueryCacheTTL, deps.Clock)
	if err != nil {
		return nil, fmt.Errorf("create query memo: %w", err)
	}

	svcLog := log.With().Str("service", "content").Logger()
	return &contentService{
		store:       deps.Store,
		origin:      deps.Origin,
		transformer: deps.Transformer,
		clock:       deps.Clock,
		guard:       guard,
		memo:        memo,
		subscribers: newBroadcaster(svcLog),
		kick:        func() {},
		closed:      make(chan struct{}),
		pageSize:    cfg.Origin.PageSize,
		maxPages:    cfg.Origin.MaxPages,
		log:         svcLog,
	}, nil
}

// GetContent serves filtered posts, fetching from the origin when forced or
// when the cache is no longer valid. A stale but valid cache is served as is
// and triggers a background validation pass.
func (s *contentService) GetContent(ctx context.Context, filter models.Filter, forceRefresh bool) (*models.APIResponse, error) {
	if !forceRefresh && s.store.IsValid() {
		if s.store.IsStale() {
			s.kick()
		}
		return s.serve(filter, true), nil
	}
	return s.refreshAndServe(ctx, filter)
}

// RefreshContent performs an unconditional full fetch-and-replace
func (s *contentService) RefreshContent(ctx context.Context, filter models.Filter) (*models.APIResponse, error) {
	return s.refreshAndServe(ctx, filter)
}

func (s *contentService) refreshAndServe(ctx context.Context, filter models.Filter) (*models.APIResponse, error) {
	if _, err := s.fullRefresh(ctx); err != nil {
		if s.store.IsEmpty() {
			s.log.Error().Err(err).Msg("Content fetch failed with no cache to fall back on")
			return nil, fmt.Errorf("%w: %w", ErrNoContent, err)
		}

		s.log.Warn().Err(err).Msg("Content fetch failed, serving cached content")
		resp := s.serve(filter, true)
		resp.Stale = true
		resp.Error = err.Error()
		return resp, nil
	}
	return s.serve(filter, false), nil
}

func (s *contentService) serve(filter models.Filter, fromCache bool) *models.APIResponse {
	now := s.clock.Now()
	key := query.Key(filter)

	data, total, ok := s.memo.get(key)
	if !ok {
		// Captured before reading the store; a publish in between voids the set
		gen := s.memo.generation()
		unpaged := filter
		unpaged.Offset, unpaged.Limit = 0, 0
		matched := query.Apply(s.store.Posts(now), unpaged, now)
		total = len(matched)
		data = query.Page(matched, filter.Offset, filter.Limit)
		s.memo.set(key, gen, data, total)
	}

	return &models.APIResponse{
		Success:   true,
		Data:      data,
		Total:     total,
		FromCache: fromCache,
		Stale:     s.store.IsStale(),
	}
}

// fullRefresh fetches every page from the origin and replaces the cache.
// Concurrent callers share one in-flight fetch and its result.
func (s *contentService) fullRefresh(ctx context.Context) ([]models.Post, error) {
	v, err, shared := s.flight.Do(fullRefreshKey, func() (interface{}, error) {
		// The fetch outlives the first caller's cancellation since others may share it
		return s.doFullRefresh(context.WithoutCancel(ctx))
	})
	if shared {
		s.log.Debug().Msg("Joined in-flight full refresh")
	}
	if err != nil {
		return nil, err
	}
	return v.([]models.Post), nil
}

func (s *contentService) doFullRefresh(ctx context.Context) ([]models.Post, error) {
	if err := s.guard.enter(ctx, stateRefreshing); err != nil {
		return nil, err
	}
	defer s.guard.leave()

	raws, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	posts := s.transformer.TransformAll(raws, now)
	kept, expired := query.SplitExpired(posts, now)
	snapshot := s.store.Replace(ctx, kept, expired, now)

	s.log.Info().
		Int("fetched", len(raws)).
		Int("transformed", len(posts)).
		Int("expired", len(expired)).
		Int("cached", len(snapshot)).
		Msg("Full refresh completed")

	s.publish(snapshot)
	return snapshot, nil
}

func (s *contentService) fetchAll(ctx context.Context) ([]models.RawPost, error) {
	var all []models.RawPost
	for page := 1; page <= s.maxPages; page++ {
		records, err := s.origin.List(ctx, models.ListParams{
			PerPage: s.pageSize,
			Page:    page,
			OrderBy: "date",
			Order:   "desc",
		})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, records...)
		if len(records) < s.pageSize {
			break
		}
	}
	return all, nil
}

// publish invalidates memoized reads and notifies subscribers
func (s *contentService) publish(posts []models.Post) {
	s.memo.purge()
	s.subscribers.publish(posts)
}

// ClearCache drops the cache and its persisted copies
func (s *contentService) ClearCache(ctx context.Context) {
	s.store.Clear(ctx)
	s.log.Info().Msg("Content cache cleared")
	s.publish([]models.Post{})
}

// InvalidatePost removes one post that another subsystem knows is gone
func (s *contentService) InvalidatePost(ctx context.Context, id int) bool {
	snapshot, ok := s.store.Remove(ctx, id)
	if !ok {
		return false
	}
	s.log.Info().Int("post_id", id).Msg("Post invalidated")
	s.publish(snapshot)
	return true
}

// UpdatePostFlags sets bookmark, like or featured locally
func (s *contentService) UpdatePostFlags(ctx context.Context, id int, overrides models.FlagOverrides) bool {
	if overrides.IsEmpty() {
		return false
	}
	snapshot, ok := s.store.UpdateFlags(ctx, id, overrides)
	if !ok {
		return false
	}
	s.publish(snapshot)
	return true
}

// SubscribeToUpdates registers listener for post snapshots after every mutation
func (s *contentService) SubscribeToUpdates(listener Listener) func() {
	return s.subscribers.subscribe(listener)
}

// GetCacheInfo reports cache health and in-flight work
func (s *contentService) GetCacheInfo() models.CacheInfo {
	info := s.store.Info(s.clock.Now())
	state := s.guard.current()
	info.IsRefreshing = state == stateRefreshing
	info.IsValidating = state == stateValidating
	return info
}

func (s *contentService) GetByEventType(ctx context.Context, eventType string) (*models.APIResponse, error) {
	return s.GetContent(ctx, models.Filter{EventTypes: []string{eventType}}, false)
}

func (s *contentService) GetUpcoming(ctx context.Context) (*models.APIResponse, error) {
	return s.GetContent(ctx, models.Filter{
		Upcoming: models.Bool(true),
		SortBy:   models.SortByEventDate,
		Order:    models.SortAsc,
	}, false)
}

func (s *contentService) GetFeatured(ctx context.Context) (*models.APIResponse, error) {
	return s.GetContent(ctx, models.Filter{Featured: models.Bool(true)}, false)
}

func (s *contentService) Search(ctx context.Context, q string) (*models.APIResponse, error) {
	return s.GetContent(ctx, models.Filter{Search: q}, false)
}

func (s *contentService) GetByCategory(ctx context.Context, category string) (*models.APIResponse, error) {
	return s.GetContent(ctx, models.Filter{Categories: []string{category}}, false)
}

// Health checks the cache's backing store
func (s *contentService) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Done is closed once Close has been called
func (s *contentService) Done() <-chan struct{} {
	return s.closed
}

// Close detaches all subscribers and releases long-lived readers
func (s *contentService) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.subscribers.closeAll()
	})
}
