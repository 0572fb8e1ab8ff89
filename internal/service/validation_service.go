package service

import (
	"context"
	"sync"
	"time"

	"github.com/content-sync-engine/internal/cache"
	"github.com/content-sync-engine/internal/clock"
	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/query"
	"github.com/content-sync-engine/internal/remote"
	"github.com/content-sync-engine/internal/transform"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// validationService is the concrete implementation of ValidationService.
// It compares the origin's modification digest with the cache and patches
// the few posts that drifted, or escalates to a full refresh.
type validationService struct {
	store       *cache.Store
	origin      remote.Client
	transformer *transform.Transformer
	clock       clock.Clock
	guard       *syncGuard
	cfg         config.SyncConfig
	refresh     func(ctx context.Context) ([]models.Post, error)
	publish     func(posts []models.Post)
	log         zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
}

func newValidationService(
	deps Dependencies,
	guard *syncGuard,
	cfg config.SyncConfig,
	refresh func(ctx context.Context) ([]models.Post, error),
	publish func(posts []models.Post),
	log zerolog.Logger,
) *validationService {
	if cfg.PatchConcurrency < 1 {
		cfg.PatchConcurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	log.Info().
		Dur("tick_interval", cfg.TickInterval).
		Dur("validation_interval", cfg.ValidationInterval).
		Int("patch_threshold", cfg.PatchThreshold).
		Msg("Initializing validation scheduler")

	return &validationService{
		store:       deps.Store,
		origin:      deps.Origin,
		transformer: deps.Transformer,
		clock:       deps.Clock,
		guard:       guard,
		cfg:         cfg,
		refresh:     refresh,
		publish:     publish,
		log:         log.With().Str("service", "validation").Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs the validation ticker until Stop is called or ctx is done
func (s *validationService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	s.log.Info().Msg("Validation scheduler started")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Validation scheduler stopping")
			return
		case <-ticker.C:
			s.runSafely()
		}
	}
}

// Stop cancels the ticker and waits for in-flight passes
func (s *validationService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("Validation scheduler stopped")
}

// Kick starts a gated pass in the background
func (s *validationService) Kick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runSafely()
	}()
}

func (s *validationService) runSafely() {
	// Panic recovery - a failed pass must not end the scheduler
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Msg("Validation pass panicked - recovered")
		}
	}()
	s.RunOnce(s.ctx)
}

// RunOnce runs a validation pass if the cache is due for one and no other
// writer is active. It reports whether a pass ran.
func (s *validationService) RunOnce(ctx context.Context) bool {
	last, ok := s.store.LastValidationCheck()
	if !ok {
		return false
	}
	if s.clock.Now().Sub(last) <= s.cfg.ValidationInterval {
		return false
	}
	if !s.guard.tryEnter(stateValidating) {
		s.log.Debug().Str("state", s.guard.current().String()).Msg("Skipping validation, writer active")
		return false
	}

	escalate := func() bool {
		defer s.guard.leave()
		return s.validate(ctx)
	}()

	if escalate {
		if _, err := s.refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Full refresh after drift failed")
			s.store.MarkValidated(context.WithoutCancel(ctx), s.clock.Now())
		}
	}
	return true
}

// validate runs under the validating guard. It returns true when the drift
// is too large to patch. A cache with no posts is still validated, so new
// origin posts reach it before the full TTL runs out.
func (s *validationService) validate(ctx context.Context) bool {
	known := s.store.KnownModifications()
	if known == nil || ctx.Err() != nil {
		return false
	}

	// Stamps survive a cancelled pass
	writeCtx := context.WithoutCancel(ctx)
	start := s.clock.Now()

	results, err := s.origin.Validate(ctx, known)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Debug().Err(err).Msg("Validation cancelled")
			return false
		}
		s.log.Warn().Err(err).Msg("Validation digest failed")
		s.store.MarkValidated(writeCtx, s.clock.Now())
		return false
	}

	var outdated []int
	for _, r := range results {
		if r.Outdated() {
			outdated = append(outdated, r.ID)
		}
	}

	switch {
	case len(outdated) == 0:
		s.store.MarkValidated(writeCtx, s.clock.Now())
		s.log.Debug().Int("checked", len(results)).Msg("Cache up to date")
		return false
	case len(outdated) > s.cfg.PatchThreshold:
		s.log.Info().
			Int("outdated", len(outdated)).
			Int("threshold", s.cfg.PatchThreshold).
			Msg("Drift too large for patching, escalating to full refresh")
		return true
	}

	entries := s.fetchPatch(ctx, outdated)
	now := s.clock.Now()
	if len(entries) == 0 {
		s.store.MarkValidated(writeCtx, now)
		return false
	}

	live, expired := splitExpired(entries, now)
	snapshot, changed := s.store.Patch(writeCtx, live, expired, now)
	s.log.Info().
		Int("outdated", len(outdated)).
		Int("patched", len(live)).
		Int("expired", len(expired)).
		Bool("changed", changed).
		Dur("duration", now.Sub(start)).
		Msg("Targeted patch applied")
	if changed {
		s.publish(snapshot)
	}
	return false
}

// splitExpired separates entries whose event has already finished
func splitExpired(entries []models.PatchEntry, now time.Time) (live []models.PatchEntry, expired []models.Post) {
	for _, e := range entries {
		if query.Expired(e.Post, now) {
			expired = append(expired, e.Post)
			continue
		}
		live = append(live, e)
	}
	return live, expired
}

// fetchPatch fetches and transforms the given ids with bounded concurrency.
// An id that fails to fetch or transform is skipped.
func (s *validationService) fetchPatch(ctx context.Context, ids []int) []models.PatchEntry {
	slots := make([]*models.PatchEntry, len(ids))

	var g errgroup.Group
	g.SetLimit(s.cfg.PatchConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			raw, err := s.origin.Get(ctx, id)
			if remote.IsNotFound(err) {
				s.log.Info().Int("post_id", id).Msg("Drifted post is gone at origin")
				return nil
			}
			if err != nil {
				s.log.Warn().Err(err).Int("post_id", id).Msg("Failed to fetch drifted post")
				return nil
			}
			post, err := s.transformer.Transform(raw, s.clock.Now())
			if err != nil {
				s.log.Warn().Err(err).Int("post_id", id).Msg("Failed to transform drifted post")
				return nil
			}
			slots[i] = &models.PatchEntry{Post: post, Flags: transform.FlagOverrides(raw)}
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]models.PatchEntry, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries
}
