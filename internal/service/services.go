package service

import (
	"context"
	"errors"

	"github.com/content-sync-engine/internal/cache"
	"github.com/content-sync-engine/internal/clock"
	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/remote"
	"github.com/content-sync-engine/internal/transform"
	"github.com/rs/zerolog"
)

// ErrNoContent is returned when there is no cache to fall back on and the
// origin could not be reached
var ErrNoContent = errors.New("no cached content available")

// ContentService defines the interface exposed to other subsystems
type ContentService interface {
	GetContent(ctx context.Context, filter models.Filter, forceRefresh bool) (*models.APIResponse, error)
	RefreshContent(ctx context.Context, filter models.Filter) (*models.APIResponse, error)
	ClearCache(ctx context.Context)
	InvalidatePost(ctx context.Context, id int) bool
	UpdatePostFlags(ctx context.Context, id int, overrides models.FlagOverrides) bool
	SubscribeToUpdates(listener Listener) (unsubscribe func())
	GetCacheInfo() models.CacheInfo

	GetByEventType(ctx context.Context, eventType string) (*models.APIResponse, error)
	GetUpcoming(ctx context.Context) (*models.APIResponse, error)
	GetFeatured(ctx context.Context) (*models.APIResponse, error)
	Search(ctx context.Context, q string) (*models.APIResponse, error)
	GetByCategory(ctx context.Context, category string) (*models.APIResponse, error)

	Health(ctx context.Context) error
	// Done is closed when the service shuts down; streaming readers select on it
	Done() <-chan struct{}
	Close()
}

// ValidationService defines the interface for the background drift check
type ValidationService interface {
	Start(ctx context.Context)
	Stop()
	RunOnce(ctx context.Context) bool
	Kick()
}

// Dependencies are the collaborators shared by all services
type Dependencies struct {
	Store       *cache.Store
	Origin      remote.Client
	Transformer *transform.Transformer
	Clock       clock.Clock
}

// Services holds all service interfaces
type Services struct {
	Content    ContentService
	Validation ValidationService
}

// NewServices creates all services
func NewServices(deps Dependencies, cfg *config.Config, log zerolog.Logger) (*Services, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	guard := newSyncGuard()

	contentSvc, err := newContentService(deps, guard, cfg, log)
	if err != nil {
		return nil, err
	}
	validationSvc := newValidationService(deps, guard, cfg.Sync, contentSvc.fullRefresh, contentSvc.publish, log)

	// Stale reads kick the validator
	contentSvc.kick = validationSvc.Kick

	return &Services{
		Content:    contentSvc,
		Validation: validationSvc,
	}, nil
}
