package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/content-sync-engine/internal/cache"
	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/mocks"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/service"
	"github.com/content-sync-engine/internal/transform"
	"github.com/rs/zerolog"
)

var base = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

type testHarness struct {
	services *service.Services
	store    *cache.Store
	origin   *mocks.MockOrigin
	blobs    *mocks.MemoryBlobStore
	clock    *mocks.FakeClock
}

func newTestHarness(t *testing.T, configure func(cfg *config.Config), records ...models.RawPost) *testHarness {
	t.Helper()

	cfg := config.Defaults()
	cfg.Origin.BaseURL = "https://temple.example.org"
	cfg.Origin.FallbackImageBaseURL = "https://cdn.example.org/fallback"
	if configure != nil {
		configure(cfg)
	}

	log := zerolog.Nop()
	origin := mocks.NewMockOrigin(records...)
	blobs := mocks.NewMemoryBlobStore()
	clk := mocks.NewFakeClock(base)
	store := cache.NewStore(blobs, clk, cfg.Sync, log)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tr, err := transform.New(transform.Options{
		BaseURL:              cfg.Origin.BaseURL,
		FallbackImageBaseURL: cfg.Origin.FallbackImageBaseURL,
	}, log)
	if err != nil {
		t.Fatalf("transform.New failed: %v", err)
	}

	services, err := service.NewServices(service.Dependencies{
		Store:       store,
		Origin:      origin,
		Transformer: tr,
		Clock:       clk,
	}, cfg, log)
	if err != nil {
		t.Fatalf("NewServices failed: %v", err)
	}
	t.Cleanup(func() {
		services.Validation.Stop()
		services.Content.Close()
	})

	return &testHarness{
		services: services,
		store:    store,
		origin:   origin,
		blobs:    blobs,
		clock:    clk,
	}
}

// record builds an origin record created daysAgo days before base
func record(id int, title string, daysAgo int) models.RawPost {
	d := base.AddDate(0, 0, -daysAgo)
	return mocks.RawRecord(id, title, d, d)
}

// warm fills the cache through a cold-start read
func (h *testHarness) warm(t *testing.T) *models.APIResponse {
	t.Helper()
	resp, err := h.services.Content.GetContent(context.Background(), models.Filter{}, false)
	if err != nil {
		t.Fatalf("GetContent failed: %v", err)
	}
	h.origin.ResetCalls()
	return resp
}

func ids(posts []models.Post) []int {
	out := make([]int, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func equalIDs(a []int, b ...int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or a second passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
