package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/mocks"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/remote"
)

func TestValidation_DriftPatchFetchesOnlyChangedPost(t *testing.T) {
	h := newTestHarness(t, nil, record(41, "Forty one", 3), record(42, "Forty two", 2), record(43, "Forty three", 1))
	h.warm(t)
	ctx := context.Background()

	before := map[int]string{}
	for _, p := range h.store.Snapshot().Posts {
		data, _ := json.Marshal(p)
		before[p.ID] = string(data)
	}

	h.clock.Advance(16 * time.Minute)
	changed := mocks.RawRecord(42, "Forty two revised", base.AddDate(0, 0, -2), base.Add(10*time.Minute))
	h.origin.Upsert(changed)

	if !h.services.Validation.RunOnce(ctx) {
		t.Fatal("Expected a validation pass to run")
	}

	if fetched := h.origin.FetchedIDs(); len(fetched) != 1 || fetched[0] != 42 {
		t.Errorf("Expected exactly one detail fetch for 42, got %v", fetched)
	}
	if list, _, _ := h.origin.Calls(); list != 0 {
		t.Errorf("Expected no full fetch, got %d list calls", list)
	}

	snap := h.store.Snapshot()
	for _, p := range snap.Posts {
		data, _ := json.Marshal(p)
		switch p.ID {
		case 42:
			if p.Title != "Forty two revised" {
				t.Errorf("Expected post 42 to be updated, got %q", p.Title)
			}
		default:
			if string(data) != before[p.ID] {
				t.Errorf("post %d changed during patch", p.ID)
			}
		}
	}

	now := h.clock.Now()
	if !snap.Timestamp.Equal(now) || !snap.LastValidationCheck.Equal(now) {
		t.Errorf("Expected timestamp and lastValidationCheck at %v, got %v and %v", now, snap.Timestamp, snap.LastValidationCheck)
	}
	if !snap.PostModificationMap[42].Equal(base.Add(10 * time.Minute)) {
		t.Errorf("Expected modification map entry to follow the patch, got %v", snap.PostModificationMap[42])
	}
}

func TestValidation_NewPostIsPrepended(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 2))
	h.warm(t)

	h.clock.Advance(16 * time.Minute)
	h.origin.Upsert(mocks.RawRecord(2, "Brand new", base.Add(5*time.Minute), base.Add(5*time.Minute)))

	notified := make(chan []models.Post, 1)
	defer h.services.Content.SubscribeToUpdates(func(posts []models.Post) { notified <- posts })()

	h.services.Validation.RunOnce(context.Background())

	select {
	case posts := <-notified:
		if !equalIDs(ids(posts), 2, 1) {
			t.Errorf("Expected [2 1], got %v", ids(posts))
		}
	case <-time.After(time.Second):
		t.Fatal("Expected subscribers to be notified of the patch")
	}
}

func TestValidation_NoDriftOnlyStampsCheck(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	h.services.Validation.RunOnce(context.Background())

	_, get, validate := h.origin.Calls()
	if validate != 1 || get != 0 {
		t.Errorf("Expected 1 digest call and no detail fetch, got validate=%d get=%d", validate, get)
	}
	snap := h.store.Snapshot()
	if !snap.LastValidationCheck.Equal(h.clock.Now()) {
		t.Error("Expected lastValidationCheck to advance")
	}
	if !snap.Timestamp.Equal(base) {
		t.Error("Expected timestamp to stay at the last full refresh")
	}
}

func TestValidation_Gate(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 1))

	if h.services.Validation.RunOnce(context.Background()) {
		t.Error("Expected no pass without a cache")
	}

	h.warm(t)
	h.clock.Advance(10 * time.Minute)
	if h.services.Validation.RunOnce(context.Background()) {
		t.Error("Expected no pass before the validation interval elapsed")
	}
	if _, _, validate := h.origin.Calls(); validate != 0 {
		t.Errorf("Expected no digest calls, got %d", validate)
	}
}

func TestValidation_SkipsWhileRefreshing(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)
	h.origin.ListDelay = 200 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.services.Content.RefreshContent(context.Background(), models.Filter{})
	}()
	waitFor(t, "refresh to start", func() bool {
		return h.services.Content.GetCacheInfo().IsRefreshing
	})

	if h.services.Validation.RunOnce(context.Background()) {
		t.Error("Expected validation to yield to an in-flight refresh")
	}
	<-done
}

func TestValidation_LargeDriftEscalatesToFullRefresh(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) { cfg.Sync.PatchThreshold = 2 },
		record(1, "One", 5))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	for id := 2; id <= 4; id++ {
		h.origin.Upsert(record(id, "New", 1))
	}

	h.services.Validation.RunOnce(context.Background())

	list, get, _ := h.origin.Calls()
	if get != 0 {
		t.Errorf("Expected no detail fetches, got %d", get)
	}
	if list != 1 {
		t.Errorf("Expected one full fetch, got %d list calls", list)
	}
	snap := h.store.Snapshot()
	if len(snap.Posts) != 4 || !snap.LastValidationCheck.Equal(h.clock.Now()) {
		t.Errorf("Expected refreshed cache with 4 posts stamped now, got %d posts at %v", len(snap.Posts), snap.LastValidationCheck)
	}
}

func TestValidation_FailedEscalationStillAdvancesCheck(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) { cfg.Sync.PatchThreshold = 1 },
		record(1, "One", 5))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	h.origin.Upsert(record(2, "Two", 1))
	h.origin.Upsert(record(3, "Three", 1))
	h.origin.SetListErr(errors.New("origin unreachable"))

	if !h.services.Validation.RunOnce(context.Background()) {
		t.Fatal("Expected a validation pass to run")
	}

	snap := h.store.Snapshot()
	if len(snap.Posts) != 1 {
		t.Errorf("Expected cache untouched after failed refresh, got %d posts", len(snap.Posts))
	}
	if !snap.LastValidationCheck.Equal(h.clock.Now()) {
		t.Errorf("Expected lastValidationCheck to advance, got %v", snap.LastValidationCheck)
	}
}

func TestValidation_DigestFailureStillAdvancesCheck(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)
	h.origin.ValidateErr = errors.New("origin unreachable")

	h.services.Validation.RunOnce(context.Background())

	if last := h.store.Snapshot().LastValidationCheck; !last.Equal(h.clock.Now()) {
		t.Errorf("Expected lastValidationCheck to advance after a failed digest, got %v", last)
	}
}

func TestValidation_CancelledBeforeRequestDoesNotAdvance(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.services.Validation.RunOnce(ctx)

	if last := h.store.Snapshot().LastValidationCheck; !last.Equal(base) {
		t.Errorf("Expected lastValidationCheck to stay at %v, got %v", base, last)
	}
	if _, _, validate := h.origin.Calls(); validate != 0 {
		t.Errorf("Expected no digest request, got %d", validate)
	}
}

func TestValidation_FailedDetailFetchSkipsThatPost(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 2), record(2, "Two", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	later := base.Add(5 * time.Minute)
	h.origin.Upsert(mocks.RawRecord(1, "One revised", base.AddDate(0, 0, -2), later))
	h.origin.Upsert(mocks.RawRecord(2, "Two revised", base.AddDate(0, 0, -1), later))
	h.origin.GetFunc = func(ctx context.Context, id int) (*models.RawPost, error) {
		if id == 2 {
			return nil, errors.New("timeout")
		}
		rec := mocks.RawRecord(1, "One revised", base.AddDate(0, 0, -2), later)
		return &rec, nil
	}

	h.services.Validation.RunOnce(context.Background())

	for _, p := range h.store.Snapshot().Posts {
		switch p.ID {
		case 1:
			if p.Title != "One revised" {
				t.Errorf("Expected post 1 patched, got %q", p.Title)
			}
		case 2:
			if p.Title != "Two" {
				t.Errorf("Expected post 2 untouched, got %q", p.Title)
			}
		}
	}
}

func TestValidation_PatchPreservesLocalFlags(t *testing.T) {
	h := newTestHarness(t, nil, record(42, "Forty two", 1))
	h.warm(t)
	h.services.Content.UpdatePostFlags(context.Background(), 42, models.FlagOverrides{Bookmarked: models.Bool(true)})

	h.clock.Advance(16 * time.Minute)
	h.origin.Upsert(mocks.RawRecord(42, "Forty two revised", base.AddDate(0, 0, -1), base.Add(time.Minute)))
	h.services.Validation.RunOnce(context.Background())

	p := h.store.Snapshot().Posts[0]
	if p.Title != "Forty two revised" || !p.IsBookmarked {
		t.Errorf("Expected patched post to keep its bookmark, got %+v", p)
	}
}

func TestValidation_StartStop(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) { cfg.Sync.TickInterval = 10 * time.Millisecond },
		record(1, "One", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.services.Validation.Start(context.Background())
	}()

	waitFor(t, "a scheduled validation pass", func() bool {
		_, _, validate := h.origin.Calls()
		return validate >= 1
	})

	h.services.Validation.Stop()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// Stopped services ignore kicks
	h.clock.Advance(16 * time.Minute)
	h.services.Validation.Kick()
	time.Sleep(20 * time.Millisecond)
	if _, _, validate := h.origin.Calls(); validate != 1 {
		t.Errorf("Expected exactly 1 pass, got %d", validate)
	}
}

func TestValidation_StartHonoursContext(t *testing.T) {
	h := newTestHarness(t, func(cfg *config.Config) { cfg.Sync.TickInterval = 10 * time.Millisecond })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.services.Validation.Start(ctx)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestValidation_SiteLocalModifiedIsNotDrift(t *testing.T) {
	// Origin site runs at UTC+05:30: modified is local time, modified_gmt is UTC
	const layout = "2006-01-02T15:04:05"
	const offset = 5*time.Hour + 30*time.Minute
	d := base.AddDate(0, 0, -1)
	r := mocks.RawRecord(42, "Forty two", d, d)
	r.Modified = d.Add(offset).Format(layout)

	h := newTestHarness(t, nil, r)
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	h.services.Validation.RunOnce(context.Background())
	if _, get, validate := h.origin.Calls(); validate != 1 || get != 0 {
		t.Fatalf("Expected an unchanged post to need no fetch, got validate=%d get=%d", validate, get)
	}

	// A real edit one minute later is still detected
	edited := r
	edited.Title = models.Rendered{Rendered: "Forty two revised"}
	edited.Modified = d.Add(offset + time.Minute).Format(layout)
	edited.ModifiedGMT = d.Add(time.Minute).Format(layout)
	h.origin.Upsert(edited)
	h.clock.Advance(16 * time.Minute)

	h.services.Validation.RunOnce(context.Background())
	if fetched := h.origin.FetchedIDs(); len(fetched) != 1 || fetched[0] != 42 {
		t.Errorf("Expected one detail fetch for 42, got %v", fetched)
	}
	if p := h.store.Snapshot().Posts[0]; p.Title != "Forty two revised" {
		t.Errorf("Expected post 42 to be patched, got %q", p.Title)
	}
}

func TestValidation_FinishedEventIsNotPatchedIn(t *testing.T) {
	h := newTestHarness(t, nil, record(3, "Three", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	h.origin.Upsert(mocks.EventRecord(1, "Last month's aarti", "aarti", "2026-10-01", "2026-10-02",
		base.AddDate(0, 0, -20), base.Add(5*time.Minute)))

	h.services.Validation.RunOnce(context.Background())

	resp, err := h.services.Content.GetContent(context.Background(), models.Filter{}, false)
	if err != nil {
		t.Fatalf("GetContent failed: %v", err)
	}
	if !equalIDs(ids(resp.Data), 3) {
		t.Errorf("Expected finished event to stay out of the cache, got %v", ids(resp.Data))
	}
	snap := h.store.Snapshot()
	if _, ok := snap.ExpiredModifications[1]; !ok {
		t.Errorf("Expected finished event to be remembered, got %v", snap.ExpiredModifications)
	}
	if !snap.Timestamp.Equal(base) {
		t.Errorf("Expected timestamp untouched when nothing was patched in, got %v", snap.Timestamp)
	}

	// The next pass does not fetch it again
	h.origin.ResetCalls()
	h.clock.Advance(16 * time.Minute)
	h.services.Validation.RunOnce(context.Background())
	if _, get, _ := h.origin.Calls(); get != 0 {
		t.Errorf("Expected no detail fetch for a remembered event, got %d", get)
	}
}

func TestValidation_ManyFinishedEventsDoNotForceRefreshes(t *testing.T) {
	records := []models.RawPost{record(100, "Live", 1)}
	for id := 1; id <= 21; id++ {
		records = append(records, mocks.EventRecord(id, "Past event", "festival", "2026-09-01", "2026-09-02",
			base.AddDate(0, 0, -40), base.AddDate(0, 0, -40)))
	}
	h := newTestHarness(t, nil, records...)
	h.warm(t)

	if got := len(h.store.Snapshot().ExpiredModifications); got != 21 {
		t.Fatalf("Expected 21 expired ids remembered by the full refresh, got %d", got)
	}

	for pass := 0; pass < 3; pass++ {
		h.clock.Advance(16 * time.Minute)
		if !h.services.Validation.RunOnce(context.Background()) {
			t.Fatalf("pass %d: expected a validation pass to run", pass)
		}
	}
	list, get, validate := h.origin.Calls()
	if list != 0 || get != 0 || validate != 3 {
		t.Errorf("Expected digest-only passes, got list=%d get=%d validate=%d", list, get, validate)
	}
}

func TestValidation_ClearDuringPatchIsNotUndone(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 2), record(2, "Two", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	changed := mocks.RawRecord(2, "Two revised", base.AddDate(0, 0, -1), base.Add(5*time.Minute))
	h.origin.Upsert(changed)
	h.origin.GetFunc = func(ctx context.Context, id int) (*models.RawPost, error) {
		h.services.Content.ClearCache(context.Background())
		rec := changed
		return &rec, nil
	}

	h.services.Validation.RunOnce(context.Background())

	if info := h.services.Content.GetCacheInfo(); info.Exists || info.IsValid {
		t.Fatalf("Expected the clear to win over the in-flight patch, got %+v", info)
	}

	h.origin.GetFunc = nil
	h.origin.ResetCalls()
	resp, err := h.services.Content.GetContent(context.Background(), models.Filter{}, false)
	if err != nil {
		t.Fatalf("GetContent failed: %v", err)
	}
	if list, _, _ := h.origin.Calls(); list != 1 {
		t.Errorf("Expected a full fetch after clear, got %d list calls", list)
	}
	if !equalIDs(ids(resp.Data), 2, 1) {
		t.Errorf("Expected [2 1], got %v", ids(resp.Data))
	}
}

func TestValidation_PostGoneAtOriginIsSkipped(t *testing.T) {
	h := newTestHarness(t, nil, record(1, "One", 1))
	h.warm(t)
	h.clock.Advance(16 * time.Minute)

	h.origin.Upsert(mocks.RawRecord(5, "Short lived", base, base.Add(time.Minute)))
	h.origin.GetFunc = func(ctx context.Context, id int) (*models.RawPost, error) {
		return nil, &remote.StatusError{StatusCode: 404, URL: "/content/5"}
	}

	if !h.services.Validation.RunOnce(context.Background()) {
		t.Fatal("Expected a validation pass to run")
	}
	snap := h.store.Snapshot()
	if !equalIDs(ids(snap.Posts), 1) {
		t.Errorf("Expected cache unchanged, got %v", ids(snap.Posts))
	}
	if !snap.LastValidationCheck.Equal(h.clock.Now()) || !snap.Timestamp.Equal(base) {
		t.Errorf("Expected only lastValidationCheck to advance, got %v and %v", snap.LastValidationCheck, snap.Timestamp)
	}
}

func TestValidation_EmptyCacheStillChecksOrigin(t *testing.T) {
	h := newTestHarness(t, nil)
	h.warm(t)
	if info := h.services.Content.GetCacheInfo(); !info.Exists || info.TotalPosts != 0 {
		t.Fatalf("Expected an existing empty cache, got %+v", info)
	}

	h.clock.Advance(16 * time.Minute)
	h.origin.Upsert(record(7, "First post", 0))

	if !h.services.Validation.RunOnce(context.Background()) {
		t.Fatal("Expected a validation pass on an empty cache")
	}
	if got := ids(h.store.Snapshot().Posts); !equalIDs(got, 7) {
		t.Errorf("Expected new origin post to be patched in, got %v", got)
	}
	if list, _, _ := h.origin.Calls(); list != 0 {
		t.Errorf("Expected a targeted patch, got %d list calls", list)
	}
}
