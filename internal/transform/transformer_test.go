package transform_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/transform"
	"github.com/rs/zerolog"
)

var now = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

func newTransformer(t *testing.T) *transform.Transformer {
	t.Helper()
	tr, err := transform.New(transform.Options{
		BaseURL:              "https://temple.example.org",
		FallbackImageBaseURL: "https://cdn.example.org/fallback/",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tr
}

func rawPost(id int, acf string) models.RawPost {
	raw := models.RawPost{
		ID:       id,
		Date:     "2026-10-01T08:00:00",
		Modified: "2026-10-02T09:30:00",
		Slug:     "govardhan-puja",
		Title:    models.Rendered{Rendered: "Govardhan &amp; Annakut <em>Puja</em>"},
		Excerpt:  models.Rendered{Rendered: "<p>Join us&nbsp;for the festival.</p>"},
		Content:  models.Rendered{Rendered: "<p>First paragraph.</p><p>Second&#8217;s paragraph.</p><script>alert(1)</script>"},
	}
	if acf != "" {
		raw.ACF = json.RawMessage(acf)
	}
	return raw
}

func TestTransform_BasicFields(t *testing.T) {
	tr := newTransformer(t)
	raw := rawPost(42, `{"event_type":"Festival","start_date":"2026-10-25","location":"Temple <b>Hall</b>"}`)
	raw.Embedded = &models.RawEmbedded{
		Author: []models.RawAuthor{{ID: 1, Name: "Madhava Das"}},
		Terms: [][]models.RawTerm{
			{{ID: 3, Name: "Festivals", Taxonomy: "category"}},
			{{ID: 9, Name: "Kartik", Taxonomy: "post_tag"}},
		},
	}

	post, err := tr.Transform(&raw, now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if post.Title != "Govardhan & Annakut Puja" {
		t.Errorf("unexpected title %q", post.Title)
	}
	if post.Excerpt != "Join us for the festival." {
		t.Errorf("unexpected excerpt %q", post.Excerpt)
	}
	if post.Content != "First paragraph. Second’s paragraph." {
		t.Errorf("unexpected content %q", post.Content)
	}
	if post.PostType != models.PostTypeFestivals {
		t.Errorf("Expected festivals, got %s", post.PostType)
	}
	if post.EventType != "Festival" {
		t.Errorf("Expected raw event type to be kept, got %q", post.EventType)
	}
	if post.Author != "Madhava Das" {
		t.Errorf("unexpected author %q", post.Author)
	}
	if len(post.Categories) != 1 || post.Categories[0] != "Festivals" {
		t.Errorf("unexpected categories %v", post.Categories)
	}
	if len(post.Tags) != 1 || post.Tags[0] != "Kartik" {
		t.Errorf("unexpected tags %v", post.Tags)
	}
	if post.EventData == nil {
		t.Fatal("EventData should be set")
	}
	if post.EventData.Location != "Temple Hall" {
		t.Errorf("unexpected location %q", post.EventData.Location)
	}
	if !post.EventData.IsUpcoming || post.EventData.HasEnded {
		t.Errorf("festival on 2026-10-25 should be upcoming, got %+v", post.EventData)
	}
	if post.ReadTime != 1 {
		t.Errorf("Expected read time 1, got %d", post.ReadTime)
	}
	if !post.Date.Equal(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v", post.Date)
	}
	if !post.Modified.Equal(time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected modified %v", post.Modified)
	}
	if post.Slug != "govardhan-puja" {
		t.Errorf("unexpected slug %q", post.Slug)
	}
}

func TestTransform_TimestampSources(t *testing.T) {
	tr := newTransformer(t)
	raw := rawPost(1, "")
	raw.DateGMT = "2026-10-01T02:30:00"
	raw.Modified = "2026-10-02T09:30:00"
	raw.ModifiedGMT = "2026-10-02T04:00:00"

	post, err := tr.Transform(&raw, now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if post.Date.Hour() != 2 {
		t.Errorf("Expected date from date_gmt, got %v", post.Date)
	}
	// modified must match what the validation digest reports
	if post.Modified.Hour() != 9 {
		t.Errorf("Expected modified from the modified field, got %v", post.Modified)
	}

	raw.Modified = ""
	if post, _ = tr.Transform(&raw, now); post.Modified.Hour() != 4 {
		t.Errorf("Expected modified_gmt fallback, got %v", post.Modified)
	}
}

func TestTransform_InvalidRecord(t *testing.T) {
	tr := newTransformer(t)
	raw := rawPost(0, "")

	if _, err := tr.Transform(&raw, now); err == nil {
		t.Error("Expected error for record without id")
	}
}

func TestTransformAll_SkipsFailures(t *testing.T) {
	tr := newTransformer(t)
	bad := rawPost(2, "")
	bad.Date = "not a date"

	posts := tr.TransformAll([]models.RawPost{rawPost(1, ""), bad, rawPost(3, ""), rawPost(3, "")}, now)
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts (bad date and duplicate skipped), got %d", len(posts))
	}
	if posts[0].ID != 1 || posts[1].ID != 3 {
		t.Errorf("unexpected ids %d, %d", posts[0].ID, posts[1].ID)
	}
}

func TestTransform_SlugRegeneratedWhenInvalid(t *testing.T) {
	tr := newTransformer(t)
	raw := rawPost(5, "")
	raw.Slug = "%e0%a4%a6%e0%a4%b0"

	post, err := tr.Transform(&raw, now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if post.Slug != "govardhan-annakut-puja" {
		t.Errorf("unexpected slug %q", post.Slug)
	}
}

func TestTransform_TitleFallsBackToContent(t *testing.T) {
	tr := newTransformer(t)
	raw := rawPost(6, "")
	raw.Title = models.Rendered{}

	post, err := tr.Transform(&raw, now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if !strings.HasPrefix(post.Title, "First paragraph.") {
		t.Errorf("unexpected title %q", post.Title)
	}
}

func TestTransform_StatsAndFlags(t *testing.T) {
	tr := newTransformer(t)

	synth, err := tr.Transform(ptr(rawPost(10, "")), now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	again, _ := tr.Transform(ptr(rawPost(10, "")), now)
	if synth.Stats != again.Stats {
		t.Errorf("synthesized stats must be stable, got %+v and %+v", synth.Stats, again.Stats)
	}
	if synth.Stats.Rating < 3.5 || synth.Stats.Rating > 5 {
		t.Errorf("rating out of range: %v", synth.Stats.Rating)
	}
	if synth.IsFeatured {
		t.Error("post should not be featured without origin flag")
	}

	fromCMS, err := tr.Transform(ptr(rawPost(11, `{"views":1234,"likes":56,"comments":7,"is_featured":true}`)), now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if fromCMS.Stats.Views != 1234 || fromCMS.Stats.Likes != 56 || fromCMS.Stats.Comments != 7 {
		t.Errorf("CMS counters should win, got %+v", fromCMS.Stats)
	}
	if !fromCMS.IsFeatured {
		t.Error("is_featured from the CMS should be applied")
	}
}

func TestTransform_EmptyACFGroup(t *testing.T) {
	tr := newTransformer(t)
	raw := rawPost(12, `false`)
	raw.Meta = json.RawMessage(`[]`)

	post, err := tr.Transform(&raw, now)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if post.PostType != models.PostTypePosts {
		t.Errorf("Expected default post type, got %s", post.PostType)
	}
	if post.EventData != nil {
		t.Error("EventData should be nil without event fields")
	}
}

func TestFlagOverrides(t *testing.T) {
	if got := transform.FlagOverrides(ptr(rawPost(1, ""))); !got.IsEmpty() {
		t.Errorf("Expected no overrides, got %+v", got)
	}
	got := transform.FlagOverrides(ptr(rawPost(1, `{"is_featured":false}`)))
	if got.Featured == nil || *got.Featured {
		t.Errorf("Expected explicit featured=false, got %+v", got)
	}
	if got.Bookmarked != nil || got.Liked != nil {
		t.Error("origin never provides bookmark or like flags")
	}
}

func TestApplyEventStatus_UsesGivenInstant(t *testing.T) {
	post := models.Post{EventData: &models.EventData{StartDate: "2026-10-20T10:00:00", EndDate: "2026-10-20T12:00:00"}}

	transform.ApplyEventStatus(&post, now)
	if !post.EventData.IsUpcoming || post.EventData.HasEnded {
		t.Errorf("unexpected status before event: %+v", post.EventData)
	}

	transform.ApplyEventStatus(&post, now.Add(72*time.Hour))
	if post.EventData.IsUpcoming || !post.EventData.HasEnded {
		t.Errorf("unexpected status after event: %+v", post.EventData)
	}
}

func TestRematerialize_DoesNotMutateInput(t *testing.T) {
	posts := []models.Post{{ID: 1, EventData: &models.EventData{StartDate: "2026-10-10", IsUpcoming: true}}}

	out := transform.Rematerialize(posts, now)
	if !posts[0].EventData.IsUpcoming {
		t.Error("input should not be modified")
	}
	if out[0].EventData.IsUpcoming || !out[0].EventData.HasEnded {
		t.Errorf("copy should be re-evaluated, got %+v", out[0].EventData)
	}
}

func ptr(raw models.RawPost) *models.RawPost {
	return &raw
}
