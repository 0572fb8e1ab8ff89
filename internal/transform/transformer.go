// Package transform maps raw origin records onto the canonical Post entity.
// Everything here is pure apart from logging: the reference instant is always
// passed in explicitly.
package transform

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/content-sync-engine/internal/eventtime"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/validation"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const wordsPerMinute = 200

// Options configures URL resolution for a Transformer
type Options struct {
	// BaseURL resolves relative image URLs found in content
	BaseURL string
	// FallbackImageBaseURL hosts one <postType>.jpg per post type
	FallbackImageBaseURL string
}

// Transformer converts raw records into posts
type Transformer struct {
	base         *url.URL
	fallbackBase string
	policy       *bluemonday.Policy
	log          zerolog.Logger
}

// New creates a Transformer
func New(opts Options, log zerolog.Logger) (*Transformer, error) {
	var base *url.URL
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		base = u
	}

	return &Transformer{
		base:         base,
		fallbackBase: strings.TrimSuffix(opts.FallbackImageBaseURL, "/"),
		policy:       bluemonday.StrictPolicy(),
		log:          log.With().Str("component", "transformer").Logger(),
	}, nil
}

// Transform maps one raw record. An error means only this record is unusable.
func (t *Transformer) Transform(raw *models.RawPost, now time.Time) (models.Post, error) {
	return t.transform(validation.NewValidator(), raw, now)
}

// TransformAll maps a batch, skipping and logging records that fail
func (t *Transformer) TransformAll(raws []models.RawPost, now time.Time) []models.Post {
	validator := validation.NewValidator()
	posts := make([]models.Post, 0, len(raws))
	failed := 0

	for i := range raws {
		post, err := t.transform(validator, &raws[i], now)
		if err != nil {
			failed++
			t.log.Warn().Err(err).Int("post_id", raws[i].ID).Msg("Skipping unmappable record")
			continue
		}
		posts = append(posts, post)
	}

	if failed > 0 {
		t.log.Info().
			Int("total", len(raws)).
			Int("successful", len(posts)).
			Int("failed", failed).
			Msg("Batch transformed with failures")
	}
	return posts
}

func (t *Transformer) transform(validator *validation.Validator, raw *models.RawPost, now time.Time) (models.Post, error) {
	if errs := validator.ValidateRawPost(raw); len(errs) > 0 {
		return models.Post{}, fmt.Errorf("post %d: %w", raw.ID, validation.Errors(errs))
	}

	date, err := validation.ParseTimestamp(firstNonEmpty(raw.DateGMT, raw.Date))
	if err != nil {
		return models.Post{}, fmt.Errorf("post %d: %w", raw.ID, err)
	}
	// modified is read from the same field the validation digest carries so
	// the two always compare in the same zone
	modified := date
	if m := firstNonEmpty(raw.Modified, raw.ModifiedGMT); m != "" {
		if modified, err = validation.ParseTimestamp(m); err != nil {
			return models.Post{}, fmt.Errorf("post %d: %w", raw.ID, err)
		}
	}

	fields := raw.CustomFields()
	content := t.StripHTML(raw.Content.Rendered)
	title := t.StripHTML(raw.Title.Rendered)
	if title == "" {
		title = truncate(content, 60)
	}
	excerpt := t.StripHTML(raw.Excerpt.Rendered)
	if excerpt == "" {
		excerpt = truncate(content, 160)
	}

	postType := ClassifyEventType(fields.EventType)
	categories, tags := embeddedTerms(raw)

	post := models.Post{
		ID:         raw.ID,
		Title:      title,
		Excerpt:    excerpt,
		Content:    content,
		Slug:       t.slug(raw, title),
		Author:     embeddedAuthor(raw),
		ReadTime:   readTime(content),
		Date:       date,
		Modified:   modified,
		PostType:   postType,
		EventType:  strings.TrimSpace(fields.EventType),
		Categories: categories,
		Tags:       tags,
		Stats:      synthesizeStats(raw.ID, fields),
	}
	post.Image = t.ResolveImage(raw, postType)

	if fields.StartDate != "" || fields.EndDate != "" || fields.Location != "" {
		post.EventData = &models.EventData{
			StartDate: strings.TrimSpace(fields.StartDate),
			EndDate:   strings.TrimSpace(fields.EndDate),
			Location:  t.StripHTML(fields.Location),
		}
	}
	FlagOverrides(raw).ApplyTo(&post)
	ApplyEventStatus(&post, now)

	return post, nil
}

// FlagOverrides reports the flags the origin explicitly sets on raw
func FlagOverrides(raw *models.RawPost) models.FlagOverrides {
	fields := raw.CustomFields()
	return models.FlagOverrides{Featured: fields.IsFeatured}
}

// ApplyEventStatus recomputes the derived event flags of p against now
func ApplyEventStatus(p *models.Post, now time.Time) {
	if p.EventData == nil {
		return
	}
	p.EventData.IsUpcoming, p.EventData.HasEnded = eventtime.Status(p.EventData.StartDate, p.EventData.EndDate, now)
}

// Rematerialize returns copies of posts with event flags evaluated at now
func Rematerialize(posts []models.Post, now time.Time) []models.Post {
	out := models.ClonePosts(posts)
	for i := range out {
		ApplyEventStatus(&out[i], now)
	}
	return out
}

func (t *Transformer) slug(raw *models.RawPost, title string) string {
	if validation.ValidSlug(raw.Slug) {
		return raw.Slug
	}
	if s := validation.Slugify(title); s != "" {
		return s
	}
	return strconv.Itoa(raw.ID)
}

func embeddedAuthor(raw *models.RawPost) string {
	if raw.Embedded == nil || len(raw.Embedded.Author) == 0 {
		return ""
	}
	return strings.TrimSpace(raw.Embedded.Author[0].Name)
}

func embeddedTerms(raw *models.RawPost) (categories, tags []string) {
	categories = []string{}
	tags = []string{}
	if raw.Embedded == nil {
		return categories, tags
	}
	for _, group := range raw.Embedded.Terms {
		for _, term := range group {
			name := unescape(term.Name)
			if name == "" {
				continue
			}
			switch term.Taxonomy {
			case "category":
				categories = append(categories, name)
			case "post_tag":
				tags = append(tags, name)
			}
		}
	}
	return categories, tags
}

func readTime(content string) int {
	words := len(strings.Fields(content))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
