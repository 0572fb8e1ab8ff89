// Package query filters, sorts and pages cached posts. Everything here is a
// pure function of its inputs; "now" is always passed in.
package query

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/content-sync-engine/internal/eventtime"
	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/transform"
)

// Apply returns the posts matching f, sorted and paged. The input is not
// modified; event flags of the result are evaluated at now.
func Apply(posts []models.Post, f models.Filter, now time.Time) []models.Post {
	f = Normalize(f)
	m := newMatcher(f)

	matched := make([]models.Post, 0, len(posts))
	for _, p := range transform.Rematerialize(posts, now) {
		if m.match(&p) {
			matched = append(matched, p)
		}
	}

	sortPosts(matched, f.SortBy, f.Order, now)
	return Page(matched, f.Offset, f.Limit)
}

// DropExpired removes posts whose event window has fully elapsed at now
func DropExpired(posts []models.Post, now time.Time) []models.Post {
	kept, _ := SplitExpired(posts, now)
	return kept
}

// SplitExpired partitions posts into live ones and finished events
func SplitExpired(posts []models.Post, now time.Time) (kept, expired []models.Post) {
	kept = make([]models.Post, 0, len(posts))
	for _, p := range transform.Rematerialize(posts, now) {
		if p.EventData != nil && p.EventData.HasEnded {
			expired = append(expired, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, expired
}

// Expired reports whether p's event window has fully elapsed at now
func Expired(p models.Post, now time.Time) bool {
	if p.EventData == nil {
		return false
	}
	p = p.Clone()
	transform.ApplyEventStatus(&p, now)
	return p.EventData.HasEnded
}

// Normalize lowercases and sorts set-valued predicates and fills in the
// default ordering, so equivalent filters compare equal.
func Normalize(f models.Filter) models.Filter {
	f.EventTypes = normalizeSet(f.EventTypes)
	f.Categories = normalizeSet(f.Categories)
	f.Tags = normalizeSet(f.Tags)
	f.Search = strings.ToLower(strings.TrimSpace(f.Search))

	if len(f.PostTypes) > 0 {
		types := append([]models.PostType(nil), f.PostTypes...)
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		f.PostTypes = dedupe(types)
	}

	if !models.ValidSortKeys[f.SortBy] {
		f.SortBy = models.SortByDate
	}
	if f.Order != models.SortAsc {
		f.Order = models.SortDesc
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit < 0 {
		f.Limit = 0
	}
	return f
}

// Key identifies a filter for memoization
func Key(f models.Filter) string {
	data, _ := json.Marshal(Normalize(f))
	return string(data)
}

type matcher struct {
	f          models.Filter
	postTypes  map[models.PostType]bool
	eventTypes map[string]bool
}

func newMatcher(f models.Filter) *matcher {
	m := &matcher{f: f}
	if len(f.PostTypes) > 0 {
		m.postTypes = make(map[models.PostType]bool, len(f.PostTypes))
		for _, t := range f.PostTypes {
			m.postTypes[t] = true
		}
	}
	if len(f.EventTypes) > 0 {
		m.eventTypes = make(map[string]bool, len(f.EventTypes))
		for _, t := range f.EventTypes {
			m.eventTypes[t] = true
		}
	}
	return m
}

func (m *matcher) match(p *models.Post) bool {
	if m.postTypes != nil && !m.postTypes[p.PostType] {
		return false
	}
	if m.eventTypes != nil && !m.eventTypes[strings.ToLower(strings.TrimSpace(p.EventType))] {
		return false
	}
	if len(m.f.Categories) > 0 && !anySubstring(p.Categories, m.f.Categories) {
		return false
	}
	if len(m.f.Tags) > 0 && !anySubstring(p.Tags, m.f.Tags) {
		return false
	}
	if m.f.Search != "" && !matchesSearch(p, m.f.Search) {
		return false
	}

	var upcoming, ended bool
	if p.EventData != nil {
		upcoming, ended = p.EventData.IsUpcoming, p.EventData.HasEnded
	}
	if m.f.Upcoming != nil && upcoming != *m.f.Upcoming {
		return false
	}
	if m.f.Ended != nil && ended != *m.f.Ended {
		return false
	}
	if m.f.Featured != nil && p.IsFeatured != *m.f.Featured {
		return false
	}
	return true
}

// anySubstring reports whether any value contains any of the needles
func anySubstring(values, needles []string) bool {
	for _, v := range values {
		lv := strings.ToLower(v)
		for _, n := range needles {
			if strings.Contains(lv, n) {
				return true
			}
		}
	}
	return false
}

func matchesSearch(p *models.Post, needle string) bool {
	fields := []string{p.Title, p.Excerpt, p.Content, p.Author}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return anySubstring(p.Categories, []string{needle}) || anySubstring(p.Tags, []string{needle})
}

func sortPosts(posts []models.Post, key models.SortKey, order models.SortOrder, now time.Time) {
	desc := order == models.SortDesc

	if key == models.SortByEventDate {
		starts := make(map[int]time.Time, len(posts))
		for _, p := range posts {
			if p.EventData == nil {
				continue
			}
			if t, ok := eventtime.Start(p.EventData.StartDate, now); ok {
				starts[p.ID] = t
			}
		}
		sort.SliceStable(posts, func(i, j int) bool {
			a, aok := starts[posts[i].ID]
			b, bok := starts[posts[j].ID]
			switch {
			case !aok || !bok:
				// Undated events go last in either direction
				return aok && !bok
			case desc:
				return a.After(b)
			default:
				return a.Before(b)
			}
		})
		return
	}

	less := lessFunc(key)
	sort.SliceStable(posts, func(i, j int) bool {
		if desc {
			return less(&posts[j], &posts[i])
		}
		return less(&posts[i], &posts[j])
	})
}

func lessFunc(key models.SortKey) func(a, b *models.Post) bool {
	switch key {
	case models.SortByTitle:
		return func(a, b *models.Post) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case models.SortByViews:
		return func(a, b *models.Post) bool { return a.Stats.Views < b.Stats.Views }
	case models.SortByRating:
		return func(a, b *models.Post) bool { return a.Stats.Rating < b.Stats.Rating }
	default:
		return func(a, b *models.Post) bool { return a.Date.Before(b.Date) }
	}
}

// Page applies offset and limit; a zero limit means no limit
func Page(posts []models.Post, offset, limit int) []models.Post {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(posts) {
		return []models.Post{}
	}
	posts = posts[offset:]
	if limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	return posts
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return dedupe(out)
}

func dedupe[T comparable](sorted []T) []T {
	if len(sorted) == 0 {
		return nil
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
