package models

import (
	"time"
)

// PostType is the closed classification of a content item
type PostType string

const (
	PostTypePosts     PostType = "posts"
	PostTypeEvents    PostType = "events"
	PostTypeFestivals PostType = "festivals"
	PostTypeNews      PostType = "news"
	PostTypeStaff     PostType = "staff"
	PostTypeDarshan   PostType = "darshan"
)

// ValidPostTypes defines the allowed post types
var ValidPostTypes = map[PostType]bool{
	PostTypePosts:     true,
	PostTypeEvents:    true,
	PostTypeFestivals: true,
	PostTypeNews:      true,
	PostTypeStaff:     true,
	PostTypeDarshan:   true,
}

// Post is the canonical local representation of one content item
type Post struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Content  string `json:"content"`
	Image    string `json:"image"`
	Slug     string `json:"slug"`
	Author   string `json:"author,omitempty"`
	ReadTime int    `json:"readTime"`

	Date     time.Time `json:"date"`
	Modified time.Time `json:"modified"`

	PostType   PostType   `json:"postType"`
	EventType  string     `json:"eventType,omitempty"`
	Categories []string   `json:"categories"`
	Tags       []string   `json:"tags"`
	EventData  *EventData `json:"eventData,omitempty"`

	Stats Stats `json:"stats"`

	IsFeatured   bool `json:"isFeatured"`
	IsBookmarked bool `json:"isBookmarked"`
	IsLiked      bool `json:"isLiked"`
}

// EventData holds the schedule of an event-like post.
// IsUpcoming and HasEnded are derived from the dates and a reference instant;
// stored values are never trusted.
type EventData struct {
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	Location   string `json:"location,omitempty"`
	IsUpcoming bool   `json:"isUpcoming"`
	HasEnded   bool   `json:"hasEnded"`
}

// Stats are engagement counters synthesized by the origin
type Stats struct {
	Views    int     `json:"views"`
	Likes    int     `json:"likes"`
	Comments int     `json:"comments"`
	Rating   float64 `json:"rating"`
}

// FlagOverrides carries flag values that a source explicitly provides.
// A nil field means "leave the current value alone".
type FlagOverrides struct {
	Featured   *bool `json:"isFeatured,omitempty"`
	Bookmarked *bool `json:"isBookmarked,omitempty"`
	Liked      *bool `json:"isLiked,omitempty"`
}

// IsEmpty reports whether no flag is set
func (f FlagOverrides) IsEmpty() bool {
	return f.Featured == nil && f.Bookmarked == nil && f.Liked == nil
}

// ApplyTo writes the provided flags onto p
func (f FlagOverrides) ApplyTo(p *Post) {
	if f.Featured != nil {
		p.IsFeatured = *f.Featured
	}
	if f.Bookmarked != nil {
		p.IsBookmarked = *f.Bookmarked
	}
	if f.Liked != nil {
		p.IsLiked = *f.Liked
	}
}

// PatchEntry is one freshly fetched post destined for a targeted patch
type PatchEntry struct {
	Post  Post
	Flags FlagOverrides
}

// Clone returns a deep copy of the post
func (p Post) Clone() Post {
	out := p
	if p.Categories != nil {
		out.Categories = append([]string(nil), p.Categories...)
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.EventData != nil {
		ed := *p.EventData
		out.EventData = &ed
	}
	return out
}

// ClonePosts deep-copies a slice of posts
func ClonePosts(posts []Post) []Post {
	if posts == nil {
		return nil
	}
	out := make([]Post, len(posts))
	for i := range posts {
		out[i] = posts[i].Clone()
	}
	return out
}

// IsNewer reports whether candidate strictly supersedes known
func IsNewer(candidate, known time.Time) bool {
	return candidate.After(known)
}
