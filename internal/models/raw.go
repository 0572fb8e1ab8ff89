package models

import (
	"encoding/json"
	"time"
)

// Rendered is a CMS field delivered as markup
type Rendered struct {
	Rendered string `json:"rendered"`
}

// RawPost is one record as returned by the content origin
type RawPost struct {
	ID            int             `json:"id"`
	Date          string          `json:"date"`
	DateGMT       string          `json:"date_gmt,omitempty"`
	Modified      string          `json:"modified"`
	ModifiedGMT   string          `json:"modified_gmt,omitempty"`
	Slug          string          `json:"slug"`
	Link          string          `json:"link,omitempty"`
	Title         Rendered        `json:"title"`
	Excerpt       Rendered        `json:"excerpt"`
	Content       Rendered        `json:"content"`
	FeaturedMedia int             `json:"featured_media"`
	Categories    []int           `json:"categories,omitempty"`
	Tags          []int           `json:"tags,omitempty"`
	ACF           json.RawMessage `json:"acf,omitempty"`
	Meta          json.RawMessage `json:"meta,omitempty"`
	Embedded      *RawEmbedded    `json:"_embedded,omitempty"`
}

// RawMeta holds the custom fields the engine understands
type RawMeta struct {
	EventType  string `json:"event_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Location   string `json:"location"`
	IsFeatured *bool  `json:"is_featured"`
	Views      *int   `json:"views"`
	Likes      *int   `json:"likes"`
	Comments   *int   `json:"comments"`
}

// CustomFields merges acf and meta, acf taking precedence.
// The CMS sends `false` or `[]` for empty field groups; those decode to nothing.
func (r *RawPost) CustomFields() RawMeta {
	var meta, acf RawMeta
	decodeLenient(r.Meta, &meta)
	decodeLenient(r.ACF, &acf)

	if acf.EventType != "" {
		meta.EventType = acf.EventType
	}
	if acf.StartDate != "" {
		meta.StartDate = acf.StartDate
	}
	if acf.EndDate != "" {
		meta.EndDate = acf.EndDate
	}
	if acf.Location != "" {
		meta.Location = acf.Location
	}
	if acf.IsFeatured != nil {
		meta.IsFeatured = acf.IsFeatured
	}
	if acf.Views != nil {
		meta.Views = acf.Views
	}
	if acf.Likes != nil {
		meta.Likes = acf.Likes
	}
	if acf.Comments != nil {
		meta.Comments = acf.Comments
	}
	return meta
}

func decodeLenient(raw json.RawMessage, out *RawMeta) {
	if len(raw) == 0 || raw[0] != '{' {
		return
	}
	_ = json.Unmarshal(raw, out)
}

// RawEmbedded carries the linked resources requested with _embed=true
type RawEmbedded struct {
	FeaturedMedia []RawMedia  `json:"wp:featuredmedia,omitempty"`
	Author        []RawAuthor `json:"author,omitempty"`
	Terms         [][]RawTerm `json:"wp:term,omitempty"`
}

// RawMedia is an embedded media attachment
type RawMedia struct {
	ID           int              `json:"id"`
	SourceURL    string           `json:"source_url"`
	MediaDetails *RawMediaDetails `json:"media_details,omitempty"`
}

// RawMediaDetails lists the generated sizes of a media attachment
type RawMediaDetails struct {
	Sizes map[string]RawMediaSize `json:"sizes,omitempty"`
}

// RawMediaSize is one generated rendition
type RawMediaSize struct {
	SourceURL string `json:"source_url"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// RawAuthor is an embedded author
type RawAuthor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RawTerm is an embedded taxonomy term
type RawTerm struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Taxonomy string `json:"taxonomy"`
}

// DigestEntry is one row of the cheap validation listing
type DigestEntry struct {
	ID              int    `json:"id"`
	Modified        string `json:"modified"`
	FeaturedMediaID int    `json:"featuredMediaId"`
}

// DriftStatus classifies a digest entry against the local cache
type DriftStatus string

const (
	DriftNew       DriftStatus = "new"
	DriftModified  DriftStatus = "modified"
	DriftUnchanged DriftStatus = "unchanged"
)

// ValidationResult is the drift verdict for one remote id
type ValidationResult struct {
	ID       int         `json:"id"`
	Modified time.Time   `json:"modified"`
	Status   DriftStatus `json:"status"`
}

// Outdated reports whether the local cache needs this id refetched
func (v ValidationResult) Outdated() bool {
	return v.Status == DriftNew || v.Status == DriftModified
}

// ListParams are the paged list query parameters
type ListParams struct {
	PerPage int
	Page    int
	Search  string
	OrderBy string
	Order   string
	MetaKey string
	Fields  []string
}
