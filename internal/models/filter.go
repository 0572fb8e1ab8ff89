package models

// SortKey selects the ordering of query results
type SortKey string

const (
	SortByDate      SortKey = "date"
	SortByTitle     SortKey = "title"
	SortByViews     SortKey = "views"
	SortByRating    SortKey = "rating"
	SortByEventDate SortKey = "eventDate"
)

// ValidSortKeys defines allowed sort keys
var ValidSortKeys = map[SortKey]bool{
	SortByDate:      true,
	SortByTitle:     true,
	SortByViews:     true,
	SortByRating:    true,
	SortByEventDate: true,
}

// SortOrder is asc or desc
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter describes a read over the cached posts. All predicates are optional
// and AND-combined; Offset and Limit apply after sorting.
type Filter struct {
	PostTypes  []PostType `json:"postTypes,omitempty"`
	EventTypes []string   `json:"eventTypes,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Search     string     `json:"search,omitempty"`
	Upcoming   *bool      `json:"upcoming,omitempty"`
	Ended      *bool      `json:"ended,omitempty"`
	Featured   *bool      `json:"featured,omitempty"`
	SortBy     SortKey    `json:"sortBy,omitempty"`
	Order      SortOrder  `json:"order,omitempty"`
	Offset     int        `json:"offset,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// Bool returns a pointer to b, for building filters and flag overrides
func Bool(b bool) *bool {
	return &b
}
