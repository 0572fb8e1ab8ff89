package models

import (
	"time"
)

// CacheVersion is the schema tag of the persisted ContentCache
const CacheVersion = "9.0"

// ContentCache is the single persisted aggregate
type ContentCache struct {
	Posts               []Post            `json:"posts"`
	Timestamp           time.Time         `json:"timestamp"`
	Version             string            `json:"version"`
	PostTypeCount       map[PostType]int  `json:"postTypeCount"`
	EventTypeCount      map[string]int    `json:"eventTypeCount"`
	Categories          []string          `json:"categories"`
	Tags                []string          `json:"tags"`
	PostModificationMap map[int]time.Time `json:"postModificationMap,omitempty"`
	LastValidationCheck time.Time         `json:"lastValidationCheck"`

	// ExpiredModifications remembers fetched posts dropped as finished
	// events, so the digest does not report them as new
	ExpiredModifications map[int]time.Time `json:"expiredModifications,omitempty"`
}

// CacheInfo is a read-only projection of cache health
type CacheInfo struct {
	Exists                 bool             `json:"exists"`
	Version                string           `json:"version,omitempty"`
	TotalPosts             int              `json:"totalPosts"`
	Timestamp              *time.Time       `json:"timestamp,omitempty"`
	AgeMs                  int64            `json:"ageMs"`
	AgeSeconds             int64            `json:"ageSeconds"`
	AgeMinutes             int64            `json:"ageMinutes"`
	AgeHours               float64          `json:"ageHours"`
	IsValid                bool             `json:"isValid"`
	IsStale                bool             `json:"isStale"`
	PostTypeCount          map[PostType]int `json:"postTypeCount"`
	EventTypeCount         map[string]int   `json:"eventTypeCount"`
	CategoryCount          int              `json:"categoryCount"`
	TagCount               int              `json:"tagCount"`
	IsRefreshing           bool             `json:"isRefreshing"`
	IsValidating           bool             `json:"isValidating"`
	LastValidationCheck    *time.Time       `json:"lastValidationCheck,omitempty"`
	MinutesSinceValidation *int64           `json:"minutesSinceValidation,omitempty"`
}

// APIResponse is what consumers receive from content reads.
// Error is set alongside Success=true when stale data is served after a failure.
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      []Post `json:"data"`
	Total     int    `json:"total"`
	FromCache bool   `json:"fromCache"`
	Stale     bool   `json:"stale"`
	Error     string `json:"error,omitempty"`
}
