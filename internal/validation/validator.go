package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/content-sync-engine/internal/models"
)

var (
	slugRegex    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is the set of problems found on one record
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Error()
	}
	return strings.Join(parts, "; ")
}

// Validator checks raw origin records before they are transformed.
// It remembers ids seen in the current batch to flag duplicates.
type Validator struct {
	seenIDs map[int]bool
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		seenIDs: make(map[int]bool),
	}
}

// ValidateRawPost validates a raw content record
func (v *Validator) ValidateRawPost(raw *models.RawPost) []ValidationError {
	var errors []ValidationError

	// Validate ID
	if raw.ID <= 0 {
		errors = append(errors, ValidationError{Field: "id", Message: "id is required", Value: raw.ID})
	} else if v.seenIDs[raw.ID] {
		errors = append(errors, ValidationError{Field: "id", Message: "duplicate id", Value: raw.ID})
	}

	// Validate date
	date := firstNonEmpty(raw.DateGMT, raw.Date)
	if date == "" {
		errors = append(errors, ValidationError{Field: "date", Message: "date is required"})
	} else if _, err := ParseTimestamp(date); err != nil {
		errors = append(errors, ValidationError{Field: "date", Message: "invalid timestamp format", Value: date})
	}

	// Validate modified if present
	if modified := firstNonEmpty(raw.Modified, raw.ModifiedGMT); modified != "" {
		if _, err := ParseTimestamp(modified); err != nil {
			errors = append(errors, ValidationError{Field: "modified", Message: "invalid timestamp format", Value: modified})
		}
	}

	// A record needs something to show
	if strings.TrimSpace(raw.Title.Rendered) == "" && strings.TrimSpace(raw.Content.Rendered) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title or content is required"})
	}

	if len(errors) == 0 {
		v.seenIDs[raw.ID] = true
	}
	return errors
}

// ValidSlug reports whether slug is kebab-case
func ValidSlug(slug string) bool {
	return slugRegex.MatchString(slug)
}

// Slugify derives a kebab-case slug from free text
func Slugify(text string) string {
	s := nonSlugRegex.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(s, "-")
}

// ParseTimestamp parses an origin timestamp. Zone-less values are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
