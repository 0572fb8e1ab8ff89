package transform

import (
	"strings"

	"github.com/content-sync-engine/internal/models"
)

// eventTypeTable maps the CMS's free-text event type onto PostType.
// Keys are lowercased with separators collapsed to single spaces.
var eventTypeTable = map[string]models.PostType{
	"event":         models.PostTypeEvents,
	"events":        models.PostTypeEvents,
	"program":       models.PostTypeEvents,
	"programme":     models.PostTypeEvents,
	"class":         models.PostTypeEvents,
	"course":        models.PostTypeEvents,
	"workshop":      models.PostTypeEvents,
	"retreat":       models.PostTypeEvents,
	"kirtan":        models.PostTypeEvents,
	"festival":      models.PostTypeFestivals,
	"festivals":     models.PostTypeFestivals,
	"celebration":   models.PostTypeFestivals,
	"utsav":         models.PostTypeFestivals,
	"ekadasi":       models.PostTypeFestivals,
	"news":          models.PostTypeNews,
	"announcement":  models.PostTypeNews,
	"announcements": models.PostTypeNews,
	"update":        models.PostTypeNews,
	"newsletter":    models.PostTypeNews,
	"staff":         models.PostTypeStaff,
	"bio":           models.PostTypeStaff,
	"bios":          models.PostTypeStaff,
	"team":          models.PostTypeStaff,
	"priest":        models.PostTypeStaff,
	"darshan":       models.PostTypeDarshan,
	"daily darshan": models.PostTypeDarshan,
	"darshan photo": models.PostTypeDarshan,
	"post":          models.PostTypePosts,
	"posts":         models.PostTypePosts,
	"article":       models.PostTypePosts,
}

// ClassifyEventType maps a raw event-type label to a PostType.
// Unknown or empty labels map to PostTypePosts.
func ClassifyEventType(label string) models.PostType {
	key := normalizeLabel(label)
	if key == "" {
		return models.PostTypePosts
	}
	if pt, ok := eventTypeTable[key]; ok {
		return pt
	}
	return models.PostTypePosts
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.NewReplacer("_", " ", "-", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}
