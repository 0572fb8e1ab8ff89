package transform

import (
	"math"

	"github.com/content-sync-engine/internal/models"
)

// synthesizeStats prefers counters from the CMS and otherwise derives stable
// pseudo-counters from the id, so the same post always shows the same numbers
func synthesizeStats(id int, fields models.RawMeta) models.Stats {
	if id < 0 {
		id = -id
	}
	stats := models.Stats{
		Views:    50 + (id*7919)%950,
		Comments: (id * 31) % 25,
		Rating:   math.Round((3.5+float64((id*13)%16)/10)*10) / 10,
	}
	stats.Likes = stats.Views/12 + id%5

	if fields.Views != nil {
		stats.Views = *fields.Views
	}
	if fields.Likes != nil {
		stats.Likes = *fields.Likes
	}
	if fields.Comments != nil {
		stats.Comments = *fields.Comments
	}
	return stats
}
