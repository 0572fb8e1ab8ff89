package query_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/query"
)

// syntheticPosts builds n posts cycling through the post types
func syntheticPosts(n int) []models.Post {
	types := []models.PostType{
		models.PostTypePosts, models.PostTypeEvents, models.PostTypeFestivals,
		models.PostTypeNews, models.PostTypeStaff, models.PostTypeDarshan,
	}
	posts := make([]models.Post, n)
	for i := 0; i < n; i++ {
		posts[i] = models.Post{
			ID:         i + 1,
			Title:      fmt.Sprintf("Post %06d", i),
			Content:    "Daily schedule and announcements for the temple community",
			Date:       now.Add(-time.Duration(i) * time.Hour),
			PostType:   types[i%len(types)],
			Categories: []string{"Announcements"},
			Stats:      models.Stats{Views: (i * 7919) % 950, Rating: 4},
		}
		if i%3 == 0 {
			posts[i].EventData = &models.EventData{StartDate: "2026-11-08", EndDate: "2026-11-09"}
		}
	}
	return posts
}

// BenchmarkApplySearch benchmarks full-text search over 1000 posts
func BenchmarkApplySearch(b *testing.B) {
	posts := syntheticPosts(1000)
	filter := models.Filter{Search: "post 0009"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		query.Apply(posts, filter, now)
	}

	b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "posts/sec")
}

// BenchmarkApplySortByViews benchmarks a filtered, sorted, paged read
func BenchmarkApplySortByViews(b *testing.B) {
	posts := syntheticPosts(1000)
	filter := models.Filter{
		PostTypes: []models.PostType{models.PostTypeEvents, models.PostTypeNews},
		SortBy:    models.SortByViews,
		Limit:     20,
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		query.Apply(posts, filter, now)
	}
}

// BenchmarkDropExpired benchmarks the post-refresh expiry pass
func BenchmarkDropExpired(b *testing.B) {
	posts := syntheticPosts(1000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		query.DropExpired(posts, now)
	}
}
