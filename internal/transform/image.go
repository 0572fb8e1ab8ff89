package transform

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/content-sync-engine/internal/models"
)

var (
	imageExtRegex  = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|avif|svg|bmp)$`)
	imageHostRegex = regexp.MustCompile(`(?i)(/wp-content/uploads/|^i[0-3]\.wp\.com$|images\.unsplash\.com|res\.cloudinary\.com|googleusercontent\.com|\.cloudfront\.net)`)
)

// alternateSizes is the order in which embedded renditions are tried
var alternateSizes = []string{"large", "medium_large", "medium", "full", "thumbnail"}

// ResolveImage picks the display image of a post. The first valid candidate
// wins: featured media, an alternate embedded size, the first <img> in the
// content, then the fallback for the post type.
func (t *Transformer) ResolveImage(raw *models.RawPost, postType models.PostType) string {
	for _, candidate := range t.imageCandidates(raw) {
		if resolved, ok := t.acceptImage(candidate); ok {
			return resolved
		}
	}
	return t.FallbackImage(postType)
}

// FallbackImage returns the default image for a post type
func (t *Transformer) FallbackImage(postType models.PostType) string {
	if postType == "" {
		postType = models.PostTypePosts
	}
	return t.fallbackBase + "/" + string(postType) + ".jpg"
}

func (t *Transformer) imageCandidates(raw *models.RawPost) []string {
	var candidates []string

	if raw.Embedded != nil && len(raw.Embedded.FeaturedMedia) > 0 {
		media := raw.Embedded.FeaturedMedia[0]
		candidates = append(candidates, media.SourceURL)
		if media.MediaDetails != nil {
			for _, size := range alternateSizes {
				if s, ok := media.MediaDetails.Sizes[size]; ok {
					candidates = append(candidates, s.SourceURL)
				}
			}
		}
	}

	if img := firstContentImage(raw.Content.Rendered); img != "" {
		candidates = append(candidates, img)
	}
	return candidates
}

func firstContentImage(content string) string {
	if !strings.Contains(content, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	img := doc.Find("img").First()
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// acceptImage resolves candidate to an absolute URL and checks that it looks
// like an image by extension or host
func (t *Transformer) acceptImage(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	if strings.HasPrefix(candidate, "//") {
		candidate = "https:" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if t.base == nil {
			return "", false
		}
		u = t.base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}

	if imageExtRegex.MatchString(u.Path) || imageHostRegex.MatchString(u.Host) || imageHostRegex.MatchString(u.Path) {
		return u.String(), true
	}
	return "", false
}
