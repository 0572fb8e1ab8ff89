package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/content-sync-engine/internal/models"
	"github.com/content-sync-engine/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxLimit = 500

// ContentHandler handles content endpoints
type ContentHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewContentHandler creates a new ContentHandler
func NewContentHandler(services *service.Services, log zerolog.Logger) *ContentHandler {
	return &ContentHandler{
		services: services,
		log:      log.With().Str("handler", "content").Logger(),
	}
}

// GetContent handles GET /v1/content
func (h *ContentHandler) GetContent(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refresh := false
	if v := c.Query("refresh"); v != "" {
		if refresh, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh must be a boolean"})
			return
		}
	}

	resp, err := h.services.Content.GetContent(c.Request.Context(), filter, refresh)
	h.respond(c, resp, err)
}

// RefreshContent handles POST /v1/content/refresh
func (h *ContentHandler) RefreshContent(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.log.Info().Msg("Manual refresh requested")
	resp, err := h.services.Content.RefreshContent(c.Request.Context(), filter)
	h.respond(c, resp, err)
}

// GetByEventType handles GET /v1/content/events/:event_type
func (h *ContentHandler) GetByEventType(c *gin.Context) {
	resp, err := h.services.Content.GetByEventType(c.Request.Context(), c.Param("event_type"))
	h.respond(c, resp, err)
}

// GetUpcoming handles GET /v1/content/upcoming
func (h *ContentHandler) GetUpcoming(c *gin.Context) {
	resp, err := h.services.Content.GetUpcoming(c.Request.Context())
	h.respond(c, resp, err)
}

// GetFeatured handles GET /v1/content/featured
func (h *ContentHandler) GetFeatured(c *gin.Context) {
	resp, err := h.services.Content.GetFeatured(c.Request.Context())
	h.respond(c, resp, err)
}

// Search handles GET /v1/content/search?q=
func (h *ContentHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter is required"})
		return
	}
	resp, err := h.services.Content.Search(c.Request.Context(), q)
	h.respond(c, resp, err)
}

// GetByCategory handles GET /v1/content/categories/:category
func (h *ContentHandler) GetByCategory(c *gin.Context) {
	resp, err := h.services.Content.GetByCategory(c.Request.Context(), c.Param("category"))
	h.respond(c, resp, err)
}

// InvalidatePost handles DELETE /v1/content/:id
func (h *ContentHandler) InvalidatePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if !h.services.Content.InvalidatePost(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateFlags handles PATCH /v1/content/:id/flags
func (h *ContentHandler) UpdateFlags(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var overrides models.FlagOverrides
	if err := c.ShouldBindJSON(&overrides); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if overrides.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one of isFeatured, isBookmarked, isLiked is required"})
		return
	}

	if !h.services.Content.UpdatePostFlags(c.Request.Context(), id, overrides) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "updated": true})
}

// StreamUpdates handles GET /v1/content/stream
// Sends one "update" server-sent event per cache mutation. The stream ends
// when the client goes away or the content service shuts down.
func (h *ContentHandler) StreamUpdates(c *gin.Context) {
	ctx := c.Request.Context()
	done := h.services.Content.Done()
	updates := make(chan []models.Post, 1)

	unsubscribe := h.services.Content.SubscribeToUpdates(func(posts []models.Post) {
		select {
		case updates <- posts:
		case <-ctx.Done():
		case <-done:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"service": serviceName})
	c.Writer.Flush()

	h.log.Debug().Str("client_ip", c.ClientIP()).Msg("Update stream opened")

	c.Stream(func(w io.Writer) bool {
		select {
		case posts := <-updates:
			c.SSEvent("update", gin.H{"total": len(posts), "data": posts})
			return true
		case <-ctx.Done():
			return false
		case <-done:
			c.SSEvent("close", gin.H{"reason": "shutdown"})
			return false
		}
	})

	h.log.Debug().Str("client_ip", c.ClientIP()).Msg("Update stream closed")
}

// respond writes a content response or maps the error to a status code
func (h *ContentHandler) respond(c *gin.Context, resp *models.APIResponse, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrNoContent) {
			status = http.StatusServiceUnavailable
		}
		h.log.Error().Err(err).Msg("Content request failed")
		c.JSON(status, models.APIResponse{Success: false, Data: []models.Post{}, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// parseFilter builds a filter from query parameters.
// Set-valued parameters accept comma-separated values.
func parseFilter(c *gin.Context) (models.Filter, error) {
	var f models.Filter

	for _, t := range splitList(c.Query("type")) {
		pt := models.PostType(strings.ToLower(t))
		if !models.ValidPostTypes[pt] {
			return f, fmt.Errorf("invalid type: %s", t)
		}
		f.PostTypes = append(f.PostTypes, pt)
	}
	f.EventTypes = splitList(c.Query("event_type"))
	f.Categories = splitList(c.Query("category"))
	f.Tags = splitList(c.Query("tag"))
	f.Search = strings.TrimSpace(c.Query("search"))

	var err error
	if f.Upcoming, err = optionalBool(c, "upcoming"); err != nil {
		return f, err
	}
	if f.Ended, err = optionalBool(c, "ended"); err != nil {
		return f, err
	}
	if f.Featured, err = optionalBool(c, "featured"); err != nil {
		return f, err
	}

	if v := c.Query("sort"); v != "" {
		f.SortBy = models.SortKey(v)
		if !models.ValidSortKeys[f.SortBy] {
			return f, fmt.Errorf("sort must be one of: date, title, views, rating, eventDate")
		}
	}
	if v := c.Query("order"); v != "" {
		f.Order = models.SortOrder(strings.ToLower(v))
		if f.Order != models.SortAsc && f.Order != models.SortDesc {
			return f, fmt.Errorf("order must be asc or desc")
		}
	}

	if f.Offset, err = optionalInt(c, "offset"); err != nil {
		return f, err
	}
	if f.Limit, err = optionalInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalBool(c *gin.Context, key string) (*bool, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", key)
	}
	return &b, nil
}

func optionalInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
