package api

import (
	"net/http"

	"github.com/content-sync-engine/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CacheHandler handles cache diagnostics endpoints
type CacheHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(services *service.Services, log zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		services: services,
		log:      log.With().Str("handler", "cache").Logger(),
	}
}

// GetInfo handles GET /v1/cache/info
func (h *CacheHandler) GetInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Content.GetCacheInfo())
}

// Clear handles DELETE /v1/cache
func (h *CacheHandler) Clear(c *gin.Context) {
	h.services.Content.ClearCache(c.Request.Context())
	h.log.Info().Str("client_ip", c.ClientIP()).Msg("Cache cleared via API")
	c.Status(http.StatusNoContent)
}
