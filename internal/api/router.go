package api

import (
	"context"
	"net/http"
	"time"

	"github.com/content-sync-engine/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const serviceName = "content-sync-engine"

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(requestIDMiddleware())
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	// Handlers
	contentHandler := NewContentHandler(services, log)
	cacheHandler := NewCacheHandler(services, log)

	// Health check
	router.GET("/health", healthCheck(services))

	// API v1
	v1 := router.Group("/v1")
	{
		content := v1.Group("/content")
		{
			content.GET("", contentHandler.GetContent)
			content.POST("/refresh", contentHandler.RefreshContent)
			content.GET("/stream", contentHandler.StreamUpdates)
			content.GET("/upcoming", contentHandler.GetUpcoming)
			content.GET("/featured", contentHandler.GetFeatured)
			content.GET("/search", contentHandler.Search)
			content.GET("/events/:event_type", contentHandler.GetByEventType)
			content.GET("/categories/:category", contentHandler.GetByCategory)
			content.DELETE("/:id", contentHandler.InvalidatePost)
			content.PATCH("/:id/flags", contentHandler.UpdateFlags)
		}

		cache := v1.Group("/cache")
		{
			cache.GET("/info", cacheHandler.GetInfo)
			cache.DELETE("", cacheHandler.Clear)
		}
	}

	return router
}

// healthCheck reports process and storage health
func healthCheck(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := contextWithTimeout(c, 2*time.Second)
		defer cancel()

		status, code, storage := "healthy", http.StatusOK, "ok"
		if err := services.Content.Health(ctx); err != nil {
			status, code, storage = "degraded", http.StatusServiceUnavailable, err.Error()
		}

		c.JSON(code, gin.H{
			"status":    status,
			"storage":   storage,
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   serviceName,
		})
	}
}

// requestIDMiddleware tags every request with an X-Request-ID
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("request_id", c.GetString("request_id")).
					Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextWithTimeout creates a context with timeout for handlers
func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}
