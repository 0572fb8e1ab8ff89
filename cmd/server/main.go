package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/content-sync-engine/internal/api"
	"github.com/content-sync-engine/internal/cache"
	"github.com/content-sync-engine/internal/clock"
	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/remote"
	"github.com/content-sync-engine/internal/service"
	"github.com/content-sync-engine/internal/storage"
	"github.com/content-sync-engine/internal/transform"
	"github.com/content-sync-engine/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local runs
	envErr := godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting content sync engine...")
	if envErr == nil {
		log.Debug().Msg("Loaded .env")
	}

	ctx := context.Background()

	// Initialize storage
	blobs, err := storage.Open(ctx, &cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer blobs.Close()

	// Restore the persisted cache
	clk := clock.Real()
	store := cache.NewStore(blobs, clk, cfg.Sync, log)
	if err := store.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted cache, starting empty")
	}

	transformer, err := transform.New(transform.Options{
		BaseURL:              cfg.Origin.BaseURL,
		FallbackImageBaseURL: cfg.Origin.FallbackImageBaseURL,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transformer")
	}

	// Initialize services
	services, err := service.NewServices(service.Dependencies{
		Store:       store,
		Origin:      remote.NewClient(&cfg.Origin, log),
		Transformer: transformer,
		Clock:       clk,
	}, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create services")
	}

	// Start background validation scheduler
	go services.Validation.Start(ctx)
	log.Info().Msg("Validation scheduler started")

	// Initialize router
	router := api.NewRouter(services, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}
	// Open update streams end when the server shuts down
	srv.RegisterOnShutdown(services.Content.Close)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop validation scheduler and detach stream subscribers
	services.Validation.Stop()
	services.Content.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
