// Package storage persists opaque blobs under fixed keys. The content cache
// uses it for its single versioned snapshot.
package storage

import (
	"context"
	"fmt"

	"github.com/content-sync-engine/internal/config"
	"github.com/content-sync-engine/internal/storage/postgres"
	"github.com/content-sync-engine/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// BlobStore defines the interface for keyed blob persistence.
// Get reports found=false, not an error, for an absent key.
type BlobStore interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the blob store selected by cfg.Driver and migrates its schema
func Open(ctx context.Context, cfg *config.StorageConfig, log zerolog.Logger) (BlobStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, log)
	case "postgres":
		db, err := postgres.New(ctx, &cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
