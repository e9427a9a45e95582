// Package bootstrap opens the runtime dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"askallery/internal/cache"
	"askallery/internal/config"
	"askallery/internal/database"
	"askallery/internal/middleware"
	"askallery/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development database with demo data.
	SeedDemo bool
}

// InitRuntime connects to the database and Redis, prepares the upload
// directories and optionally seeds demo data. A nil Redis client means the
// process runs without caching, token revocation or notifications.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	r := cache.InitRedis(cfg.RedisURL)

	if err := ensureUploadDirs(cfg.UploadDir); err != nil {
		return nil, nil, fmt.Errorf("prepare upload directory: %w", err)
	}

	if opts.SeedDemo {
		if err := seedDemo(cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

func ensureUploadDirs(root string) error {
	for _, dir := range []string{"posts", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return err
		}
	}
	return nil
}

// seedDemo only runs in development and only against an empty users table.
func seedDemo(cfg *config.Config, db *gorm.DB) error {
	if cfg.IsProduction() {
		return fmt.Errorf("demo seeding is disabled in production")
	}

	var count int64
	if err := db.Table("users").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		middleware.Logger.Info("database already has users, skipping demo seed", "users", count)
		return nil
	}

	_, err := seed.Seed(context.Background(), db, seed.Options{NumUsers: 10, NumPosts: 30})
	return err
}
