package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gapscan/gapscan/internal/config"
)

// Open selects and opens a backend from configuration.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresDSN)
	case "sqlite":
		if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return NewSQLite(ctx, filepath.Join(cfg.LocalPath, "gapscan.db"))
	case "bolt", "":
		if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return NewBolt(filepath.Join(cfg.LocalPath, "gapscan.bolt"))
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
