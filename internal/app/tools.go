package app

import (
	"context"

	"distask/internal/config"
	"distask/internal/storage"
	"distask/pkg/logx"
)

// CheckConfig loads and validates the file at path without touching the
// network or the database.
func CheckConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Migrate opens the configured store, which applies pending migrations, and
// reports the resulting schema version.
func Migrate(ctx context.Context, path string, log logx.Logger) (int, error) {
	cfg, err := CheckConfig(path)
	if err != nil {
		return 0, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return 0, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.SchemaVersion(ctx)
}
