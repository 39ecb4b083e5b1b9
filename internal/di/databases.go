package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/database"
)

// InitializeDatabases opens and migrates returns.db, and cache.db when the cache is enabled
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg, log: log}

	// returns.db - factor panel, instrument returns and metadata
	returnsDB, err := database.New(database.Config{
		Path:    cfg.ReturnsDBPath(),
		Profile: database.ProfileStandard,
		Name:    "returns",
		Driver:  cfg.DBDriver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize returns database: %w", err)
	}
	if err := returnsDB.Migrate(); err != nil {
		returnsDB.Close()
		return nil, fmt.Errorf("failed to migrate returns database: %w", err)
	}
	container.ReturnsDB = returnsDB

	if !cfg.CacheEnabled {
		log.Info().Msg("Fit cache disabled")
		return container, nil
	}

	// cache.db - ephemeral fit results, safe to delete
	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
		Driver:  cfg.DBDriver,
	})
	if err != nil {
		returnsDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		returnsDB.Close()
		cacheDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	container.CacheDB = cacheDB

	log.Info().
		Str("returns", cfg.ReturnsDBPath()).
		Str("cache", cfg.CacheDBPath()).
		Msg("Databases initialized")

	return container, nil
}
