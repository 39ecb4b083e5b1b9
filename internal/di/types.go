package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/database"
	"github.com/aristath/factorlab/internal/modules/calculations"
	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/metadata"
	"github.com/aristath/factorlab/internal/modules/pca"
	"github.com/aristath/factorlab/internal/modules/regression"
	"github.com/aristath/factorlab/internal/modules/returns"
	"github.com/aristath/factorlab/internal/reliability"
	"github.com/aristath/factorlab/internal/work"
)

// Container holds all application dependencies
// This is the single source of truth for all service instances
type Container struct {
	Config *config.Config

	// Databases
	ReturnsDB *database.DB // factor and instrument returns, metadata
	CacheDB   *database.DB // cached fits (nil when the cache is disabled)

	// Repositories
	ReturnsRepo  *returns.Repository
	MetadataRepo *metadata.Repository

	// Services
	Store         *returns.Store
	Engine        *regression.Engine
	Cache         *calculations.Cache // nil when disabled
	Fitter        calculations.Fitter // Engine, or a cached SnapshotFitter when the cache is on
	PCA           *pca.Analyzer
	FactorBuilder *factors.Builder
	Publisher     *reliability.ArtifactPublisher // nil when no bucket is configured
	Runner        *work.Runner

	log zerolog.Logger
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := map[string]*database.DB{"returns": c.ReturnsDB}
	if c.CacheDB != nil {
		dbs["cache"] = c.CacheDB
	}
	return dbs
}

// Close closes every open database
func (c *Container) Close() error {
	var firstErr error
	for name, db := range c.Databases() {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			c.log.Error().Err(err).Str("database", name).Msg("Failed to close database")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close %s: %w", name, err)
			}
		}
	}
	return firstErr
}
