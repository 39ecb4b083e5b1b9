package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/domain"
	"github.com/aristath/factorlab/internal/modules/calculations"
	"github.com/aristath/factorlab/internal/modules/factors"
	"github.com/aristath/factorlab/internal/modules/metadata"
	"github.com/aristath/factorlab/internal/modules/pca"
	"github.com/aristath/factorlab/internal/modules/regression"
	"github.com/aristath/factorlab/internal/modules/returns"
	"github.com/aristath/factorlab/internal/reliability"
	"github.com/aristath/factorlab/internal/work"
)

// InitializeRepositories creates the SQLite repositories
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.ReturnsDB == nil {
		return fmt.Errorf("returns database not initialized")
	}
	container.ReturnsRepo = returns.NewRepository(container.ReturnsDB.Conn(), log)
	container.MetadataRepo = metadata.NewRepository(container.ReturnsDB.Conn(), log)
	return nil
}

// Sources picks the factor and return sources named by cfg.Source
func Sources(container *Container, cfg *config.Config, log zerolog.Logger) (domain.FactorPanelSource, domain.ReturnSeriesSource) {
	if cfg.Source == config.SourceSQLite {
		return container.ReturnsRepo, container.ReturnsRepo
	}
	return returns.NewCSVFactorSource(cfg.FactorsCSV, log), returns.NewCSVReturnSource(cfg.StocksCSV, log)
}

// InitializeServices builds the store, estimators, cache, publisher and batch runner.
// The store is created but not loaded.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	factorSrc, returnSrc := Sources(container, cfg, log)
	container.Store = returns.NewStore(factorSrc, returnSrc, log)

	engineOpts := regression.Options{
		WindowWorkers:    cfg.WindowWorkers,
		RollingInference: cfg.RollingInference,
	}
	container.Engine = regression.NewEngine(container.Store, engineOpts, log)
	if container.CacheDB != nil {
		container.Cache = calculations.NewCache(container.CacheDB.Conn(), log)
	}

	// Every fit pins one snapshot, so a cache key always matches the data behind it
	cache := container.Cache
	newFitter := func(snap *returns.Snapshot) calculations.Fitter {
		engine := regression.NewEngine(regression.Pinned(snap), engineOpts, log)
		if cache == nil {
			return engine
		}
		return calculations.NewCachedEngine(engine, cache, snap, cfg.CacheTTL, log)
	}

	container.Fitter = container.Engine
	if cache != nil {
		container.Fitter = work.NewSnapshotFitter(container.Store, newFitter)
	}

	container.PCA = pca.NewAnalyzer(log)
	container.FactorBuilder = factors.NewBuilder(log)

	if cfg.S3.Enabled() {
		client, err := reliability.NewS3Client(ctx, reliability.S3Config{
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create s3 client: %w", err)
		}
		container.Publisher = reliability.NewArtifactPublisher(client, cfg.S3.Prefix, log)
	}

	var publisher work.Publisher
	if container.Publisher != nil {
		publisher = container.Publisher
	}

	// A batch takes one snapshot for all of its tasks
	container.Runner = work.NewRunner(container.Store, newFitter, publisher, work.Config{
		OutputDir:     cfg.OutputDir,
		Workers:       cfg.Workers,
		Correlations:  cfg.Correlations,
		PCAComponents: cfg.PCAComponents,
		PCAWindow:     cfg.PCAWindow,
	}, log)

	return nil
}

// MetadataResolver returns the instrument name resolver: the JSON file when
// configured, otherwise the metadata table.
func (c *Container) MetadataResolver(ctx context.Context) (*metadata.Resolver, error) {
	if c.Config.MetadataJSON != "" {
		return metadata.LoadJSONFile(c.Config.MetadataJSON)
	}
	return c.MetadataRepo.Resolver(ctx)
}
