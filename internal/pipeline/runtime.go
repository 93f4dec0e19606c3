package pipeline

import (
	"context"
	"fmt"

	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/internal/storage"
	"github.com/rs/zerolog/log"
)

// Runtime holds the collaborators built from configuration. Close releases
// the database pool.
type Runtime struct {
	Deps    Dependencies
	Storage storage.ObjectStorage
	db      *postgres.DB
}

// NewRuntime connects the configured store, cache and object storage. A
// missing database falls back to an in-memory store; missing storage leaves
// exports local.
func NewRuntime(ctx context.Context, cfg *config.Config, pcfg PipelineConfig, m *metrics.Metrics) (*Runtime, error) {
	rt := &Runtime{}
	rt.Deps.Metrics = m

	if cfg.Database.Enabled() {
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		repo := NewRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		rt.db = db
		rt.Deps.Store = repo
		log.Info().Msg("Tracking forecast runs in postgres")
	} else {
		rt.Deps.Store = NewMemoryStore()
	}

	reportCache, err := cache.NewReportCache(ctx, cfg.Cache)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to init report cache: %w", err)
	}
	rt.Deps.Cache = reportCache

	objects, err := storage.New(cfg.Storage)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to init object storage: %w", err)
	}
	rt.Storage = objects

	var upload UploadFunc
	if objects != nil {
		upload = objects.UploadObject
		if cfg.Storage.Prefix != "" {
			pcfg.UploadPrefix = cfg.Storage.Prefix
		}
	}
	rt.Deps.Exporter = NewExporter(pcfg, upload)

	return rt, nil
}

// Close releases the database connection
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
