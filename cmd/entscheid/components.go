package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/analytics"
	"github.com/hyperjump/entscheid/internal/citation"
	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/ingest"
	"github.com/hyperjump/entscheid/internal/keyword"
	"github.com/hyperjump/entscheid/internal/search"
	"github.com/hyperjump/entscheid/internal/sources"
	"github.com/hyperjump/entscheid/internal/storage"
	"github.com/hyperjump/entscheid/internal/tools"
)

// Components holds initialized services.
type Components struct {
	Store    *storage.SQLStore
	Cache    storage.Cache
	Index    *keyword.BleveIndex
	Registry *sources.Registry
	Ingester *ingest.Ingester
	Engine   *search.Engine
	Graph    *citation.Graph
	Analyzer *analytics.Analyzer
	Tools    *tools.Service
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if rc, ok := c.Cache.(*storage.RedisCache); ok {
		_ = rc.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// SourceNames lists the configured sources, federal first.
func (c *Components) SourceNames() []string {
	all := c.Registry.All()
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.Name())
	}
	return names
}

// openStorage opens the relational store and the configured cache backend.
func openStorage(ctx context.Context, cfg *config.Config) (*storage.SQLStore, storage.Cache, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return store, storage.NewSQLCache(store), nil
	}
	cache, err := storage.NewRedisCache(ctx, cfg.Cache)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to initialize redis cache: %w", err)
	}
	return store, cache, nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, cache, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &Components{Store: store, Cache: cache}

	c.Index, err = keyword.NewBleveIndex(cfg.Storage.IndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize full-text index: %w", err)
	}

	c.Registry, err = sources.FromConfig(cfg.Sources, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize sources: %w", err)
	}
	if len(c.Registry.All()) == 0 {
		logger.Warn("No sources configured; searches will fail until sources are added")
	}

	c.Ingester = ingest.New(store, c.Index, ingest.WithLogger(logger))
	if err := rebuildIndexIfEmpty(ctx, c, logger); err != nil {
		c.Close()
		return nil, err
	}

	c.Engine = search.NewEngine(c.Registry, store, cache, c.Ingester, &cfg.Search,
		search.WithLogger(logger),
		search.WithQueryLog(store),
		search.WithTTLs(cfg.Cache.SearchTTL, cfg.Cache.DecisionTTL),
		search.WithPartialTTL(cfg.Cache.PartialTTL),
	)
	c.Graph = citation.NewGraph(store, cache, cfg.Cache.RelatedTTL, logger)
	c.Analyzer = analytics.NewAnalyzer(c.Engine, store, c.Index, cache, &cfg.Analytics,
		analytics.WithLogger(logger),
		analytics.WithTTL(cfg.Cache.AnalyticsTTL),
	)
	c.Tools = tools.NewService(c.Engine, c.Graph, c.Analyzer, logger)
	return c, nil
}

// rebuildIndexIfEmpty repopulates the full-text index from the store. The index
// is a projection, so an in-memory or freshly created index starts empty.
func rebuildIndexIfEmpty(ctx context.Context, c *Components, logger *zap.Logger) error {
	indexed, err := c.Index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to read index size: %w", err)
	}
	if indexed > 0 {
		return nil
	}
	stored, err := c.Store.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to count decisions: %w", err)
	}
	if stored == 0 {
		return nil
	}
	start := time.Now()
	n, err := c.Ingester.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	logger.Info("Full-text index rebuilt", zap.Int("decisions", n), zap.Duration("took", time.Since(start)))
	return nil
}

// runMaintenance drops expired cache entries and prunes the search log until ctx is done.
func runMaintenance(ctx context.Context, c *Components, cfg *config.Config, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.Cache.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			maintain(ctx, c, cfg, logger)
		}
	}
}

func maintain(ctx context.Context, c *Components, cfg *config.Config, logger *zap.Logger) {
	removed, err := c.Cache.Cleanup(ctx)
	if err != nil {
		logger.Warn("Cache cleanup failed", zap.Error(err))
	} else if removed > 0 {
		logger.Debug("Cache cleanup", zap.Int64("removed", removed))
	}
	pruned, err := c.Store.PruneQueries(ctx, time.Now().Add(-cfg.Search.QueryLogRetention))
	if err != nil {
		logger.Warn("Search log pruning failed", zap.Error(err))
	} else if pruned > 0 {
		logger.Debug("Search log pruned", zap.Int64("removed", pruned))
	}
}
