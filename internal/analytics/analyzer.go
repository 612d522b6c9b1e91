// Package analytics computes precedent analytics over decisions: outcome success
// rates, similarity between cases and how courts interpret a legal provision.
// Every computation is read-only and cached.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/keyword"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/storage"
)

// DefaultTTL bounds how long an analytics result is served from cache.
const DefaultTTL = time.Hour

// Engine is the search path analytics draw their samples from.
type Engine interface {
	Search(ctx context.Context, filters models.SearchFilters, queryType string) (*models.SearchResponse, error)
	GetDecision(ctx context.Context, id string) (*models.Decision, error)
}

// Analyzer runs the analytics computations.
type Analyzer struct {
	engine Engine
	store  storage.DecisionStore
	index  keyword.Index
	cache  storage.Cache
	config config.AnalyticsConfig
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithTTL overrides the cache lifetime of analytics results.
func WithTTL(ttl time.Duration) Option {
	return func(a *Analyzer) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock sets the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer wires the analyzer. index and cache may be nil.
func NewAnalyzer(engine Engine, store storage.DecisionStore, index keyword.Index, cache storage.Cache, cfg *config.AnalyticsConfig, opts ...Option) *Analyzer {
	a := &Analyzer{
		engine: engine,
		store:  store,
		index:  index,
		cache:  cache,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	if cfg != nil {
		a.config = *cfg
	}
	if a.config.SampleLimit <= 0 {
		a.config.SampleLimit = models.MaxSearchLimit
	}
	if a.config.CandidateLimit <= 0 {
		a.config.CandidateLimit = 500
	}
	if a.config.MinSimilarity <= 0 {
		a.config.MinSimilarity = 0.25
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// cacheKey hashes the kind and normalized request into an analytics cache key.
func cacheKey(kind string, req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return models.CacheTypeAnalytics + ":" + kind + ":" + hex.EncodeToString(sum[:])
}

// cachedOr serves key from the cache, or computes, caches and returns it.
func cachedOr[T any](ctx context.Context, a *Analyzer, key string, compute func() (*T, error)) (*T, error) {
	if a.cache != nil {
		v, ok, err := storage.GetJSON[*T](ctx, a.cache, key)
		if err != nil {
			a.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok && v != nil {
			return v, nil
		}
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	if a.cache != nil {
		if err := storage.SetJSON(ctx, a.cache, key, v, a.ttl, models.CacheTypeAnalytics); err != nil {
			a.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}
