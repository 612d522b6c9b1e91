// Package search is the cache-first fan-out orchestrator over the court sources.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/ingest"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/sources"
	"github.com/hyperjump/entscheid/internal/storage"
)

const (
	// DefaultSearchTTL bounds how long a merged search result is served from cache.
	DefaultSearchTTL = time.Hour
	// DefaultPartialTTL bounds how long a result missing failed sources is cached.
	DefaultPartialTTL = 5 * time.Minute
	// DefaultDecisionTTL bounds how long a single decision is served from cache.
	DefaultDecisionTTL = 24 * time.Hour
)

const tracerName = "github.com/hyperjump/entscheid/internal/search"

// Engine runs decision searches: cache lookup, concurrent fan-out to the selected
// sources, merge, persist, facet, truncate and cache.
type Engine struct {
	registry    *sources.Registry
	store       storage.DecisionStore
	cache       storage.Cache
	ingester    *ingest.Ingester
	queryLog    storage.QueryLog
	config      *config.SearchConfig
	searchTTL   time.Duration
	partialTTL  time.Duration
	decisionTTL time.Duration
	tracer      trace.Tracer
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithQueryLog records every search in the search log.
func WithQueryLog(q storage.QueryLog) Option {
	return func(e *Engine) { e.queryLog = q }
}

// WithTTLs overrides the cache lifetimes of search results and single decisions.
// Zero values keep the defaults.
func WithTTLs(search, decision time.Duration) Option {
	return func(e *Engine) {
		if search > 0 {
			e.searchTTL = search
		}
		if decision > 0 {
			e.decisionTTL = decision
		}
	}
}

// WithPartialTTL sets the cache lifetime of results some sources failed to
// contribute to. Zero keeps the default; a negative value disables caching them.
func WithPartialTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d != 0 {
			e.partialTTL = d
		}
	}
}

// WithTracer replaces the globally registered tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates a search engine with the given dependencies. cache and
// ingester may be nil.
func NewEngine(
	registry *sources.Registry,
	store storage.DecisionStore,
	cache storage.Cache,
	ingester *ingest.Ingester,
	cfg *config.SearchConfig,
	opts ...Option,
) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	e := &Engine{
		registry:    registry,
		store:       store,
		cache:       cache,
		ingester:    ingester,
		config:      cfg,
		searchTTL:   DefaultSearchTTL,
		partialTTL:  DefaultPartialTTL,
		decisionTTL: DefaultDecisionTTL,
		tracer:      otel.Tracer(tracerName),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sourceOutcome is written by exactly one fan-out goroutine.
type sourceOutcome struct {
	result   *sources.Result
	err      error
	duration time.Duration
}

// Search runs one query. queryType names the caller (tool name) in the search log.
// Individual source failures degrade the result and are reported in Sources; only
// the failure of every selected source is an error. Cancelling ctx aborts the
// outstanding upstream calls.
func (e *Engine) Search(ctx context.Context, filters models.SearchFilters, queryType string) (*models.SearchResponse, error) {
	start := time.Now()
	f := filters
	if err := ProcessFilters(&f, e.config); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("search.court_level", string(f.CourtLevel)),
		attribute.Int("search.limit", f.Limit),
		attribute.String("search.query_type", queryType),
	))
	defer span.End()

	key := CacheKey(&f)
	if cached, ok := e.cached(ctx, key); ok {
		cached.FromCache = true
		cached.QueryTime = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.Bool("search.from_cache", true))
		e.logQuery(ctx, &f, queryType, cached)
		return cached, nil
	}

	clients, err := e.registry.Select(&f)
	if err != nil {
		return nil, err
	}

	outcomes := e.fanOut(ctx, clients, sources.FiltersFrom(&f))
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, fmt.Errorf("search cancelled: %w", err)
	}

	resp := &models.SearchResponse{Query: f.Query}
	var (
		sets [][]*models.Decision
		errs []error
	)
	for i, c := range clients {
		o := outcomes[i]
		status := models.SourceStatus{Source: c.Name(), DurationMs: o.duration.Milliseconds()}
		if o.err != nil {
			status.Error = o.err.Error()
			errs = append(errs, o.err)
			e.logger.Warn("source failed, omitting from result",
				zap.String("source", c.Name()),
				zap.Duration("duration", o.duration),
				zap.Error(o.err),
			)
		} else {
			status.Count = len(o.result.Decisions)
			status.Total = o.result.Total
			resp.UpstreamTotal += o.result.Total
			sets = append(sets, o.result.Decisions)
		}
		resp.Sources = append(resp.Sources, status)
	}
	if len(errs) == len(clients) {
		err := fmt.Errorf("%w: %w", models.ErrAllSourcesFailed, errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all sources failed")
		return nil, err
	}

	merged := Merge(sets...)
	if e.ingester != nil && len(merged) > 0 {
		rep := e.ingester.Ingest(ctx, merged)
		if rep.Failed > 0 {
			e.logger.Warn("some decisions were not persisted", zap.Int("failed", rep.Failed), zap.Int("stored", rep.Stored))
		}
	}

	resp.Facets = ComputeFacets(merged)
	resp.Total = len(merged)
	if len(merged) > f.Limit {
		merged = merged[:f.Limit]
	}
	resp.Decisions = merged
	if resp.Decisions == nil {
		resp.Decisions = []*models.Decision{}
	}

	ttl := e.searchTTL
	if resp.Partial() {
		ttl = min(e.partialTTL, e.searchTTL)
	}
	if e.cache != nil && ttl > 0 {
		if err := storage.SetJSON(ctx, e.cache, key, resp, ttl, models.CacheTypeSearch); err != nil {
			e.logger.Warn("search cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Bool("search.from_cache", false),
		attribute.Int("search.total", resp.Total),
		attribute.Bool("search.partial", resp.Partial()),
	)
	e.logQuery(ctx, &f, queryType, resp)
	return resp, nil
}

func (e *Engine) cached(ctx context.Context, key string) (*models.SearchResponse, bool) {
	if e.cache == nil {
		return nil, false
	}
	resp, ok, err := storage.GetJSON[*models.SearchResponse](ctx, e.cache, key)
	if err != nil {
		e.logger.Warn("search cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok || resp == nil {
		return nil, false
	}
	return resp, true
}

// fanOut queries every client concurrently. Each goroutine writes only its own
// slot; errors are collected per source instead of cancelling the group.
func (e *Engine) fanOut(ctx context.Context, clients []sources.Client, f sources.Filters) []sourceOutcome {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	outcomes := make([]sourceOutcome, len(clients))
	var g errgroup.Group
	if e.config.MaxConcurrency > 0 {
		g.SetLimit(e.config.MaxConcurrency)
	}
	for i, c := range clients {
		g.Go(func() error {
			ctx, span := e.tracer.Start(ctx, "source."+c.Name()+".search", trace.WithAttributes(
				attribute.String("source.name", c.Name()),
				attribute.String("source.court_level", string(c.CourtLevel())),
			))
			defer span.End()

			began := time.Now()
			res, err := c.Search(ctx, f)
			if err == nil && res == nil {
				res = &sources.Result{}
			}
			outcomes[i] = sourceOutcome{result: res, err: err, duration: time.Since(began)}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.Int("source.count", len(res.Decisions)))
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Engine) logQuery(ctx context.Context, f *models.SearchFilters, queryType string, resp *models.SearchResponse) {
	if e.queryLog == nil {
		return
	}
	entry := &models.SearchQueryLog{
		QueryText:       f.Query,
		QueryType:       queryType,
		Filters:         filtersLog(f),
		ResultCount:     len(resp.Decisions),
		ExecutionTimeMs: resp.QueryTime,
	}
	if err := e.queryLog.RecordQuery(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("search log write failed", zap.Error(err))
	}
}

// GetDecision returns one decision: from the cache, then the store, then the
// owning source (whose answer is persisted). A decision nobody knows is
// models.ErrNotFound.
func (e *Engine) GetDecision(ctx context.Context, id string) (*models.Decision, error) {
	if id == "" {
		return nil, models.NewValidationError("decision_id", "is required")
	}
	ctx, span := e.tracer.Start(ctx, "search.GetDecision", trace.WithAttributes(attribute.String("decision.id", id)))
	defer span.End()

	key := models.CacheTypeDecision + ":" + id
	if e.cache != nil {
		d, ok, err := storage.GetJSON[*models.Decision](ctx, e.cache, key)
		if err != nil {
			e.logger.Warn("decision cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok && d != nil {
			return d, nil
		}
	}

	d, err := e.store.Get(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound):
		d, err = e.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("get decision %s: %w", id, err)
	}

	if e.cache != nil {
		if err := storage.SetJSON(ctx, e.cache, key, d, e.decisionTTL, models.CacheTypeDecision); err != nil {
			e.logger.Warn("decision cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return d, nil
}

func (e *Engine) fetch(ctx context.Context, id string) (*models.Decision, error) {
	if e.registry == nil {
		return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	c, ok := e.registry.ForDecision(id)
	if !ok {
		return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	d, err := c.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch decision %s: %w", id, err)
	}
	if e.ingester != nil {
		e.ingester.Ingest(ctx, []*models.Decision{d})
	}
	return d, nil
}
