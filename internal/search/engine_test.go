package search

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/ingest"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/sources"
	"github.com/hyperjump/entscheid/internal/storage"
)

type fakeSource struct {
	name      string
	level     models.CourtLevel
	canton    models.Canton
	decisions []*models.Decision
	err       error
	block     bool
	searches  atomic.Int32
	fetches   atomic.Int32
}

func (s *fakeSource) Name() string                  { return s.name }
func (s *fakeSource) Prefix() string                { return s.name }
func (s *fakeSource) CourtLevel() models.CourtLevel { return s.level }
func (s *fakeSource) Canton() models.Canton         { return s.canton }

func (s *fakeSource) Search(ctx context.Context, f sources.Filters) (*sources.Result, error) {
	s.searches.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	// Hand out copies so ingest normalization never touches the fixtures.
	out := make([]*models.Decision, len(s.decisions))
	for i, d := range s.decisions {
		c := *d
		out[i] = &c
	}
	return &sources.Result{Decisions: out, Total: len(out) + 10}, nil
}

func (s *fakeSource) Fetch(ctx context.Context, id string) (*models.Decision, error) {
	s.fetches.Add(1)
	for _, d := range s.decisions {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, &sources.SourceError{Source: s.name, StatusCode: 404, Permanent: true, Err: models.ErrNotFound}
}

type fixture struct {
	engine  *Engine
	store   *storage.SQLStore
	federal *fakeSource
	zurich  *fakeSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	federal := &fakeSource{
		name:  "BG",
		level: models.CourtLevelFederal,
		decisions: []*models.Decision{
			dec("BG-1", models.CourtLevelFederal, "", "2022-03-01"),
			dec("BG-2", models.CourtLevelFederal, "", "2019-07-15"),
		},
	}
	zurich := &fakeSource{
		name:   "ZH",
		level:  models.CourtLevelCantonal,
		canton: "ZH",
		decisions: []*models.Decision{
			dec("ZH-1", models.CourtLevelCantonal, "ZH", "2023-01-10"),
			dec("ZH-2", models.CourtLevelCantonal, "ZH", "2020-05-05"),
			dec("ZH-3", models.CourtLevelCantonal, "ZH", "2022-03-01"),
		},
	}
	registry := sources.NewRegistry(federal, zurich)
	engine := NewEngine(registry, store, storage.NewSQLCache(store), ingest.New(store, nil),
		&config.SearchConfig{MaxConcurrency: 4}, WithQueryLog(store))
	return &fixture{engine: engine, store: store, federal: federal, zurich: zurich}
}

func ids(ds []*models.Decision) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestEngineSearchMergesAllSources(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.engine.Search(ctx, models.SearchFilters{CourtLevel: models.CourtLevelAll}, "search_decisions")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"ZH-1", "BG-1", "ZH-3", "ZH-2", "BG-2"}
	got := ids(resp.Decisions)
	if len(got) != len(want) {
		t.Fatalf("decisions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("decisions = %v, want %v", got, want)
		}
	}
	if resp.FromCache {
		t.Error("first search must not come from cache")
	}
	if resp.Facets.ByCourtLevel[models.CourtLevelFederal] != 2 || resp.Facets.ByCourtLevel[models.CourtLevelCantonal] != 3 {
		t.Errorf("by court level = %v", resp.Facets.ByCourtLevel)
	}
	if len(resp.Facets.ByCanton) != 1 || resp.Facets.ByCanton["ZH"] != 3 {
		t.Errorf("by canton = %v", resp.Facets.ByCanton)
	}
	if resp.Total != 5 || resp.UpstreamTotal != 25 || resp.Partial() {
		t.Errorf("total=%d upstream=%d partial=%v", resp.Total, resp.UpstreamTotal, resp.Partial())
	}

	n, err := fx.store.CountAll(ctx)
	if err != nil || n != 5 {
		t.Errorf("persisted %d decisions (%v), want 5", n, err)
	}
	counts, err := fx.store.QueryCountsByType(ctx)
	if err != nil || counts["search_decisions"] != 1 {
		t.Errorf("query log = %v, %v", counts, err)
	}
}

func TestEngineSearchServesRepeatsFromCache(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	filters := models.SearchFilters{Query: "Haftung", CourtLevel: models.CourtLevelAll, Limit: 3}

	first, err := fx.engine.Search(ctx, filters, "search_decisions")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	filters.Query = "  Haftung "
	second, err := fx.engine.Search(ctx, filters, "search_decisions")
	if err != nil {
		t.Fatalf("Search (repeat): %v", err)
	}
	if !second.FromCache {
		t.Error("repeat must be served from cache")
	}
	if fx.federal.searches.Load() != 1 || fx.zurich.searches.Load() != 1 {
		t.Errorf("upstream calls = %d/%d, want 1/1", fx.federal.searches.Load(), fx.zurich.searches.Load())
	}
	if len(second.Decisions) != 3 || second.Total != first.Total {
		t.Errorf("cached response differs: %d decisions, total %d", len(second.Decisions), second.Total)
	}
	if second.Facets.ByCourtLevel[models.CourtLevelCantonal] != 3 {
		t.Errorf("cached facets = %v", second.Facets)
	}

	filters.Query = "HAFTUNG"
	third, err := fx.engine.Search(ctx, filters, "search_decisions")
	if err != nil {
		t.Fatalf("Search (other case): %v", err)
	}
	if third.FromCache || fx.federal.searches.Load() != 2 {
		t.Errorf("case variant served from cache=%v, federal calls = %d", third.FromCache, fx.federal.searches.Load())
	}
}

func TestEngineSearchSelectsSources(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	resp, err := fx.engine.Search(ctx, models.SearchFilters{CourtLevel: models.CourtLevelFederal}, "search_decisions")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Decisions) != 2 || fx.zurich.searches.Load() != 0 {
		t.Errorf("federal query reached cantonal source or lost results: %v", ids(resp.Decisions))
	}

	_, err = fx.engine.Search(ctx, models.SearchFilters{CourtLevel: models.CourtLevelCantonal, Cantons: []models.Canton{"GE"}}, "search_canton")
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("unconfigured canton err = %v, want invalid input", err)
	}
	_, err = fx.engine.Search(ctx, models.SearchFilters{Cantons: []models.Canton{"zh"}}, "search_canton")
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("lowercase canton err = %v, want invalid input", err)
	}
}

func TestEngineSearchToleratesPartialFailure(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.federal.err = &sources.SourceError{Source: "BG", StatusCode: 503, Err: errors.New("unavailable")}

	resp, err := fx.engine.Search(ctx, models.SearchFilters{}, "search_decisions")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Decisions) != 3 || !resp.Partial() {
		t.Fatalf("decisions=%v partial=%v", ids(resp.Decisions), resp.Partial())
	}
	var failed string
	for _, s := range resp.Sources {
		if s.Failed() {
			failed = s.Source
		}
	}
	if failed != "BG" {
		t.Errorf("failed source = %q, want BG", failed)
	}
}

func TestEngineSearchCachesPartialResultsBriefly(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.store.SetClock(func() time.Time { return now })
	fx.federal.err = &sources.SourceError{Source: "BG", StatusCode: 503, Err: errors.New("unavailable")}

	if _, err := fx.engine.Search(ctx, models.SearchFilters{Query: "Haftung"}, "search_decisions"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	again, err := fx.engine.Search(ctx, models.SearchFilters{Query: "Haftung"}, "search_decisions")
	if err != nil || !again.FromCache {
		t.Fatalf("repeat within the partial TTL: from cache=%v, err=%v", again != nil && again.FromCache, err)
	}

	fx.federal.err = nil
	now = now.Add(DefaultPartialTTL + time.Second)
	healed, err := fx.engine.Search(ctx, models.SearchFilters{Query: "Haftung"}, "search_decisions")
	if err != nil {
		t.Fatalf("Search after recovery: %v", err)
	}
	if healed.FromCache || healed.Partial() || len(healed.Decisions) != 5 {
		t.Errorf("from cache=%v partial=%v decisions=%v", healed.FromCache, healed.Partial(), ids(healed.Decisions))
	}

	// A complete result keeps the full search TTL.
	now = now.Add(DefaultPartialTTL + time.Second)
	full, err := fx.engine.Search(ctx, models.SearchFilters{Query: "Haftung"}, "search_decisions")
	if err != nil || !full.FromCache {
		t.Errorf("complete result not served from cache: %v", err)
	}
	if fx.federal.searches.Load() != 2 {
		t.Errorf("federal calls = %d, want 2", fx.federal.searches.Load())
	}
}

func TestEngineSearchAllSourcesFailed(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.federal.err = errors.New("federal down")
	fx.zurich.err = errors.New("zurich down")

	_, err := fx.engine.Search(ctx, models.SearchFilters{}, "search_decisions")
	if !errors.Is(err, models.ErrAllSourcesFailed) {
		t.Fatalf("err = %v, want all sources failed", err)
	}
	if !errors.Is(err, fx.zurich.err) {
		t.Errorf("per-source errors should be joined into %v", err)
	}
}

func TestEngineSearchEmptyResultIsNotAnError(t *testing.T) {
	fx := newFixture(t)
	fx.federal.decisions = nil
	fx.zurich.decisions = nil
	resp, err := fx.engine.Search(context.Background(), models.SearchFilters{}, "search_decisions")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Decisions == nil || len(resp.Decisions) != 0 || resp.Total != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestEngineSearchCancellation(t *testing.T) {
	fx := newFixture(t)
	fx.federal.block = true
	fx.zurich.block = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := fx.engine.Search(ctx, models.SearchFilters{}, "search_decisions")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not abort the fan-out")
	}
}

func TestEngineGetDecision(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	d, err := fx.engine.GetDecision(ctx, "ZH-2")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if d.ID != "ZH-2" || fx.zurich.fetches.Load() != 1 {
		t.Fatalf("got %s after %d fetches", d.ID, fx.zurich.fetches.Load())
	}
	if _, err := fx.store.Get(ctx, "ZH-2"); err != nil {
		t.Errorf("fetched decision was not persisted: %v", err)
	}

	if _, err := fx.engine.GetDecision(ctx, "ZH-2"); err != nil {
		t.Fatalf("GetDecision (cached): %v", err)
	}
	if fx.zurich.fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1", fx.zurich.fetches.Load())
	}

	for _, id := range []string{"ZH-404", "VD-1", "nonsense"} {
		if _, err := fx.engine.GetDecision(ctx, id); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetDecision(%s) err = %v, want not found", id, err)
		}
	}
	if _, err := fx.engine.GetDecision(ctx, ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty id err = %v", err)
	}
}
