package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/keyword"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/storage"
)

type fakeEngine struct {
	store     storage.DecisionStore
	decisions []*models.Decision
	err       error
	searches  int
	last      models.SearchFilters
}

func (e *fakeEngine) Search(ctx context.Context, f models.SearchFilters, queryType string) (*models.SearchResponse, error) {
	e.searches++
	e.last = f
	if e.err != nil {
		return nil, e.err
	}
	return &models.SearchResponse{Decisions: e.decisions, Total: len(e.decisions)}, nil
}

func (e *fakeEngine) GetDecision(ctx context.Context, id string) (*models.Decision, error) {
	return e.store.Get(ctx, id)
}

type testEnv struct {
	store  *storage.SQLStore
	index  *keyword.BleveIndex
	engine *fakeEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	idx, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return &testEnv{store: store, index: idx, engine: &fakeEngine{store: store}}
}

func (env *testEnv) analyzer(cfg *config.AnalyticsConfig) *Analyzer {
	return NewAnalyzer(env.engine, env.store, env.index, storage.NewSQLCache(env.store), cfg,
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
}

func (env *testEnv) put(t *testing.T, ds ...*models.Decision) {
	t.Helper()
	for _, d := range ds {
		if err := env.store.Upsert(context.Background(), d); err != nil {
			t.Fatalf("Upsert %s: %v", d.ID, err)
		}
		if err := env.index.Index(context.Background(), d); err != nil {
			t.Fatalf("Index %s: %v", d.ID, err)
		}
	}
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func federal(id, title, summary, day string, areas ...string) *models.Decision {
	return &models.Decision{
		ID:           id,
		CourtLevel:   models.CourtLevelFederal,
		Title:        title,
		Summary:      summary,
		DecisionDate: date(day),
		Language:     models.LanguageGerman,
		LegalAreas:   areas,
	}
}

func cantonal(id string, canton models.Canton, title, summary, day string, areas ...string) *models.Decision {
	return &models.Decision{
		ID:           id,
		CourtLevel:   models.CourtLevelCantonal,
		Canton:       canton,
		Title:        title,
		Summary:      summary,
		DecisionDate: date(day),
		Language:     models.LanguageGerman,
		LegalAreas:   areas,
	}
}
