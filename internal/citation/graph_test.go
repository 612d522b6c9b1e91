package citation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/storage"
)

type countingStore struct {
	storage.DecisionStore
	calls int
}

func (c *countingStore) FindRelated(ctx context.Context, id string, limit int) ([]*models.Decision, error) {
	c.calls++
	return c.DecisionStore.FindRelated(ctx, id, limit)
}

func newTestStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func decision(id, citation string, date time.Time, related ...string) *models.Decision {
	return &models.Decision{
		ID:               id,
		CourtLevel:       models.CourtLevelFederal,
		Citation:         citation,
		Title:            "Urteil " + citation,
		DecisionDate:     date,
		Language:         models.LanguageGerman,
		RelatedDecisions: related,
	}
}

func TestGraphFindRelated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day := func(y int) time.Time { return time.Date(y, 6, 1, 0, 0, 0, 0, time.UTC) }

	for _, d := range []*models.Decision{
		decision("BG-1", "6B_1/2021", day(2021), "6B_2/2019"),
		decision("BG-2", "6B_2/2019", day(2019)),
		decision("BG-3", "6B_3/2022", day(2022), "BG-1"),
		decision("BG-4", "6B_4/2018", day(2018)),
	} {
		if err := store.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert %s: %v", d.ID, err)
		}
	}

	counting := &countingStore{DecisionStore: store}
	g := NewGraph(counting, storage.NewSQLCache(store), time.Hour, nil)

	related, err := g.FindRelated(ctx, "BG-1", 10)
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	var ids []string
	for _, d := range related {
		ids = append(ids, d.ID)
	}
	if len(ids) != 2 || ids[0] != "BG-3" || ids[1] != "BG-2" {
		t.Fatalf("related = %v, want [BG-3 BG-2]", ids)
	}

	if _, err := g.FindRelated(ctx, "BG-1", 10); err != nil {
		t.Fatalf("FindRelated (cached): %v", err)
	}
	if counting.calls != 1 {
		t.Errorf("store calls = %d, want 1 (second call cached)", counting.calls)
	}

	limited, err := g.FindRelated(ctx, "BG-1", 1)
	if err != nil || len(limited) != 1 || limited[0].ID != "BG-3" {
		t.Fatalf("limited = %v, %v", limited, err)
	}

	unknown, err := g.FindRelated(ctx, "BG-404", 10)
	if err != nil {
		t.Fatalf("FindRelated unknown: %v", err)
	}
	if unknown == nil || len(unknown) != 0 {
		t.Errorf("unknown id = %v, want empty non-nil list", unknown)
	}

	if _, err := g.FindRelated(ctx, "", 10); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty id err = %v", err)
	}
}

func TestGraphWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counting := &countingStore{DecisionStore: store}
	g := NewGraph(counting, nil, 0, nil)
	for range 2 {
		if _, err := g.FindRelated(ctx, "BG-1", 5); err != nil {
			t.Fatalf("FindRelated: %v", err)
		}
	}
	if counting.calls != 2 {
		t.Errorf("store calls = %d, want 2", counting.calls)
	}
}

func TestGraphResolvesFrenchAndItalianReferences(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day := func(y int) time.Time { return time.Date(y, 6, 1, 0, 0, 0, 0, time.UTC) }

	leading := decision("BG-a", "4A_10/2014", day(2014))
	leading.Language = models.LanguageFrench
	leading.BGEReference = "ATF 140 III 433"
	citing := decision("BG-b", "4A_20/2020", day(2020))
	citing.Language = models.LanguageFrench
	citing.Summary = "Selon l'ATF 140 III 433, le bail est résilié."
	italian := decision("BG-c", "4A_30/2021", day(2021))
	italian.Language = models.LanguageItalian
	italian.FullText = "Secondo la DTF 140  III 433 la disdetta è valida."

	for _, d := range []*models.Decision{leading, citing, italian} {
		if err := store.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert %s: %v", d.ID, err)
		}
		if err := store.AddRelations(ctx, Edges(d)); err != nil {
			t.Fatalf("AddRelations %s: %v", d.ID, err)
		}
	}

	stored, err := store.Get(ctx, "BG-a")
	if err != nil {
		t.Fatal(err)
	}
	if stored.BGEReference != "BGE 140 III 433" {
		t.Errorf("stored BGEReference = %q", stored.BGEReference)
	}

	related, err := NewGraph(store, nil, 0, nil).FindRelated(ctx, "BG-a", 5)
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	var ids []string
	for _, d := range related {
		ids = append(ids, d.ID)
	}
	if len(ids) != 2 || ids[0] != "BG-c" || ids[1] != "BG-b" {
		t.Errorf("related = %v, want [BG-c BG-b]", ids)
	}
}
