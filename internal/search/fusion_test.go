package search

import (
	"testing"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
)

func dec(id string, level models.CourtLevel, canton models.Canton, date string) *models.Decision {
	d, _ := time.Parse(models.DateLayout, date)
	return &models.Decision{
		ID:           id,
		CourtLevel:   level,
		Canton:       canton,
		Title:        "Urteil " + id,
		DecisionDate: d,
		Language:     models.LanguageGerman,
	}
}

func TestMerge(t *testing.T) {
	federal := []*models.Decision{
		dec("BG-2", models.CourtLevelFederal, "", "2021-01-01"),
		dec("BG-1", models.CourtLevelFederal, "", "2023-01-01"),
	}
	cantonal := []*models.Decision{
		dec("ZH-1", models.CourtLevelCantonal, "ZH", "2021-01-01"),
		nil,
		dec("BG-1", models.CourtLevelFederal, "", "2023-01-01"),
	}
	merged := Merge(federal, cantonal)
	want := []string{"BG-1", "BG-2", "ZH-1"}
	if len(merged) != len(want) {
		t.Fatalf("merged %d decisions, want %d", len(merged), len(want))
	}
	for i, id := range want {
		if merged[i].ID != id {
			t.Errorf("merged[%d] = %s, want %s", i, merged[i].ID, id)
		}
	}
	if Merge() != nil {
		t.Error("merging nothing should yield nil")
	}
}

func TestComputeFacets(t *testing.T) {
	f := ComputeFacets([]*models.Decision{
		dec("BG-1", models.CourtLevelFederal, "", "2021-01-01"),
		dec("ZH-1", models.CourtLevelCantonal, "ZH", "2021-01-01"),
		dec("ZH-2", models.CourtLevelCantonal, "ZH", "2021-01-01"),
		dec("BE-1", models.CourtLevelCantonal, "BE", "2021-01-01"),
	})
	if f.ByCourtLevel[models.CourtLevelFederal] != 1 || f.ByCourtLevel[models.CourtLevelCantonal] != 3 {
		t.Errorf("by court level = %v", f.ByCourtLevel)
	}
	if len(f.ByCanton) != 2 || f.ByCanton["ZH"] != 2 || f.ByCanton["BE"] != 1 {
		t.Errorf("by canton = %v", f.ByCanton)
	}
}
