package search

import (
	"github.com/hyperjump/entscheid/internal/models"
)

// Merge combines the decisions of every source into one list, newest first with
// ties broken by id. A decision returned by more than one source is kept once.
func Merge(sets ...[]*models.Decision) []*models.Decision {
	seen := make(map[string]struct{})
	var merged []*models.Decision
	for _, set := range sets {
		for _, d := range set {
			if d == nil {
				continue
			}
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			merged = append(merged, d)
		}
	}
	models.SortByDateDesc(merged)
	return merged
}

// ComputeFacets counts decisions by court level and, for cantonal decisions, by canton.
func ComputeFacets(ds []*models.Decision) models.Facets {
	f := models.Facets{
		ByCourtLevel: make(map[models.CourtLevel]int),
		ByCanton:     make(map[models.Canton]int),
	}
	for _, d := range ds {
		f.ByCourtLevel[d.CourtLevel]++
		if d.CourtLevel == models.CourtLevelCantonal && d.Canton != "" {
			f.ByCanton[d.Canton]++
		}
	}
	return f
}
