package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

// ProcessFilters validates the filters and applies the configured default and
// maximum limit. Filters are normalized in place.
func ProcessFilters(f *models.SearchFilters, cfg *config.SearchConfig) error {
	if f.Limit == 0 && cfg != nil && cfg.DefaultLimit > 0 {
		f.Limit = cfg.DefaultLimit
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if cfg != nil && cfg.MaxLimit > 0 && f.Limit > cfg.MaxLimit {
		f.Limit = cfg.MaxLimit
	}
	return nil
}

// cacheKeyFields is the canonical form hashed into a cache key. Field order is
// fixed by the struct, set-like slices are already sorted by Validate.
type cacheKeyFields struct {
	Query      string   `json:"q"`
	CourtLevel string   `json:"level"`
	Cantons    []string `json:"cantons"`
	Language   string   `json:"lang"`
	DateFrom   string   `json:"from"`
	DateTo     string   `json:"to"`
	LegalAreas []string `json:"areas"`
	Limit      int      `json:"limit"`
}

// CacheKey derives the cache key of normalized filters. Logically identical
// queries map to the same key regardless of element order or whitespace. Letter
// case is kept because the query and legal areas reach the sources verbatim.
func CacheKey(f *models.SearchFilters) string {
	k := cacheKeyFields{
		Query:      f.Query,
		CourtLevel: string(f.CourtLevel),
		Language:   string(f.Language),
		DateFrom:   models.FormatDate(f.DateFrom),
		DateTo:     models.FormatDate(f.DateTo),
		Limit:      f.Limit,
	}
	for _, c := range f.Cantons {
		k.Cantons = append(k.Cantons, string(c))
	}
	for _, a := range f.LegalAreas {
		k.LegalAreas = append(k.LegalAreas, a)
	}
	sort.Strings(k.LegalAreas)
	raw, _ := json.Marshal(k)
	sum := sha256.Sum256(raw)
	return models.CacheTypeSearch + ":" + hex.EncodeToString(sum[:])
}

// filtersLog flattens filters for the search log.
func filtersLog(f *models.SearchFilters) map[string]any {
	m := map[string]any{
		"court_level": string(f.CourtLevel),
		"limit":       f.Limit,
	}
	if len(f.Cantons) > 0 {
		cantons := make([]string, len(f.Cantons))
		for i, c := range f.Cantons {
			cantons[i] = string(c)
		}
		m["cantons"] = cantons
	}
	if f.Language != "" {
		m["language"] = string(f.Language)
	}
	if !f.DateFrom.IsZero() {
		m["date_from"] = models.FormatDate(f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		m["date_to"] = models.FormatDate(f.DateTo)
	}
	if len(f.LegalAreas) > 0 {
		m["legal_areas"] = f.LegalAreas
	}
	return m
}
