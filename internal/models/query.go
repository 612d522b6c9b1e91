package models

import (
	"sort"
	"strings"
	"time"
)

const (
	// DefaultSearchLimit is applied when a query sets no limit.
	DefaultSearchLimit = 10
	// MaxSearchLimit caps the number of decisions a single query may request.
	MaxSearchLimit = 100
)

// SearchFilters is the normalized filter set of a decision search.
type SearchFilters struct {
	Query      string     `json:"query"`
	CourtLevel CourtLevel `json:"court_level"`
	Cantons    []Canton   `json:"cantons,omitempty"`
	Language   Language   `json:"language,omitempty"`
	DateFrom   time.Time  `json:"date_from,omitempty"`
	DateTo     time.Time  `json:"date_to,omitempty"`
	LegalAreas []string   `json:"legal_areas,omitempty"`
	Limit      int        `json:"limit"`
}

// Validate rejects malformed filters and normalizes the rest in place: the court
// level defaults to all, cantons and legal areas become sorted sets, the limit is
// defaulted and capped at MaxSearchLimit.
func (f *SearchFilters) Validate() error {
	f.Query = strings.Join(strings.Fields(f.Query), " ")
	switch f.CourtLevel {
	case "":
		f.CourtLevel = CourtLevelAll
	case CourtLevelAll, CourtLevelFederal, CourtLevelCantonal:
	default:
		return NewValidationError("court_level", "must be federal, cantonal or all, got %q", f.CourtLevel)
	}
	if f.CourtLevel == CourtLevelFederal && len(f.Cantons) > 0 {
		return NewValidationError("cantons", "cannot be combined with court_level federal")
	}
	seen := make(map[Canton]struct{}, len(f.Cantons))
	cantons := make([]Canton, 0, len(f.Cantons))
	for _, c := range f.Cantons {
		if _, err := ParseCanton(string(c)); err != nil {
			return err
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cantons = append(cantons, c)
	}
	sort.Slice(cantons, func(i, j int) bool { return cantons[i] < cantons[j] })
	f.Cantons = nil
	if len(cantons) > 0 {
		f.Cantons = cantons
	}
	if f.Language != "" && !f.Language.Valid() {
		return NewValidationError("language", "unsupported language %q", f.Language)
	}
	f.DateFrom = DateOnly(f.DateFrom)
	f.DateTo = DateOnly(f.DateTo)
	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() && f.DateFrom.After(f.DateTo) {
		return NewValidationError("date_from", "must not be after date_to")
	}
	f.LegalAreas = NormalizeLegalAreas(f.LegalAreas)
	if f.Limit < 0 {
		return NewValidationError("limit", "must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = DefaultSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	return nil
}

// SearchQueryLog is one append-only entry of the search analytics log.
type SearchQueryLog struct {
	ID              string         `json:"id"`
	QueryText       string         `json:"query_text"`
	QueryType       string         `json:"query_type"`
	Filters         map[string]any `json:"filters,omitempty"`
	ResultCount     int            `json:"result_count"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Timestamp       time.Time      `json:"timestamp"`
}

// PopularQuery aggregates log entries sharing the same query text.
type PopularQuery struct {
	QueryText string `json:"query_text"`
	Count     int64  `json:"count"`
}
