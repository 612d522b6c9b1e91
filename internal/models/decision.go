// Package models defines the canonical decision model, search filters, and responses
// shared by sources, storage, search, and analytics.
package models

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/entscheid/pkg/utils"
)

// CourtLevel distinguishes the federal supreme court from cantonal courts.
type CourtLevel string

const (
	CourtLevelFederal  CourtLevel = "federal"
	CourtLevelCantonal CourtLevel = "cantonal"
	// CourtLevelAll is only valid in search filters.
	CourtLevelAll CourtLevel = "all"
)

// Valid reports whether l is a level a stored decision can have.
func (l CourtLevel) Valid() bool {
	return l == CourtLevelFederal || l == CourtLevelCantonal
}

// DateLayout is the ISO calendar date format used at every boundary.
const DateLayout = "2006-01-02"

// Decision is a single judicial ruling normalized into the canonical schema.
type Decision struct {
	ID               string     `json:"decision_id"`
	CourtLevel       CourtLevel `json:"court_level"`
	Canton           Canton     `json:"canton,omitempty"`
	Citation         string     `json:"citation,omitempty"`
	Title            string     `json:"title"`
	Summary          string     `json:"summary,omitempty"`
	FullText         string     `json:"full_text,omitempty"`
	DecisionDate     time.Time  `json:"decision_date"`
	Language         Language   `json:"language"`
	LegalAreas       []string   `json:"legal_areas,omitempty"`
	Chamber          string     `json:"chamber,omitempty"`
	BGEReference     string     `json:"bge_reference,omitempty"`
	SourceURL        string     `json:"source_url,omitempty"`
	RelatedDecisions []string   `json:"related_decisions,omitempty"`
	LastFetchedAt    time.Time  `json:"last_fetched_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate checks the invariants every stored decision must satisfy.
func (d *Decision) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return NewValidationError("decision_id", "is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if !d.CourtLevel.Valid() {
		return NewValidationError("court_level", "must be federal or cantonal, got %q", d.CourtLevel)
	}
	switch d.CourtLevel {
	case CourtLevelCantonal:
		if d.Canton == "" {
			return NewValidationError("canton", "is required for cantonal decisions")
		}
		if _, err := ParseCanton(string(d.Canton)); err != nil {
			return err
		}
		if d.Chamber != "" || d.BGEReference != "" {
			return NewValidationError("chamber", "chamber and bge_reference are federal-only fields")
		}
	case CourtLevelFederal:
		if d.Canton != "" {
			return NewValidationError("canton", "must be empty for federal decisions")
		}
	}
	if !d.Language.Valid() {
		return NewValidationError("language", "unsupported language %q", d.Language)
	}
	if d.DecisionDate.IsZero() {
		return NewValidationError("decision_date", "is required")
	}
	return nil
}

// Normalize puts the decision in its canonical stored form: trimmed strings,
// date-only decision date, millisecond UTC timestamps, and set-like slices.
func (d *Decision) Normalize() {
	d.ID = strings.TrimSpace(d.ID)
	d.Citation = strings.TrimSpace(d.Citation)
	d.Title = strings.TrimSpace(d.Title)
	d.Chamber = strings.TrimSpace(d.Chamber)
	d.BGEReference = CanonicalBGE(d.BGEReference)
	d.DecisionDate = DateOnly(d.DecisionDate)
	d.LegalAreas = NormalizeLegalAreas(d.LegalAreas)
	d.RelatedDecisions = NormalizeIDs(d.RelatedDecisions, d.ID)
	d.LastFetchedAt = Timestamp(d.LastFetchedAt)
	d.CreatedAt = Timestamp(d.CreatedAt)
	d.UpdatedAt = Timestamp(d.UpdatedAt)
}

// IDPrefix returns the source prefix of the decision id (the part before the first '-').
func (d *Decision) IDPrefix() string {
	return IDPrefix(d.ID)
}

// IDPrefix returns the routing prefix of a canonical decision id.
func IDPrefix(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return ""
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Timestamp normalizes t to UTC with millisecond precision, matching what storage keeps.
func Timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// ParseDate parses an ISO calendar date. Empty input yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError("date", "%q is not an ISO date (YYYY-MM-DD)", s)
	}
	return t, nil
}

// FormatDate renders t as an ISO date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// bgeRefRe matches a whole leading-decision reference in any of its three
// language forms: BGE (de), ATF (fr), DTF (it).
var bgeRefRe = regexp.MustCompile(`^(?i:BGE|ATF|DTF) (\d{1,3}) (Ia|Ib|II|III|IV|V|I) (\d{1,4})$`)

// CanonicalBGE returns the single stored form of a leading-decision reference:
// "ATF 140 III 433" and "DTF  140 III 433" both become "BGE 140 III 433". Runs
// of whitespace collapse to one space; other strings are returned trimmed.
func CanonicalBGE(ref string) string {
	ref = strings.Join(strings.Fields(ref), " ")
	m := bgeRefRe.FindStringSubmatch(ref)
	if m == nil {
		return ref
	}
	return "BGE " + m[1] + " " + m[2] + " " + m[3]
}

// NormalizeLegalAreas trims, de-duplicates case-insensitively and sorts legal-area tags.
func NormalizeLegalAreas(areas []string) []string {
	if len(areas) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(areas))
	out := make([]string, 0, len(areas))
	for _, a := range areas {
		a = strings.Join(strings.Fields(a), " ")
		if a == "" {
			continue
		}
		k := utils.Fold(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// NormalizeIDs trims, de-duplicates and sorts decision ids, dropping self.
func NormalizeIDs(ids []string, self string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == self {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// DecisionPatch holds the mutable fields of an update. Nil fields are left unchanged.
type DecisionPatch struct {
	Citation     *string
	Title        *string
	Summary      *string
	FullText     *string
	DecisionDate *time.Time
	Language     *Language
	LegalAreas   *[]string
	Chamber      *string
	BGEReference *string
	SourceURL    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p DecisionPatch) IsEmpty() bool {
	return p.Citation == nil && p.Title == nil && p.Summary == nil && p.FullText == nil &&
		p.DecisionDate == nil && p.Language == nil && p.LegalAreas == nil &&
		p.Chamber == nil && p.BGEReference == nil && p.SourceURL == nil
}

// SortByDateDesc orders decisions most recent first, ties broken by id for determinism.
func SortByDateDesc(ds []*Decision) {
	sort.SliceStable(ds, func(i, j int) bool {
		if !ds[i].DecisionDate.Equal(ds[j].DecisionDate) {
			return ds[i].DecisionDate.After(ds[j].DecisionDate)
		}
		return ds[i].ID < ds[j].ID
	})
}
