// Package sources implements the uniform client contract over the federal and
// cantonal court APIs. Clients translate filters into native query parameters,
// parse responses into canonical decisions and retry transient failures. They
// never persist anything.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
)

// Client is implemented by every upstream court source.
type Client interface {
	// Name identifies the source in logs and per-source status reports.
	Name() string
	// Prefix is the decision-id prefix owned by this source.
	Prefix() string
	CourtLevel() models.CourtLevel
	// Canton is empty for the federal source.
	Canton() models.Canton
	Search(ctx context.Context, f Filters) (*Result, error)
	// Fetch returns one decision by canonical id, or an error matching models.ErrNotFound.
	Fetch(ctx context.Context, id string) (*models.Decision, error)
}

// Filters are the uniform search filters every source understands.
type Filters struct {
	Query      string
	LegalAreas []string
	DateFrom   time.Time
	DateTo     time.Time
	Language   models.Language
	Limit      int
}

// FiltersFrom projects normalized search filters onto the source contract.
func FiltersFrom(f *models.SearchFilters) Filters {
	return Filters{
		Query:      f.Query,
		LegalAreas: f.LegalAreas,
		DateFrom:   f.DateFrom,
		DateTo:     f.DateTo,
		Language:   f.Language,
		Limit:      f.Limit,
	}
}

// Result is what one source returned for one search.
type Result struct {
	Decisions []*models.Decision
	// Total is the upstream's own match count, which may exceed len(Decisions).
	Total int
}

// ErrMalformedResponse marks payloads that could not be parsed.
var ErrMalformedResponse = errors.New("malformed response")

// SourceError is an upstream failure. Permanent errors (4xx other than 408/429,
// unparseable payloads) are never retried.
type SourceError struct {
	Source     string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s: http %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the upstream status, or 0 for transport failures.
func (e *SourceError) HTTPStatusCode() int { return e.StatusCode }
