// Package keyword provides the full-text index over stored decisions. The index is
// a projection of the decision store: it can be dropped and rebuilt at any time.
package keyword

import (
	"context"

	"github.com/hyperjump/entscheid/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title field.
	// Values > 1 make title matches rank higher. Use 1.0 for no boost.
	TitleBoost float64
	// CourtLevel restricts hits to one court level when set.
	CourtLevel models.CourtLevel
	// Canton restricts hits to one canton when set.
	Canton models.Canton
	// Language restricts hits to one language when set.
	Language models.Language
}

// Index defines the full-text operations used by ingest and analytics.
type Index interface {
	Index(ctx context.Context, d *models.Decision) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error)
	SearchPhrase(ctx context.Context, phrase string, limit int) ([]Hit, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single keyword search hit.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
