// Package storage persists decisions, citation edges, cache entries and the search
// log in a relational database (SQLite for development, PostgreSQL in production),
// and provides a Redis-backed alternative for the cache.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
)

// DecisionStore defines the decision and edge operations the rest of the system relies on.
type DecisionStore interface {
	Get(ctx context.Context, id string) (*models.Decision, error)
	GetMany(ctx context.Context, ids []string) ([]*models.Decision, error)
	Upsert(ctx context.Context, d *models.Decision) error
	AddRelations(ctx context.Context, edges []models.Relation) error
	FindRelated(ctx context.Context, id string, limit int) ([]*models.Decision, error)
	ListCandidates(ctx context.Context, filter CandidateFilter, limit int) ([]*models.Decision, error)
	CountAll(ctx context.Context) (int64, error)
}

// QueryLog is the append-only search analytics log.
type QueryLog interface {
	RecordQuery(ctx context.Context, q *models.SearchQueryLog) error
	PopularQueries(ctx context.Context, n int) ([]models.PopularQuery, error)
	QueryCountsByType(ctx context.Context) (map[string]int64, error)
	AverageExecutionTime(ctx context.Context, queryType string) (float64, error)
	PruneQueries(ctx context.Context, olderThan time.Time) (int64, error)
}

// CandidateFilter narrows the candidate set for similarity scoring.
// Zero fields do not filter.
type CandidateFilter struct {
	CourtLevel models.CourtLevel
	Canton     models.Canton
	Language   models.Language
	ExcludeID  string
}

var (
	_ DecisionStore = (*SQLStore)(nil)
	_ QueryLog      = (*SQLStore)(nil)
)
