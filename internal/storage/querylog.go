package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/entscheid/internal/models"
)

// RecordQuery appends q to the search log. ID and Timestamp are assigned when empty.
func (s *SQLStore) RecordQuery(ctx context.Context, q *models.SearchQueryLog) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = s.now()
	}
	q.Timestamp = models.Timestamp(q.Timestamp)
	filters := "{}"
	if len(q.Filters) > 0 {
		b, err := json.Marshal(q.Filters)
		if err != nil {
			return fmt.Errorf("failed to marshal filters: %w", err)
		}
		filters = string(b)
	}
	_, err := s.exec(ctx, s.db,
		`INSERT INTO search_queries (id, query_text, query_type, filters, result_count, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.QueryText, q.QueryType, filters, q.ResultCount, q.ExecutionTimeMs, toMillis(q.Timestamp))
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// PopularQueries returns the n most frequent non-empty query texts.
func (s *SQLStore) PopularQueries(ctx context.Context, n int) ([]models.PopularQuery, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.query(ctx, s.db,
		`SELECT query_text, COUNT(*) AS c FROM search_queries
		 WHERE query_text <> ''
		 GROUP BY query_text ORDER BY c DESC, query_text ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.PopularQuery
	for rows.Next() {
		var p models.PopularQuery
		if err := rows.Scan(&p.QueryText, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// QueryCountsByType returns the number of logged queries per query type.
func (s *SQLStore) QueryCountsByType(ctx context.Context) (map[string]int64, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT query_type, COUNT(*) FROM search_queries GROUP BY query_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// AverageExecutionTime returns the mean execution time in milliseconds, for one
// query type or for all when queryType is empty. Zero when nothing was logged.
func (s *SQLStore) AverageExecutionTime(ctx context.Context, queryType string) (float64, error) {
	query := `SELECT COALESCE(AVG(CAST(execution_time_ms AS DOUBLE PRECISION)), 0) FROM search_queries`
	var args []any
	if queryType != "" {
		query += ` WHERE query_type = ?`
		args = append(args, queryType)
	}
	var avg float64
	if err := s.queryRow(ctx, s.db, query, args...).Scan(&avg); err != nil {
		return 0, err
	}
	return avg, nil
}

// PruneQueries deletes log entries older than olderThan and returns how many were removed.
func (s *SQLStore) PruneQueries(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM search_queries WHERE created_at < ?`, toMillis(olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune queries: %w", err)
	}
	return res.RowsAffected()
}
