package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/entscheid/internal/models"
)

// AddRelations inserts edges, ignoring ones that already exist. Self-edges and
// edges from unknown decisions are skipped.
func (s *SQLStore) AddRelations(ctx context.Context, edges []models.Relation) error {
	now := s.nowMillis()
	for _, e := range edges {
		e.FromID = strings.TrimSpace(e.FromID)
		e.Target = strings.TrimSpace(e.Target)
		if e.FromID == "" || e.Target == "" || e.FromID == e.Target {
			continue
		}
		if e.Kind == "" {
			e.Kind = models.RelationCites
		}
		if e.Provenance == "" {
			e.Provenance = models.ProvenanceMined
		}
		if _, err := s.exec(ctx, s.db,
			`INSERT INTO decision_relations (from_id, target, kind, provenance, created_at)
			 SELECT ?, ?, ?, ?, CAST(? AS BIGINT) WHERE EXISTS (SELECT 1 FROM decisions WHERE decision_id = ?)
			 ON CONFLICT (from_id, target, kind, provenance) DO NOTHING`,
			e.FromID, e.Target, e.Kind, e.Provenance, now, e.FromID); err != nil {
			return fmt.Errorf("add relation %s -> %s: %w", e.FromID, e.Target, err)
		}
	}
	return nil
}

// Relations returns the stored outgoing edges of id.
func (s *SQLStore) Relations(ctx context.Context, id string) ([]models.Relation, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT from_id, target, kind, provenance, created_at FROM decision_relations
		 WHERE from_id = ? ORDER BY target, kind, provenance`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Relation
	for rows.Next() {
		var r models.Relation
		var created int64
		if err := rows.Scan(&r.FromID, &r.Target, &r.Kind, &r.Provenance, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindRelated returns the neighbors of id in the citation graph: decisions it cites
// and decisions citing it, deduplicated, most recently decided first, truncated to
// limit (<= 0 means no limit). Edge targets are matched against decision ids,
// citations and BGE references. An unknown id yields an empty result.
func (s *SQLStore) FindRelated(ctx context.Context, id string, limit int) ([]*models.Decision, error) {
	self, err := s.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	outgoing, err := s.stringColumn(ctx,
		`SELECT DISTINCT target FROM decision_relations WHERE from_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("outgoing edges: %w", err)
	}

	neighbors := make(map[string]struct{})
	if len(outgoing) > 0 {
		args := make([]any, 0, 3*len(outgoing))
		for range 3 {
			for _, t := range outgoing {
				args = append(args, t)
			}
		}
		ph := placeholders(len(outgoing))
		ids, err := s.stringColumn(ctx,
			`SELECT decision_id FROM decisions
			 WHERE decision_id IN (`+ph+`) OR citation IN (`+ph+`) OR bge_reference IN (`+ph+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("resolve edge targets: %w", err)
		}
		for _, n := range ids {
			neighbors[n] = struct{}{}
		}
	}

	aliases := []any{self.ID}
	if self.Citation != "" {
		aliases = append(aliases, self.Citation)
	}
	if self.BGEReference != "" {
		aliases = append(aliases, self.BGEReference)
		// Rows written before references were canonicalized may still hold ATF/DTF.
		if canonical := models.CanonicalBGE(self.BGEReference); canonical != self.BGEReference {
			aliases = append(aliases, canonical)
		}
	}
	incoming, err := s.stringColumn(ctx,
		`SELECT DISTINCT from_id FROM decision_relations WHERE target IN (`+placeholders(len(aliases))+`)`,
		aliases...)
	if err != nil {
		return nil, fmt.Errorf("incoming edges: %w", err)
	}
	for _, n := range incoming {
		neighbors[n] = struct{}{}
	}
	delete(neighbors, self.ID)

	ids := make([]string, 0, len(neighbors))
	for n := range neighbors {
		ids = append(ids, n)
	}
	related, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	models.SortByDateDesc(related)
	if limit > 0 && len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

func (s *SQLStore) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
