package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/pkg/utils"
)

const decisionColumns = `decision_id, court_level, canton, citation, title, summary, full_text,
	decision_date, language, legal_areas, chamber, bge_reference, source_url,
	last_fetched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*models.Decision, error) {
	var (
		d                             models.Decision
		level, canton, lang, date     string
		areas                         string
		fetchedAt, createdAt, updated int64
	)
	if err := row.Scan(&d.ID, &level, &canton, &d.Citation, &d.Title, &d.Summary, &d.FullText,
		&date, &lang, &areas, &d.Chamber, &d.BGEReference, &d.SourceURL,
		&fetchedAt, &createdAt, &updated); err != nil {
		return nil, err
	}
	d.CourtLevel = models.CourtLevel(level)
	d.Canton = models.Canton(canton)
	d.Language = models.Language(lang)
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("decision %s: bad decision_date %q: %w", d.ID, date, err)
	}
	d.DecisionDate = t
	if areas != "" && areas != "[]" {
		if err := json.Unmarshal([]byte(areas), &d.LegalAreas); err != nil {
			return nil, fmt.Errorf("decision %s: failed to unmarshal legal_areas: %w", d.ID, err)
		}
	}
	d.LastFetchedAt = fromMillis(fetchedAt)
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updated)
	return &d, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

// searchText is the folded title and summary used for case-insensitive substring search.
func searchText(d *models.Decision) string {
	return utils.Fold(d.Title + "\n" + d.Summary)
}

// contentHash fingerprints the mutable fields so repeated identical upserts leave updated_at alone.
func contentHash(d *models.Decision) string {
	payload, _ := json.Marshal([]any{
		d.Citation, d.Title, d.Summary, d.FullText, models.FormatDate(d.DecisionDate),
		d.Language, d.LegalAreas, d.Chamber, d.BGEReference, d.SourceURL, d.RelatedDecisions,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func legalAreasJSON(areas []string) string {
	if len(areas) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(areas)
	return string(b)
}

func (s *SQLStore) queryDecisions(ctx context.Context, query string, args ...any) ([]*models.Decision, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadDeclared(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadDeclared fills RelatedDecisions with the declared outgoing edges of each decision.
func (s *SQLStore) loadDeclared(ctx context.Context, ds []*models.Decision) error {
	if len(ds) == 0 {
		return nil
	}
	byID := make(map[string]*models.Decision, len(ds))
	args := make([]any, 0, len(ds)+1)
	args = append(args, models.ProvenanceDeclared)
	for _, d := range ds {
		if _, ok := byID[d.ID]; !ok {
			byID[d.ID] = d
			args = append(args, d.ID)
		}
	}
	rows, err := s.query(ctx, s.db,
		`SELECT from_id, target FROM decision_relations
		 WHERE provenance = ? AND from_id IN (`+placeholders(len(args)-1)+`)
		 ORDER BY from_id, target`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var from, target string
		if err := rows.Scan(&from, &target); err != nil {
			return err
		}
		if d := byID[from]; d != nil {
			d.RelatedDecisions = append(d.RelatedDecisions, target)
		}
	}
	return rows.Err()
}

// Get returns a decision by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.Decision, error) {
	ds, err := s.queryDecisions(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE decision_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	return ds[0], nil
}

// GetMany returns the stored decisions among ids, most recent first. Unknown ids are skipped.
func (s *SQLStore) GetMany(ctx context.Context, ids []string) ([]*models.Decision, error) {
	ids = models.NormalizeIDs(ids, "")
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryDecisions(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE decision_id IN (`+placeholders(len(ids))+`)
		 ORDER BY decision_date DESC, decision_id ASC`, args...)
}

// Upsert creates d if its id is new, otherwise updates the mutable fields. It always
// refreshes last_fetched_at and replaces the declared outgoing edges. updated_at only
// moves when the content actually changed, so repeated identical input is a no-op
// apart from last_fetched_at.
func (s *SQLStore) Upsert(ctx context.Context, d *models.Decision) error {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return err
	}
	now := s.nowMillis()
	hash := contentHash(d)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var createdAt, updatedAt int64
		err := s.queryRow(ctx, tx,
			`INSERT INTO decisions (`+decisionColumns+`, search_text, content_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (decision_id) DO UPDATE SET
				citation = excluded.citation,
				title = excluded.title,
				summary = excluded.summary,
				full_text = excluded.full_text,
				decision_date = excluded.decision_date,
				language = excluded.language,
				legal_areas = excluded.legal_areas,
				chamber = excluded.chamber,
				bge_reference = excluded.bge_reference,
				source_url = excluded.source_url,
				search_text = excluded.search_text,
				last_fetched_at = excluded.last_fetched_at,
				updated_at = CASE WHEN decisions.content_hash = excluded.content_hash
					THEN decisions.updated_at ELSE excluded.updated_at END,
				content_hash = excluded.content_hash
			 RETURNING created_at, updated_at`,
			d.ID, string(d.CourtLevel), string(d.Canton), d.Citation, d.Title, d.Summary, d.FullText,
			models.FormatDate(d.DecisionDate), string(d.Language), legalAreasJSON(d.LegalAreas),
			d.Chamber, d.BGEReference, d.SourceURL, now, now, now, searchText(d), hash,
		).Scan(&createdAt, &updatedAt)
		if err != nil {
			return mapConflict(err, d)
		}
		d.CreatedAt = fromMillis(createdAt)
		d.UpdatedAt = fromMillis(updatedAt)
		d.LastFetchedAt = fromMillis(now)
		return s.replaceDeclared(ctx, tx, d.ID, d.RelatedDecisions, now)
	})
	if err != nil {
		return fmt.Errorf("upsert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLStore) replaceDeclared(ctx context.Context, tx *sql.Tx, id string, targets []string, now int64) error {
	if _, err := s.exec(ctx, tx,
		`DELETE FROM decision_relations WHERE from_id = ? AND provenance = ?`,
		id, models.ProvenanceDeclared); err != nil {
		return fmt.Errorf("clear declared edges: %w", err)
	}
	for _, target := range targets {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO decision_relations (from_id, target, kind, provenance, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (from_id, target, kind, provenance) DO NOTHING`,
			id, target, models.RelationCites, models.ProvenanceDeclared, now); err != nil {
			return fmt.Errorf("insert declared edge: %w", err)
		}
	}
	return nil
}

// CountAll returns the number of stored decisions across court levels.
func (s *SQLStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM decisions`).Scan(&n)
	return n, err
}

// ListCandidates returns the most recent decisions matching filter, for similarity scoring.
func (s *SQLStore) ListCandidates(ctx context.Context, filter CandidateFilter, limit int) ([]*models.Decision, error) {
	var (
		where []string
		args  []any
	)
	if filter.CourtLevel.Valid() {
		where = append(where, "court_level = ?")
		args = append(args, string(filter.CourtLevel))
	}
	if filter.Canton != "" {
		where = append(where, "canton = ?")
		args = append(args, string(filter.Canton))
	}
	if filter.Language != "" {
		where = append(where, "language = ?")
		args = append(args, string(filter.Language))
	}
	if filter.ExcludeID != "" {
		where = append(where, "decision_id <> ?")
		args = append(args, filter.ExcludeID)
	}
	query := `SELECT ` + decisionColumns + ` FROM decisions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY decision_date DESC, decision_id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryDecisions(ctx, query, args...)
}
