package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/pkg/utils"
)

// DecisionRepository exposes the decision operations for a single court level.
// Federal and cantonal repositories share the same operation set.
type DecisionRepository struct {
	store *SQLStore
	level models.CourtLevel
}

// Decisions returns the repository for level.
func (s *SQLStore) Decisions(level models.CourtLevel) *DecisionRepository {
	return &DecisionRepository{store: s, level: level}
}

// Level returns the court level this repository is bound to.
func (r *DecisionRepository) Level() models.CourtLevel { return r.level }

func (r *DecisionRepository) find(ctx context.Context, where string, args ...any) ([]*models.Decision, error) {
	args = append([]any{string(r.level)}, args...)
	return r.store.queryDecisions(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE court_level = ?`+where, args...)
}

// Create inserts a new decision. Duplicate ids or citations yield a *models.ConflictError.
func (r *DecisionRepository) Create(ctx context.Context, d *models.Decision) error {
	d.Normalize()
	if d.CourtLevel == "" {
		d.CourtLevel = r.level
	}
	if d.CourtLevel != r.level {
		return models.NewValidationError("court_level", "%s repository cannot store %s decisions", r.level, d.CourtLevel)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	s := r.store
	now := s.nowMillis()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO decisions (`+decisionColumns+`, search_text, content_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, string(d.CourtLevel), string(d.Canton), d.Citation, d.Title, d.Summary, d.FullText,
			models.FormatDate(d.DecisionDate), string(d.Language), legalAreasJSON(d.LegalAreas),
			d.Chamber, d.BGEReference, d.SourceURL, now, now, now, searchText(d), contentHash(d),
		); err != nil {
			return mapConflict(err, d)
		}
		return s.replaceDeclared(ctx, tx, d.ID, d.RelatedDecisions, now)
	})
	if err != nil {
		return fmt.Errorf("create decision %s: %w", d.ID, err)
	}
	d.CreatedAt = fromMillis(now)
	d.UpdatedAt = d.CreatedAt
	d.LastFetchedAt = d.CreatedAt
	return nil
}

// FindByCitation returns the decision with the given human citation.
func (r *DecisionRepository) FindByCitation(ctx context.Context, citation string) (*models.Decision, error) {
	citation = strings.TrimSpace(citation)
	if citation == "" {
		return nil, models.NewValidationError("citation", "is required")
	}
	ds, err := r.find(ctx, ` AND citation = ?`, citation)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("citation %s: %w", citation, models.ErrNotFound)
	}
	return ds[0], nil
}

// FindByDateRange returns decisions with start <= decision_date <= end, most recent first.
func (r *DecisionRepository) FindByDateRange(ctx context.Context, start, end time.Time) ([]*models.Decision, error) {
	start, end = models.DateOnly(start), models.DateOnly(end)
	if start.IsZero() || end.IsZero() {
		return nil, models.NewValidationError("date_range", "start and end are required")
	}
	if start.After(end) {
		return nil, models.NewValidationError("date_range", "start must not be after end")
	}
	return r.find(ctx, ` AND decision_date >= ? AND decision_date <= ?
		ORDER BY decision_date DESC, decision_id ASC`,
		models.FormatDate(start), models.FormatDate(end))
}

// FindByChamber returns federal decisions of a chamber. Only valid on the federal repository.
func (r *DecisionRepository) FindByChamber(ctx context.Context, chamber string) ([]*models.Decision, error) {
	if r.level != models.CourtLevelFederal {
		return nil, models.NewValidationError("chamber", "only federal decisions have chambers")
	}
	return r.find(ctx, ` AND chamber = ? ORDER BY decision_date DESC, decision_id ASC`, strings.TrimSpace(chamber))
}

// FindByCanton returns decisions of a canton. Only valid on the cantonal repository.
func (r *DecisionRepository) FindByCanton(ctx context.Context, canton models.Canton) ([]*models.Decision, error) {
	if r.level != models.CourtLevelCantonal {
		return nil, models.NewValidationError("canton", "only cantonal decisions have cantons")
	}
	if _, err := models.ParseCanton(string(canton)); err != nil {
		return nil, err
	}
	return r.find(ctx, ` AND canton = ? ORDER BY decision_date DESC, decision_id ASC`, string(canton))
}

// FindByLanguage returns decisions written in lang.
func (r *DecisionRepository) FindByLanguage(ctx context.Context, lang models.Language) ([]*models.Decision, error) {
	if !lang.Valid() {
		return nil, models.NewValidationError("language", "unsupported language %q", lang)
	}
	return r.find(ctx, ` AND language = ? ORDER BY decision_date DESC, decision_id ASC`, string(lang))
}

// Search returns decisions whose title or summary contains text, ignoring case and
// Unicode normalization differences. A limit <= 0 returns every match.
func (r *DecisionRepository) Search(ctx context.Context, text string, limit int) ([]*models.Decision, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewValidationError("text", "is required")
	}
	where := ` AND search_text LIKE ? ESCAPE '\' ORDER BY decision_date DESC, decision_id ASC`
	args := []any{"%" + escapeLike(utils.Fold(text)) + "%"}
	if limit > 0 {
		where += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.find(ctx, where, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Update applies patch to the decision id and returns the updated row. An empty
// patch is a caller error.
func (r *DecisionRepository) Update(ctx context.Context, id string, patch models.DecisionPatch) (*models.Decision, error) {
	if patch.IsEmpty() {
		return nil, models.NewValidationError("patch", "update requires at least one field")
	}
	d, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPatch(d, patch)
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	s := r.store
	now := s.nowMillis()
	res, err := s.exec(ctx, s.db,
		`UPDATE decisions SET citation = ?, title = ?, summary = ?, full_text = ?, decision_date = ?,
			language = ?, legal_areas = ?, chamber = ?, bge_reference = ?, source_url = ?,
			search_text = ?, content_hash = ?, updated_at = ?
		 WHERE decision_id = ? AND court_level = ?`,
		d.Citation, d.Title, d.Summary, d.FullText, models.FormatDate(d.DecisionDate),
		string(d.Language), legalAreasJSON(d.LegalAreas), d.Chamber, d.BGEReference, d.SourceURL,
		searchText(d), contentHash(d), now, d.ID, string(r.level))
	if err != nil {
		return nil, fmt.Errorf("update decision %s: %w", id, mapConflict(err, d))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	d.UpdatedAt = fromMillis(now)
	return d, nil
}

func applyPatch(d *models.Decision, p models.DecisionPatch) {
	if p.Citation != nil {
		d.Citation = *p.Citation
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.FullText != nil {
		d.FullText = *p.FullText
	}
	if p.DecisionDate != nil {
		d.DecisionDate = *p.DecisionDate
	}
	if p.Language != nil {
		d.Language = *p.Language
	}
	if p.LegalAreas != nil {
		d.LegalAreas = *p.LegalAreas
	}
	if p.Chamber != nil {
		d.Chamber = *p.Chamber
	}
	if p.BGEReference != nil {
		d.BGEReference = *p.BGEReference
	}
	if p.SourceURL != nil {
		d.SourceURL = *p.SourceURL
	}
}

func (r *DecisionRepository) get(ctx context.Context, id string) (*models.Decision, error) {
	ds, err := r.find(ctx, ` AND decision_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 {
		return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	return ds[0], nil
}

// Delete removes a decision and its outgoing edges.
func (r *DecisionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.store.exec(ctx, r.store.db,
		`DELETE FROM decisions WHERE decision_id = ? AND court_level = ?`, id, string(r.level))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// FindAll returns up to limit decisions, most recent first. A limit <= 0 returns all.
func (r *DecisionRepository) FindAll(ctx context.Context, limit int) ([]*models.Decision, error) {
	where := ` ORDER BY decision_date DESC, decision_id ASC`
	var args []any
	if limit > 0 {
		where += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.find(ctx, where, args...)
}

// Count returns the number of decisions at this court level.
func (r *DecisionRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.store.queryRow(ctx, r.store.db,
		`SELECT COUNT(*) FROM decisions WHERE court_level = ?`, string(r.level)).Scan(&n)
	return n, err
}
