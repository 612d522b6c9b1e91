package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/entscheid/internal/keyword"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/storage"
	"github.com/hyperjump/entscheid/pkg/utils"
)

// Signal weights. They sum to 1.
const (
	weightLegalArea = 0.30
	weightForum     = 0.20
	weightLanguage  = 0.10
	weightTemporal  = 0.15
	weightKeywords  = 0.25
)

// temporalHorizonDays is the date distance at which temporal proximity reaches zero.
const temporalHorizonDays = 5 * 365.25

// SimilarityRequest names a reference decision, a free-text fact pattern, or both.
type SimilarityRequest struct {
	DecisionID  string            `json:"decision_id,omitempty"`
	FactPattern string            `json:"fact_pattern,omitempty"`
	CourtLevel  models.CourtLevel `json:"court_level,omitempty"`
	Canton      models.Canton     `json:"canton,omitempty"`
	Limit       int               `json:"limit"`
}

// Factor is one signal's contribution to a similarity score.
type Factor struct {
	Signal       string  `json:"signal"`
	Weight       float64 `json:"weight"`
	Score        float64 `json:"score"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// SimilarCase is a scored candidate with the factors that produced its score.
type SimilarCase struct {
	Decision *models.Decision `json:"decision"`
	Score    float64          `json:"score"`
	Factors  []Factor         `json:"factors"`
}

// SimilarityReport lists the candidates scoring at least the minimum similarity.
type SimilarityReport struct {
	Reference        *models.Decision `json:"reference,omitempty"`
	FactPattern      string           `json:"fact_pattern,omitempty"`
	Cases            []SimilarCase    `json:"cases"`
	CandidatesScored int              `json:"candidates_scored"`
	MinScore         float64          `json:"min_score"`
}

// Validate normalizes the request and rejects malformed ones.
func (r *SimilarityRequest) Validate() error {
	r.DecisionID = strings.TrimSpace(r.DecisionID)
	r.FactPattern = strings.Join(strings.Fields(r.FactPattern), " ")
	if r.DecisionID == "" && r.FactPattern == "" {
		return models.NewValidationError("decision_id", "a decision_id or a fact_pattern is required")
	}
	switch r.CourtLevel {
	case "", models.CourtLevelAll:
		r.CourtLevel = models.CourtLevelAll
	case models.CourtLevelFederal, models.CourtLevelCantonal:
	default:
		return models.NewValidationError("court_level", "must be federal, cantonal or all, got %q", r.CourtLevel)
	}
	if r.Canton != "" {
		if _, err := models.ParseCanton(string(r.Canton)); err != nil {
			return err
		}
		if r.CourtLevel == models.CourtLevelFederal {
			return models.NewValidationError("canton", "cannot be combined with court_level federal")
		}
	}
	if r.Limit < 0 {
		return models.NewValidationError("limit", "must not be negative")
	}
	if r.Limit == 0 {
		r.Limit = models.DefaultSearchLimit
	}
	if r.Limit > models.MaxSearchLimit {
		r.Limit = models.MaxSearchLimit
	}
	return nil
}

// FindSimilar scores stored decisions against the reference decision and/or fact
// pattern. Signals that need a reference decision (legal areas, forum, language,
// date) are skipped without one, and the score is the weighted share of the
// signals that apply.
func (a *Analyzer) FindSimilar(ctx context.Context, req SimilarityRequest) (*SimilarityReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return cachedOr(ctx, a, cacheKey("similar", req), func() (*SimilarityReport, error) {
		var ref *models.Decision
		if req.DecisionID != "" {
			d, err := a.engine.GetDecision(ctx, req.DecisionID)
			if err != nil {
				return nil, fmt.Errorf("reference decision: %w", err)
			}
			ref = d
		}

		candidates, err := a.candidates(ctx, req, ref)
		if err != nil {
			return nil, err
		}

		s := newScorer(ref, req.FactPattern)
		rep := &SimilarityReport{
			Reference:        ref,
			FactPattern:      req.FactPattern,
			Cases:            []SimilarCase{},
			CandidatesScored: len(candidates),
			MinScore:         a.config.MinSimilarity,
		}
		for _, c := range candidates {
			score, factors := s.score(c)
			if score < a.config.MinSimilarity {
				continue
			}
			rep.Cases = append(rep.Cases, SimilarCase{Decision: c, Score: score, Factors: factors})
		}
		sort.SliceStable(rep.Cases, func(i, j int) bool {
			ci, cj := rep.Cases[i], rep.Cases[j]
			if ci.Score != cj.Score {
				return ci.Score > cj.Score
			}
			if !ci.Decision.DecisionDate.Equal(cj.Decision.DecisionDate) {
				return ci.Decision.DecisionDate.After(cj.Decision.DecisionDate)
			}
			return ci.Decision.ID < cj.Decision.ID
		})
		if len(rep.Cases) > req.Limit {
			rep.Cases = rep.Cases[:req.Limit]
		}
		return rep, nil
	})
}

// candidates gathers recent stored decisions matching the request scope plus
// full-text hits for the fact pattern, excluding the reference itself.
func (a *Analyzer) candidates(ctx context.Context, req SimilarityRequest, ref *models.Decision) ([]*models.Decision, error) {
	filter := storage.CandidateFilter{Canton: req.Canton}
	if req.CourtLevel.Valid() {
		filter.CourtLevel = req.CourtLevel
	}
	if ref != nil {
		filter.ExcludeID = ref.ID
	}
	stored, err := a.store.ListCandidates(ctx, filter, a.config.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	seen := make(map[string]struct{}, len(stored))
	for _, d := range stored {
		seen[d.ID] = struct{}{}
	}
	if a.index != nil && req.FactPattern != "" {
		hits, err := a.index.Search(ctx, req.FactPattern, a.config.CandidateLimit, &keyword.SearchOptions{
			TitleBoost: 1,
			CourtLevel: filter.CourtLevel,
			Canton:     req.Canton,
		})
		if err != nil {
			return nil, fmt.Errorf("fact pattern search: %w", err)
		}
		var missing []string
		for _, h := range hits {
			if _, ok := seen[h.ID]; ok || h.ID == filter.ExcludeID {
				continue
			}
			seen[h.ID] = struct{}{}
			missing = append(missing, h.ID)
		}
		if len(missing) > 0 {
			extra, err := a.store.GetMany(ctx, missing)
			if err != nil {
				return nil, fmt.Errorf("load fact pattern hits: %w", err)
			}
			stored = append(stored, extra...)
		}
	}
	return stored, nil
}

var stopwords = func() map[string]struct{} {
	words := []string{
		// de
		"der", "die", "das", "und", "oder", "ein", "eine", "einer", "eines", "des", "dem", "den",
		"von", "mit", "auf", "für", "ist", "nicht", "sich", "als", "auch", "aus", "hat", "dass",
		"nach", "bei", "wird", "wurde", "sind", "zum", "zur", "über", "unter", "gegen", "durch",
		// fr
		"les", "des", "une", "est", "dans", "pour", "que", "qui", "sur", "par", "aux", "pas",
		"elle", "plus", "son", "ses", "cette", "été",
		// it
		"gli", "della", "delle", "dei", "che", "per", "con", "non", "una", "del", "nel", "alla",
		// en
		"the", "and", "for", "that", "with", "this", "are", "from", "was", "were", "has", "have",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[utils.Fold(w)] = struct{}{}
	}
	return m
}()

// keywords returns the distinct content tokens of s.
func keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range utils.Tokenize(s, 3) {
		if _, stop := stopwords[t]; stop {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type scorer struct {
	ref        *models.Decision
	refAreas   []string
	queryTerms []string
	termSource string
}

func newScorer(ref *models.Decision, factPattern string) *scorer {
	s := &scorer{ref: ref}
	if ref != nil {
		for _, a := range ref.LegalAreas {
			s.refAreas = append(s.refAreas, utils.Fold(a))
		}
	}
	switch {
	case factPattern != "":
		s.queryTerms = keywords(factPattern)
		s.termSource = "fact pattern"
	case ref != nil:
		s.queryTerms = keywords(ref.Title + "\n" + ref.Summary)
		s.termSource = "reference"
	}
	return s
}

// score returns the candidate's similarity in [0, 1] and the contributing factors.
func (s *scorer) score(c *models.Decision) (float64, []Factor) {
	var (
		factors []Factor
		total   float64
		applied float64
	)
	add := func(signal string, weight, score float64, detail string) {
		applied += weight
		score = utils.Clamp01(score)
		if score <= 0 {
			return
		}
		total += weight * score
		factors = append(factors, Factor{
			Signal:       signal,
			Weight:       weight,
			Score:        utils.Round(score, 3),
			Contribution: utils.Round(weight*score, 3),
			Detail:       detail,
		})
	}

	if s.ref != nil {
		var candAreas []string
		for _, a := range c.LegalAreas {
			candAreas = append(candAreas, utils.Fold(a))
		}
		add("legal_area", weightLegalArea, utils.Jaccard(s.refAreas, candAreas), sharedDetail("shared legal areas", s.refAreas, candAreas))

		forum, detail := s.forumScore(c)
		add("forum", weightForum, forum, detail)

		lang := 0.0
		if c.Language != "" && c.Language == s.ref.Language {
			lang = 1
		}
		add("language", weightLanguage, lang, "same language "+string(c.Language))

		days := math.Abs(c.DecisionDate.Sub(s.ref.DecisionDate).Hours() / 24)
		prox := 1 - days/temporalHorizonDays
		add("temporal", weightTemporal, prox, fmt.Sprintf("%.0f days apart", days))
	}

	if len(s.queryTerms) > 0 {
		candTerms := keywords(c.Title + "\n" + c.Summary)
		set := make(map[string]struct{}, len(candTerms))
		for _, t := range candTerms {
			set[t] = struct{}{}
		}
		var shared []string
		for _, t := range s.queryTerms {
			if _, ok := set[t]; ok {
				shared = append(shared, t)
			}
		}
		overlap := float64(len(shared)) / float64(len(s.queryTerms))
		add("keywords", weightKeywords, overlap, fmt.Sprintf("%s terms: %s", s.termSource, strings.Join(shared, ", ")))
	}

	if applied == 0 {
		return 0, nil
	}
	return utils.Round(total/applied, 3), factors
}

func (s *scorer) forumScore(c *models.Decision) (float64, string) {
	r := s.ref
	switch {
	case r.CourtLevel == models.CourtLevelCantonal && c.CourtLevel == models.CourtLevelCantonal && r.Canton == c.Canton:
		return 1, "same canton " + string(c.Canton)
	case r.CourtLevel == models.CourtLevelFederal && c.CourtLevel == models.CourtLevelFederal && r.Chamber != "" &&
		utils.Fold(r.Chamber) == utils.Fold(c.Chamber):
		return 1, "same chamber " + c.Chamber
	}
	return 0, ""
}

func sharedDetail(label string, a, b []string) string {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	var shared []string
	for _, x := range b {
		if _, ok := set[x]; ok {
			shared = append(shared, x)
		}
	}
	sort.Strings(shared)
	return label + ": " + strings.Join(shared, ", ")
}
