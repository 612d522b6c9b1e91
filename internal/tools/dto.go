package tools

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/entscheid/internal/analytics"
	"github.com/hyperjump/entscheid/internal/models"
)

// SearchDecisionsInput is the input of search_decisions.
type SearchDecisionsInput struct {
	Query      string   `json:"query" jsonschema:"free-text search query"`
	CourtLevel string   `json:"court_level,omitempty" jsonschema:"federal, cantonal or all (default all)"`
	Cantons    []string `json:"cantons,omitempty" jsonschema:"two-letter canton codes such as ZH or GE"`
	Language   string   `json:"language,omitempty" jsonschema:"decision language: de, fr, it, rm or en"`
	DateFrom   string   `json:"date_from,omitempty" jsonschema:"earliest decision date (YYYY-MM-DD)"`
	DateTo     string   `json:"date_to,omitempty" jsonschema:"latest decision date (YYYY-MM-DD)"`
	LegalAreas []string `json:"legal_areas,omitempty" jsonschema:"legal-area tags every result must carry"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of decisions (default 10, max 100)"`
}

// Validate converts the input into search filters.
func (in SearchDecisionsInput) Validate() (models.SearchFilters, error) {
	if strings.TrimSpace(in.Query) == "" {
		return models.SearchFilters{}, models.NewValidationError("query", "is required")
	}
	cantons, err := parseCantons(in.Cantons)
	if err != nil {
		return models.SearchFilters{}, err
	}
	lang, err := parseOptionalLanguage(in.Language)
	if err != nil {
		return models.SearchFilters{}, err
	}
	from, to, err := parseRange(in.DateFrom, in.DateTo)
	if err != nil {
		return models.SearchFilters{}, err
	}
	f := models.SearchFilters{
		Query:      in.Query,
		CourtLevel: models.CourtLevel(in.CourtLevel),
		Cantons:    cantons,
		Language:   lang,
		DateFrom:   from,
		DateTo:     to,
		LegalAreas: in.LegalAreas,
		Limit:      in.Limit,
	}
	if err := f.Validate(); err != nil {
		return models.SearchFilters{}, err
	}
	return f, nil
}

// SearchCantonInput is the input of search_canton.
type SearchCantonInput struct {
	Canton     string   `json:"canton" jsonschema:"two-letter canton code such as ZH or GE"`
	Query      string   `json:"query" jsonschema:"free-text search query"`
	Language   string   `json:"language,omitempty" jsonschema:"decision language: de, fr, it, rm or en"`
	DateFrom   string   `json:"date_from,omitempty" jsonschema:"earliest decision date (YYYY-MM-DD)"`
	DateTo     string   `json:"date_to,omitempty" jsonschema:"latest decision date (YYYY-MM-DD)"`
	LegalAreas []string `json:"legal_areas,omitempty" jsonschema:"legal-area tags every result must carry"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of decisions (default 10, max 100)"`
}

// Validate converts the input into search filters restricted to one canton.
func (in SearchCantonInput) Validate() (models.SearchFilters, error) {
	if strings.TrimSpace(in.Canton) == "" {
		return models.SearchFilters{}, models.NewValidationError("canton", "is required")
	}
	return SearchDecisionsInput{
		Query:      in.Query,
		CourtLevel: string(models.CourtLevelCantonal),
		Cantons:    []string{in.Canton},
		Language:   in.Language,
		DateFrom:   in.DateFrom,
		DateTo:     in.DateTo,
		LegalAreas: in.LegalAreas,
		Limit:      in.Limit,
	}.Validate()
}

// RelatedDecisionsInput is the input of get_related_decisions.
type RelatedDecisionsInput struct {
	DecisionID string `json:"decision_id" jsonschema:"canonical decision id, e.g. BG-6B_1234/2023"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of related decisions (default 10, max 100)"`
}

// Validate normalizes the input.
func (in *RelatedDecisionsInput) Validate() error {
	in.DecisionID = strings.TrimSpace(in.DecisionID)
	if in.DecisionID == "" {
		return models.NewValidationError("decision_id", "is required")
	}
	limit, err := clampLimit(in.Limit)
	if err != nil {
		return err
	}
	in.Limit = limit
	return nil
}

// DecisionDetailsInput is the input of get_decision_details.
type DecisionDetailsInput struct {
	DecisionID string `json:"decision_id" jsonschema:"canonical decision id, e.g. BG-6B_1234/2023"`
}

// Validate normalizes the input.
func (in *DecisionDetailsInput) Validate() error {
	in.DecisionID = strings.TrimSpace(in.DecisionID)
	if in.DecisionID == "" {
		return models.NewValidationError("decision_id", "is required")
	}
	return nil
}

// SuccessRateInput is the input of analyze_precedent_success_rate.
type SuccessRateInput struct {
	LegalArea  string   `json:"legal_area" jsonschema:"legal area to analyze, e.g. Mietrecht"`
	ClaimType  string   `json:"claim_type,omitempty" jsonschema:"optional claim description narrowing the sample"`
	CourtLevel string   `json:"court_level,omitempty" jsonschema:"federal, cantonal or all (default all)"`
	Cantons    []string `json:"cantons,omitempty" jsonschema:"two-letter canton codes such as ZH or GE"`
	DateFrom   string   `json:"date_from,omitempty" jsonschema:"earliest decision date (YYYY-MM-DD)"`
	DateTo     string   `json:"date_to,omitempty" jsonschema:"latest decision date (YYYY-MM-DD)"`
	Limit      int      `json:"limit,omitempty" jsonschema:"sample size"`
}

// Request converts the input into an analytics request. Range checks that need
// the analyzer's configuration happen there.
func (in SuccessRateInput) Request() (analytics.SuccessRateRequest, error) {
	if strings.TrimSpace(in.LegalArea) == "" {
		return analytics.SuccessRateRequest{}, models.NewValidationError("legal_area", "is required")
	}
	cantons, err := parseCantons(in.Cantons)
	if err != nil {
		return analytics.SuccessRateRequest{}, err
	}
	level, err := parseCourtLevel(in.CourtLevel)
	if err != nil {
		return analytics.SuccessRateRequest{}, err
	}
	from, to, err := parseRange(in.DateFrom, in.DateTo)
	if err != nil {
		return analytics.SuccessRateRequest{}, err
	}
	if in.Limit < 0 {
		return analytics.SuccessRateRequest{}, models.NewValidationError("limit", "must not be negative")
	}
	return analytics.SuccessRateRequest{
		LegalArea:  in.LegalArea,
		ClaimType:  in.ClaimType,
		CourtLevel: level,
		Cantons:    cantons,
		DateFrom:   from,
		DateTo:     to,
		Limit:      in.Limit,
	}, nil
}

// SimilarCasesInput is the input of find_similar_cases.
type SimilarCasesInput struct {
	DecisionID  string `json:"decision_id,omitempty" jsonschema:"reference decision id"`
	FactPattern string `json:"fact_pattern,omitempty" jsonschema:"free-text description of the facts"`
	CourtLevel  string `json:"court_level,omitempty" jsonschema:"federal, cantonal or all (default all)"`
	Canton      string `json:"canton,omitempty" jsonschema:"restrict candidates to one canton"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of similar cases (default 10, max 100)"`
}

// Request converts the input into an analytics request.
func (in SimilarCasesInput) Request() (analytics.SimilarityRequest, error) {
	req := analytics.SimilarityRequest{
		DecisionID:  in.DecisionID,
		FactPattern: in.FactPattern,
		CourtLevel:  models.CourtLevel(in.CourtLevel),
		Limit:       in.Limit,
	}
	if in.Canton != "" {
		c, err := models.ParseCanton(in.Canton)
		if err != nil {
			return analytics.SimilarityRequest{}, err
		}
		req.Canton = c
	}
	if err := req.Validate(); err != nil {
		return analytics.SimilarityRequest{}, err
	}
	return req, nil
}

// ProvisionInput is the input of get_legal_provision_interpretation.
type ProvisionInput struct {
	Article  string `json:"article" jsonschema:"article number, e.g. 41 or Art. 41"`
	Law      string `json:"law" jsonschema:"law abbreviation, e.g. OR, ZGB or StGB"`
	Language string `json:"language,omitempty" jsonschema:"only decisions in this language"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of decisions (default 10, max 100)"`
}

// Request converts the input into an analytics request.
func (in ProvisionInput) Request() (analytics.ProvisionRequest, error) {
	lang, err := parseOptionalLanguage(in.Language)
	if err != nil {
		return analytics.ProvisionRequest{}, err
	}
	req := analytics.ProvisionRequest{Article: in.Article, Law: in.Law, Language: lang, Limit: in.Limit}
	if err := req.Validate(); err != nil {
		return analytics.ProvisionRequest{}, err
	}
	return req, nil
}

// DecisionDTO is a decision as returned at the tool boundary.
type DecisionDTO struct {
	DecisionID       string   `json:"decision_id"`
	CourtLevel       string   `json:"court_level"`
	Canton           string   `json:"canton,omitempty"`
	Citation         string   `json:"citation,omitempty"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary,omitempty"`
	FullText         string   `json:"full_text,omitempty"`
	DecisionDate     string   `json:"decision_date"`
	Language         string   `json:"language"`
	LegalAreas       []string `json:"legal_areas"`
	Chamber          string   `json:"chamber,omitempty"`
	BGEReference     string   `json:"bge_reference,omitempty"`
	SourceURL        string   `json:"source_url,omitempty"`
	RelatedDecisions []string `json:"related_decisions"`
	LastFetchedAt    string   `json:"last_fetched_at,omitempty"`
}

// NewDecisionDTO converts d. Full text is only carried when withText is set.
func NewDecisionDTO(d *models.Decision, withText bool) DecisionDTO {
	dto := DecisionDTO{
		DecisionID:       d.ID,
		CourtLevel:       string(d.CourtLevel),
		Canton:           string(d.Canton),
		Citation:         d.Citation,
		Title:            d.Title,
		Summary:          d.Summary,
		DecisionDate:     models.FormatDate(d.DecisionDate),
		Language:         string(d.Language),
		LegalAreas:       nonNil(d.LegalAreas),
		Chamber:          d.Chamber,
		BGEReference:     d.BGEReference,
		SourceURL:        d.SourceURL,
		RelatedDecisions: nonNil(d.RelatedDecisions),
	}
	if withText {
		dto.FullText = d.FullText
	}
	if !d.LastFetchedAt.IsZero() {
		dto.LastFetchedAt = d.LastFetchedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func decisionDTOs(ds []*models.Decision) []DecisionDTO {
	out := make([]DecisionDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, NewDecisionDTO(d, false))
	}
	return out
}

// SourceDTO reports how one source answered.
type SourceDTO struct {
	Source     string `json:"source"`
	Count      int    `json:"count"`
	Total      int    `json:"total"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func sourceDTOs(ss []models.SourceStatus) []SourceDTO {
	out := make([]SourceDTO, 0, len(ss))
	for _, s := range ss {
		out = append(out, SourceDTO(s))
	}
	return out
}

// SearchResult is the output of search_decisions and search_canton.
type SearchResult struct {
	Query         string         `json:"query"`
	Decisions     []DecisionDTO  `json:"decisions"`
	Total         int            `json:"total"`
	UpstreamTotal int            `json:"upstream_total"`
	ByCourtLevel  map[string]int `json:"by_court_level"`
	ByCanton      map[string]int `json:"by_canton"`
	Sources       []SourceDTO    `json:"sources"`
	FromCache     bool           `json:"from_cache"`
	Partial       bool           `json:"partial"`
	QueryTimeMs   int64          `json:"query_time_ms"`
}

// NewSearchResult converts a search response.
func NewSearchResult(resp *models.SearchResponse) SearchResult {
	res := SearchResult{
		Query:         resp.Query,
		Decisions:     decisionDTOs(resp.Decisions),
		Total:         resp.Total,
		UpstreamTotal: resp.UpstreamTotal,
		ByCourtLevel:  make(map[string]int, len(resp.Facets.ByCourtLevel)),
		ByCanton:      make(map[string]int, len(resp.Facets.ByCanton)),
		Sources:       sourceDTOs(resp.Sources),
		FromCache:     resp.FromCache,
		Partial:       resp.Partial(),
		QueryTimeMs:   resp.QueryTime,
	}
	for k, v := range resp.Facets.ByCourtLevel {
		res.ByCourtLevel[string(k)] = v
	}
	for k, v := range resp.Facets.ByCanton {
		res.ByCanton[string(k)] = v
	}
	return res
}

// RelatedResult is the output of get_related_decisions. An unknown id and a
// decision without relations both yield an empty list.
type RelatedResult struct {
	DecisionID string        `json:"decision_id"`
	Decisions  []DecisionDTO `json:"decisions"`
	Count      int           `json:"count"`
}

// DetailsResult is the output of get_decision_details.
type DetailsResult struct {
	Decision DecisionDTO `json:"decision"`
}

// SuccessRateResult is the output of analyze_precedent_success_rate.
type SuccessRateResult struct {
	LegalArea       string                         `json:"legal_area"`
	ClaimType       string                         `json:"claim_type,omitempty"`
	Overall         analytics.Bucket               `json:"overall"`
	ByCourtLevel    map[string]analytics.Bucket    `json:"by_court_level"`
	ByCanton        map[string]analytics.Bucket    `json:"by_canton"`
	ByYear          map[string]analytics.Bucket    `json:"by_year"`
	Recommendations []string                       `json:"recommendations"`
	Decisions       []analytics.ClassifiedDecision `json:"decisions"`
	Sources         []SourceDTO                    `json:"sources"`
	GeneratedAt     string                         `json:"generated_at"`
}

// NewSuccessRateResult converts a success-rate report.
func NewSuccessRateResult(rep *analytics.SuccessRateReport) SuccessRateResult {
	res := SuccessRateResult{
		LegalArea:       rep.LegalArea,
		ClaimType:       rep.ClaimType,
		Overall:         rep.Overall,
		ByCourtLevel:    make(map[string]analytics.Bucket, len(rep.ByCourtLevel)),
		ByCanton:        make(map[string]analytics.Bucket, len(rep.ByCanton)),
		ByYear:          make(map[string]analytics.Bucket, len(rep.ByYear)),
		Recommendations: nonNil(rep.Recommendations),
		Decisions:       rep.Decisions,
		Sources:         sourceDTOs(rep.Sources),
		GeneratedAt:     rep.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if res.Decisions == nil {
		res.Decisions = []analytics.ClassifiedDecision{}
	}
	for k, v := range rep.ByCourtLevel {
		res.ByCourtLevel[string(k)] = v
	}
	for k, v := range rep.ByCanton {
		res.ByCanton[string(k)] = v
	}
	for k, v := range rep.ByYear {
		res.ByYear[strconv.Itoa(k)] = v
	}
	return res
}

// SimilarCaseDTO is one scored candidate.
type SimilarCaseDTO struct {
	Decision DecisionDTO        `json:"decision"`
	Score    float64            `json:"score"`
	Factors  []analytics.Factor `json:"factors"`
}

// SimilarCasesResult is the output of find_similar_cases.
type SimilarCasesResult struct {
	Reference        *DecisionDTO     `json:"reference,omitempty"`
	FactPattern      string           `json:"fact_pattern,omitempty"`
	Cases            []SimilarCaseDTO `json:"cases"`
	CandidatesScored int              `json:"candidates_scored"`
	MinScore         float64          `json:"min_score"`
}

// NewSimilarCasesResult converts a similarity report.
func NewSimilarCasesResult(rep *analytics.SimilarityReport) SimilarCasesResult {
	res := SimilarCasesResult{
		FactPattern:      rep.FactPattern,
		Cases:            make([]SimilarCaseDTO, 0, len(rep.Cases)),
		CandidatesScored: rep.CandidatesScored,
		MinScore:         rep.MinScore,
	}
	if rep.Reference != nil {
		ref := NewDecisionDTO(rep.Reference, false)
		res.Reference = &ref
	}
	for _, c := range rep.Cases {
		factors := c.Factors
		if factors == nil {
			factors = []analytics.Factor{}
		}
		res.Cases = append(res.Cases, SimilarCaseDTO{
			Decision: NewDecisionDTO(c.Decision, false),
			Score:    c.Score,
			Factors:  factors,
		})
	}
	return res
}

// ProvisionDecisionDTO is a decision citing a provision, with excerpts.
type ProvisionDecisionDTO struct {
	Decision DecisionDTO `json:"decision"`
	Excerpts []string    `json:"excerpts"`
}

// ProvisionResult is the output of get_legal_provision_interpretation.
type ProvisionResult struct {
	Provision      string                 `json:"provision"`
	Decisions      []ProvisionDecisionDTO `json:"decisions"`
	Total          int                    `json:"total"`
	WithExcerpts   int                    `json:"with_excerpts"`
	ByCourtLevel   map[string]int         `json:"by_court_level"`
	FirstDecision  string                 `json:"first_decision,omitempty"`
	LatestDecision string                 `json:"latest_decision,omitempty"`
}

// NewProvisionResult converts a provision report.
func NewProvisionResult(rep *analytics.ProvisionReport) ProvisionResult {
	res := ProvisionResult{
		Provision:      rep.Provision,
		Decisions:      make([]ProvisionDecisionDTO, 0, len(rep.Decisions)),
		Total:          rep.Total,
		WithExcerpts:   rep.WithExcerpts,
		ByCourtLevel:   make(map[string]int, len(rep.ByCourtLevel)),
		FirstDecision:  rep.FirstDecision,
		LatestDecision: rep.LatestDecision,
	}
	for _, pd := range rep.Decisions {
		res.Decisions = append(res.Decisions, ProvisionDecisionDTO{
			Decision: NewDecisionDTO(pd.Decision, false),
			Excerpts: nonNil(pd.Excerpts),
		})
	}
	for k, v := range rep.ByCourtLevel {
		res.ByCourtLevel[string(k)] = v
	}
	return res
}

func parseCantons(codes []string) ([]models.Canton, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	out := make([]models.Canton, 0, len(codes))
	for _, code := range codes {
		c, err := models.ParseCanton(code)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseOptionalLanguage(s string) (models.Language, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return models.ParseLanguage(s)
}

func parseCourtLevel(s string) (models.CourtLevel, error) {
	switch l := models.CourtLevel(s); l {
	case "", models.CourtLevelAll:
		return models.CourtLevelAll, nil
	case models.CourtLevelFederal, models.CourtLevelCantonal:
		return l, nil
	default:
		return "", models.NewValidationError("court_level", "must be federal, cantonal or all, got %q", s)
	}
}

func parseRange(fromS, toS string) (from, to time.Time, err error) {
	if from, err = models.ParseDate(fromS); err != nil {
		return from, to, withField(err, "date_from")
	}
	if to, err = models.ParseDate(toS); err != nil {
		return from, to, withField(err, "date_to")
	}
	return from, to, nil
}

func withField(err error, field string) error {
	if ve, ok := err.(*models.ValidationError); ok {
		return models.NewValidationError(field, "%s", ve.Message)
	}
	return err
}

func clampLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, models.NewValidationError("limit", "must not be negative")
	case limit == 0:
		return models.DefaultSearchLimit, nil
	case limit > models.MaxSearchLimit:
		return models.MaxSearchLimit, nil
	}
	return limit, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
