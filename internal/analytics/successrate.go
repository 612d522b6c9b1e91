package analytics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/pkg/utils"
)

// Recommendation thresholds, in percent of classified decisions.
const (
	favourableRate   = 60.0
	unfavourableRate = 30.0
	significantGap   = 10.0
	minClassified    = 5
)

// SuccessRateRequest selects the decisions a success rate is computed over.
type SuccessRateRequest struct {
	LegalArea  string            `json:"legal_area"`
	ClaimType  string            `json:"claim_type"`
	CourtLevel models.CourtLevel `json:"court_level"`
	Cantons    []models.Canton   `json:"cantons,omitempty"`
	DateFrom   time.Time         `json:"date_from,omitempty"`
	DateTo     time.Time         `json:"date_to,omitempty"`
	Limit      int               `json:"limit"`
}

// Bucket aggregates classified outcomes. SuccessRate is the share of successes
// among classified decisions in percent, or 0 when nothing was classified.
type Bucket struct {
	Total        int     `json:"total"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	Unclassified int     `json:"unclassified"`
	SuccessRate  float64 `json:"success_rate"`
}

// Classified is the number of decisions with a success or failure outcome.
func (b Bucket) Classified() int { return b.Successes + b.Failures }

func (b *Bucket) add(o Outcome) {
	b.Total++
	switch o {
	case OutcomeSuccess:
		b.Successes++
	case OutcomeFailure:
		b.Failures++
	default:
		b.Unclassified++
	}
}

func (b *Bucket) finish() {
	if c := b.Classified(); c > 0 {
		b.SuccessRate = utils.Round(100*float64(b.Successes)/float64(c), 1)
	}
}

// ClassifiedDecision pairs a sampled decision with its outcome.
type ClassifiedDecision struct {
	DecisionID   string            `json:"decision_id"`
	Title        string            `json:"title"`
	CourtLevel   models.CourtLevel `json:"court_level"`
	Canton       models.Canton     `json:"canton,omitempty"`
	DecisionDate string            `json:"decision_date"`
	Outcome      Outcome           `json:"outcome"`
}

// SuccessRateReport is the result of a success-rate analysis.
type SuccessRateReport struct {
	LegalArea       string                       `json:"legal_area"`
	ClaimType       string                       `json:"claim_type,omitempty"`
	Overall         Bucket                       `json:"overall"`
	ByCourtLevel    map[models.CourtLevel]Bucket `json:"by_court_level"`
	ByCanton        map[models.Canton]Bucket     `json:"by_canton"`
	ByYear          map[int]Bucket               `json:"by_year"`
	Recommendations []string                     `json:"recommendations"`
	Decisions       []ClassifiedDecision         `json:"decisions"`
	Sources         []models.SourceStatus        `json:"sources,omitempty"`
	GeneratedAt     time.Time                    `json:"generated_at"`
}

// Validate normalizes the request and rejects malformed ones.
func (r *SuccessRateRequest) Validate(maxLimit int) error {
	r.LegalArea = strings.Join(strings.Fields(r.LegalArea), " ")
	r.ClaimType = strings.Join(strings.Fields(r.ClaimType), " ")
	if r.LegalArea == "" {
		return models.NewValidationError("legal_area", "is required")
	}
	if r.Limit < 0 {
		return models.NewValidationError("limit", "must not be negative")
	}
	if r.Limit == 0 || r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	f := r.filters()
	if err := f.Validate(); err != nil {
		return err
	}
	r.CourtLevel, r.Cantons, r.DateFrom, r.DateTo, r.Limit = f.CourtLevel, f.Cantons, f.DateFrom, f.DateTo, f.Limit
	return nil
}

func (r *SuccessRateRequest) filters() models.SearchFilters {
	return models.SearchFilters{
		Query:      r.ClaimType,
		CourtLevel: r.CourtLevel,
		Cantons:    r.Cantons,
		DateFrom:   r.DateFrom,
		DateTo:     r.DateTo,
		LegalAreas: []string{r.LegalArea},
		Limit:      r.Limit,
	}
}

// SuccessRate samples decisions through the search path, classifies their
// outcomes and aggregates them overall, by court level, by canton and by year.
func (a *Analyzer) SuccessRate(ctx context.Context, req SuccessRateRequest) (*SuccessRateReport, error) {
	if err := req.Validate(a.config.SampleLimit); err != nil {
		return nil, err
	}
	key := cacheKey("success_rate", req)
	return cachedOr(ctx, a, key, func() (*SuccessRateReport, error) {
		resp, err := a.engine.Search(ctx, req.filters(), "analyze_precedent_success_rate")
		if err != nil {
			return nil, fmt.Errorf("sample decisions: %w", err)
		}
		rep := aggregate(resp.Decisions)
		rep.LegalArea = req.LegalArea
		rep.ClaimType = req.ClaimType
		rep.Sources = resp.Sources
		rep.GeneratedAt = a.now().UTC()
		return rep, nil
	})
}

func aggregate(ds []*models.Decision) *SuccessRateReport {
	rep := &SuccessRateReport{
		ByCourtLevel: make(map[models.CourtLevel]Bucket),
		ByCanton:     make(map[models.Canton]Bucket),
		ByYear:       make(map[int]Bucket),
		Decisions:    make([]ClassifiedDecision, 0, len(ds)),
	}
	update := func(b Bucket, o Outcome) Bucket {
		b.add(o)
		return b
	}
	for _, d := range ds {
		o := Classify(d)
		rep.Overall.add(o)
		rep.ByCourtLevel[d.CourtLevel] = update(rep.ByCourtLevel[d.CourtLevel], o)
		if d.CourtLevel == models.CourtLevelCantonal && d.Canton != "" {
			rep.ByCanton[d.Canton] = update(rep.ByCanton[d.Canton], o)
		}
		if !d.DecisionDate.IsZero() {
			y := d.DecisionDate.Year()
			rep.ByYear[y] = update(rep.ByYear[y], o)
		}
		rep.Decisions = append(rep.Decisions, ClassifiedDecision{
			DecisionID:   d.ID,
			Title:        d.Title,
			CourtLevel:   d.CourtLevel,
			Canton:       d.Canton,
			DecisionDate: models.FormatDate(d.DecisionDate),
			Outcome:      o,
		})
	}
	rep.Overall.finish()
	for k, b := range rep.ByCourtLevel {
		b.finish()
		rep.ByCourtLevel[k] = b
	}
	for k, b := range rep.ByCanton {
		b.finish()
		rep.ByCanton[k] = b
	}
	for k, b := range rep.ByYear {
		b.finish()
		rep.ByYear[k] = b
	}
	rep.Recommendations = recommend(rep)
	return rep
}

func recommend(rep *SuccessRateReport) []string {
	var out []string
	o := rep.Overall
	if o.Classified() == 0 {
		out = append(out, "No sampled decision has a recognizable outcome; the sample gives no indication of the likely result.")
	} else {
		switch {
		case o.SuccessRate >= favourableRate:
			out = append(out, fmt.Sprintf("Favourable precedent: %.1f%% of classified decisions were successful.", o.SuccessRate))
		case o.SuccessRate <= unfavourableRate:
			out = append(out, fmt.Sprintf("Unfavourable precedent: only %.1f%% of classified decisions were successful.", o.SuccessRate))
		default:
			out = append(out, fmt.Sprintf("Mixed precedent: %.1f%% of classified decisions were successful; the outcome depends on the facts.", o.SuccessRate))
		}
		if o.Classified() < minClassified {
			out = append(out, fmt.Sprintf("Small sample: only %d decisions could be classified; treat the rate with caution.", o.Classified()))
		}
	}
	if o.Total > 0 && float64(o.Unclassified)/float64(o.Total) > 0.5 {
		out = append(out, fmt.Sprintf("%d of %d decisions could not be classified; review them manually.", o.Unclassified, o.Total))
	}

	fed, cant := rep.ByCourtLevel[models.CourtLevelFederal], rep.ByCourtLevel[models.CourtLevelCantonal]
	if fed.Classified() > 0 && cant.Classified() > 0 {
		gap := fed.SuccessRate - cant.SuccessRate
		if math.Abs(gap) > significantGap {
			higher, lower := "federal", "cantonal"
			if gap < 0 {
				higher, lower = lower, higher
			}
			out = append(out, fmt.Sprintf("Success is %.1f percentage points higher before %s courts than before %s courts.",
				math.Abs(gap), higher, lower))
		}
	}
	return out
}
