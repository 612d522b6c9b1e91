package analytics

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/models"
)

const (
	maxExcerpts     = 3
	excerptRadius   = 160
	maxProvisionLen = 20
)

var (
	articleRe = regexp.MustCompile(`^(?i:art(?:ikel|icle|icolo)?\.?)?\s*(\d{1,4}[a-z]{0,6})$`)
	lawRe     = regexp.MustCompile(`^[\p{L}][\p{L}\d/-]*$`)
)

// ProvisionRequest names a statutory provision, for example article "41" of law "OR".
type ProvisionRequest struct {
	Article  string          `json:"article"`
	Law      string          `json:"law"`
	Language models.Language `json:"language,omitempty"`
	Limit    int             `json:"limit"`
}

// Reference renders the provision the way decisions cite it, e.g. "Art. 41 OR".
func (r ProvisionRequest) Reference() string {
	return "Art. " + r.Article + " " + r.Law
}

// Validate normalizes the article ("Art. 41", "41") and law code and rejects
// anything that does not look like a provision reference.
func (r *ProvisionRequest) Validate() error {
	m := articleRe.FindStringSubmatch(strings.TrimSpace(r.Article))
	if m == nil {
		return models.NewValidationError("article", "%q is not an article number", r.Article)
	}
	r.Article = strings.ToLower(m[1])
	r.Law = strings.TrimSpace(r.Law)
	if r.Law == "" || len(r.Law) > maxProvisionLen || !lawRe.MatchString(r.Law) {
		return models.NewValidationError("law", "%q is not a law abbreviation", r.Law)
	}
	if r.Language != "" && !r.Language.Valid() {
		return models.NewValidationError("language", "unsupported language %q", r.Language)
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

// pattern matches mentions such as "Art. 41 OR", "art. 41 Abs. 1 OR" or "Art. 41 al. 2 CO".
func (r ProvisionRequest) pattern() *regexp.Regexp {
	return regexp.MustCompile(`\b(?i:art)\.?\s*` + regexp.QuoteMeta(r.Article) + `\b[^\n]{0,60}?\b` + regexp.QuoteMeta(r.Law) + `\b`)
}

// ProvisionDecision is a decision mentioning the provision, with the passages.
type ProvisionDecision struct {
	Decision *models.Decision `json:"decision"`
	Excerpts []string         `json:"excerpts"`
}

// ProvisionReport summarizes how courts applied a provision.
type ProvisionReport struct {
	Provision      string                    `json:"provision"`
	Decisions      []ProvisionDecision       `json:"decisions"`
	Total          int                       `json:"total"`
	WithExcerpts   int                       `json:"with_excerpts"`
	ByCourtLevel   map[models.CourtLevel]int `json:"by_court_level"`
	FirstDecision  string                    `json:"first_decision,omitempty"`
	LatestDecision string                    `json:"latest_decision,omitempty"`
}

// InterpretProvision gathers decisions citing a provision from the sources and the
// full-text index and extracts the passages that mention it. When every source
// fails, stored decisions alone are used.
func (a *Analyzer) InterpretProvision(ctx context.Context, req ProvisionRequest) (*ProvisionReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return cachedOr(ctx, a, cacheKey("provision", req), func() (*ProvisionReport, error) {
		ref := req.Reference()
		byID := make(map[string]*models.Decision)

		resp, err := a.engine.Search(ctx, models.SearchFilters{
			Query:    ref,
			Language: req.Language,
			Limit:    req.Limit,
		}, "get_legal_provision_interpretation")
		switch {
		case err == nil:
			for _, d := range resp.Decisions {
				byID[d.ID] = d
			}
		case ctx.Err() != nil:
			return nil, err
		case errors.Is(err, models.ErrAllSourcesFailed), errors.Is(err, models.ErrInvalidInput):
			a.logger.Warn("provision search unavailable, using stored decisions", zap.String("provision", ref), zap.Error(err))
		default:
			return nil, fmt.Errorf("search provision: %w", err)
		}

		if a.index != nil {
			hits, err := a.index.SearchPhrase(ctx, ref, req.Limit)
			if err != nil {
				return nil, fmt.Errorf("provision phrase search: %w", err)
			}
			var ids []string
			for _, h := range hits {
				if _, ok := byID[h.ID]; !ok {
					ids = append(ids, h.ID)
				}
			}
			if len(ids) > 0 {
				stored, err := a.store.GetMany(ctx, ids)
				if err != nil {
					return nil, fmt.Errorf("load provision hits: %w", err)
				}
				for _, d := range stored {
					byID[d.ID] = d
				}
			}
		}

		all := make([]*models.Decision, 0, len(byID))
		for _, d := range byID {
			if req.Language != "" && d.Language != req.Language {
				continue
			}
			all = append(all, d)
		}
		models.SortByDateDesc(all)
		if len(all) > req.Limit {
			all = all[:req.Limit]
		}

		re := req.pattern()
		rep := &ProvisionReport{
			Provision:    ref,
			Decisions:    make([]ProvisionDecision, 0, len(all)),
			Total:        len(all),
			ByCourtLevel: make(map[models.CourtLevel]int),
		}
		for _, d := range all {
			ex := excerpts(re, d.Summary+"\n"+d.FullText)
			if len(ex) > 0 {
				rep.WithExcerpts++
			}
			rep.Decisions = append(rep.Decisions, ProvisionDecision{Decision: d, Excerpts: ex})
			rep.ByCourtLevel[d.CourtLevel]++
		}
		if len(all) > 0 {
			rep.LatestDecision = models.FormatDate(all[0].DecisionDate)
			rep.FirstDecision = models.FormatDate(all[len(all)-1].DecisionDate)
		}
		return rep, nil
	})
}

// excerpts returns up to maxExcerpts non-overlapping passages around matches of re.
func excerpts(re *regexp.Regexp, text string) []string {
	out := []string{}
	lastEnd := -1
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if len(out) == maxExcerpts {
			break
		}
		start := min(backRunes(text, loc[0], excerptRadius), loc[0])
		if start < lastEnd {
			continue
		}
		end := max(forwardRunes(text, loc[1], excerptRadius), loc[1])
		ex := strings.Join(strings.Fields(text[start:end]), " ")
		if start > 0 {
			ex = "..." + ex
		}
		if end < len(text) {
			ex += "..."
		}
		out = append(out, ex)
		lastEnd = end
	}
	return out
}

// backRunes moves n runes left of i, then forward to a word start.
func backRunes(s string, i, n int) int {
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	if i == 0 {
		return 0
	}
	if j := strings.IndexAny(s[i:], " \n\t"); j >= 0 {
		return i + j + 1
	}
	return i
}

// forwardRunes moves n runes right of i, then back to a word end.
func forwardRunes(s string, i, n int) int {
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	if i >= len(s) {
		return len(s)
	}
	if j := strings.LastIndexAny(s[:i], " \n\t"); j >= 0 {
		return j
	}
	return i
}
