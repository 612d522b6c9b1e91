package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

// CantonalClient queries one cantonal court API. All cantons share the same wire
// format; each configured canton gets its own instance.
type CantonalClient struct {
	canton models.Canton
	http   *httpJSON
	lang   string
	log    *zap.Logger
}

var _ Client = (*CantonalClient)(nil)

type cantonalSearchResponse struct {
	Total      int           `json:"anzahl_total"`
	Entscheide []cantonalHit `json:"entscheide"`
}

type cantonalHit struct {
	Nummer        string   `json:"nummer"`
	Aktenzeichen  string   `json:"aktenzeichen"`
	Titel         string   `json:"titel"`
	Leitsatz      string   `json:"leitsatz"`
	Volltext      string   `json:"volltext"`
	Datum         string   `json:"datum"`
	Sprache       string   `json:"sprache"`
	Rechtsgebiete []string `json:"rechtsgebiete"`
	Link          string   `json:"link"`
	Verweise      []string `json:"verweise"`
}

// NewCantonalClient builds the client for canton from its source configuration.
func NewCantonalClient(canton models.Canton, cfg config.SourceConfig, log *zap.Logger) (*CantonalClient, error) {
	if _, err := models.ParseCanton(string(canton)); err != nil {
		return nil, err
	}
	h, err := newHTTPJSON(string(canton), cfg, log)
	if err != nil {
		return nil, err
	}
	return &CantonalClient{canton: canton, http: h, lang: cfg.Language, log: h.log}, nil
}

func (c *CantonalClient) Name() string                  { return string(c.canton) }
func (c *CantonalClient) Prefix() string                { return string(c.canton) }
func (c *CantonalClient) CourtLevel() models.CourtLevel { return models.CourtLevelCantonal }
func (c *CantonalClient) Canton() models.Canton         { return c.canton }

// Search runs GET /entscheide.
func (c *CantonalClient) Search(ctx context.Context, f Filters) (*Result, error) {
	params := url.Values{}
	if f.Query != "" {
		params.Set("suche", f.Query)
	}
	for _, a := range f.LegalAreas {
		params.Add("rechtsgebiet", a)
	}
	if !f.DateFrom.IsZero() {
		params.Set("von", models.FormatDate(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		params.Set("bis", models.FormatDate(f.DateTo))
	}
	if f.Language != "" {
		params.Set("sprache", string(f.Language))
	}
	if f.Limit > 0 {
		params.Set("anzahl", strconv.Itoa(f.Limit))
	}

	var resp cantonalSearchResponse
	if err := c.http.getJSON(ctx, "/entscheide", params, &resp); err != nil {
		return nil, err
	}
	out := &Result{Total: resp.Total, Decisions: make([]*models.Decision, 0, len(resp.Entscheide))}
	for _, hit := range resp.Entscheide {
		d, err := c.toDecision(hit)
		if err != nil {
			c.log.Warn("skipping unparseable cantonal decision", zap.String("nummer", hit.Nummer), zap.Error(err))
			continue
		}
		out.Decisions = append(out.Decisions, d)
	}
	if out.Total < len(out.Decisions) {
		out.Total = len(out.Decisions)
	}
	return out, nil
}

// Fetch runs GET /entscheide/{nummer}.
func (c *CantonalClient) Fetch(ctx context.Context, id string) (*models.Decision, error) {
	native, err := nativeID(c.Prefix(), id)
	if err != nil {
		return nil, err
	}
	var hit cantonalHit
	if err := c.http.getJSON(ctx, "/entscheide/"+url.PathEscape(native), nil, &hit); err != nil {
		return nil, err
	}
	d, err := c.toDecision(hit)
	if err != nil {
		return nil, &SourceError{Source: c.Name(), Permanent: true, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return d, nil
}

func (c *CantonalClient) toDecision(h cantonalHit) (*models.Decision, error) {
	if strings.TrimSpace(h.Nummer) == "" {
		return nil, fmt.Errorf("missing nummer")
	}
	date, err := parseUpstreamDate(h.Datum)
	if err != nil {
		return nil, err
	}
	title := h.Titel
	if strings.TrimSpace(title) == "" {
		title = h.Aktenzeichen
	}
	d := &models.Decision{
		ID:               c.Prefix() + "-" + strings.TrimSpace(h.Nummer),
		CourtLevel:       models.CourtLevelCantonal,
		Canton:           c.canton,
		Citation:         h.Aktenzeichen,
		Title:            title,
		Summary:          h.Leitsatz,
		FullText:         h.Volltext,
		DecisionDate:     date,
		Language:         upstreamLanguage(h.Sprache, c.lang),
		LegalAreas:       h.Rechtsgebiete,
		SourceURL:        h.Link,
		RelatedDecisions: h.Verweise,
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
