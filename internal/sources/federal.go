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

// FederalPrefix is the id prefix of federal supreme court decisions.
const FederalPrefix = "BG"

// FederalClient queries the federal supreme court decision API.
type FederalClient struct {
	http *httpJSON
	lang string
	log  *zap.Logger
}

var _ Client = (*FederalClient)(nil)

type federalSearchResponse struct {
	Total int          `json:"total"`
	Hits  []federalHit `json:"hits"`
}

type federalHit struct {
	ID           string   `json:"id"`
	CaseNumber   string   `json:"case_number"`
	BGEReference string   `json:"bge_reference"`
	Chamber      string   `json:"chamber"`
	Title        string   `json:"title"`
	Regeste      string   `json:"regeste"`
	Text         string   `json:"text"`
	DecisionDate string   `json:"decision_date"`
	Language     string   `json:"language"`
	LegalAreas   []string `json:"legal_areas"`
	URL          string   `json:"url"`
	Cites        []string `json:"cites"`
}

// NewFederalClient builds the federal client from its source configuration.
func NewFederalClient(cfg config.SourceConfig, log *zap.Logger) (*FederalClient, error) {
	h, err := newHTTPJSON("federal", cfg, log)
	if err != nil {
		return nil, err
	}
	return &FederalClient{http: h, lang: cfg.Language, log: h.log}, nil
}

func (c *FederalClient) Name() string                  { return "federal" }
func (c *FederalClient) Prefix() string                { return FederalPrefix }
func (c *FederalClient) CourtLevel() models.CourtLevel { return models.CourtLevelFederal }
func (c *FederalClient) Canton() models.Canton         { return "" }

// Search runs GET /api/v1/decisions/search.
func (c *FederalClient) Search(ctx context.Context, f Filters) (*Result, error) {
	params := url.Values{}
	if f.Query != "" {
		params.Set("q", f.Query)
	}
	if len(f.LegalAreas) > 0 {
		params.Set("legal_area", strings.Join(f.LegalAreas, ","))
	}
	if !f.DateFrom.IsZero() {
		params.Set("date_from", models.FormatDate(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		params.Set("date_to", models.FormatDate(f.DateTo))
	}
	if f.Language != "" {
		params.Set("lang", string(f.Language))
	}
	if f.Limit > 0 {
		params.Set("size", strconv.Itoa(f.Limit))
	}

	var resp federalSearchResponse
	if err := c.http.getJSON(ctx, "/api/v1/decisions/search", params, &resp); err != nil {
		return nil, err
	}
	out := &Result{Total: resp.Total, Decisions: make([]*models.Decision, 0, len(resp.Hits))}
	for _, hit := range resp.Hits {
		d, err := c.toDecision(hit)
		if err != nil {
			c.log.Warn("skipping unparseable federal decision", zap.String("id", hit.ID), zap.Error(err))
			continue
		}
		out.Decisions = append(out.Decisions, d)
	}
	if out.Total < len(out.Decisions) {
		out.Total = len(out.Decisions)
	}
	return out, nil
}

// Fetch runs GET /api/v1/decisions/{id}.
func (c *FederalClient) Fetch(ctx context.Context, id string) (*models.Decision, error) {
	native, err := nativeID(FederalPrefix, id)
	if err != nil {
		return nil, err
	}
	var hit federalHit
	if err := c.http.getJSON(ctx, "/api/v1/decisions/"+url.PathEscape(native), nil, &hit); err != nil {
		return nil, err
	}
	d, err := c.toDecision(hit)
	if err != nil {
		return nil, &SourceError{Source: c.Name(), Permanent: true, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return d, nil
}

func (c *FederalClient) toDecision(h federalHit) (*models.Decision, error) {
	if strings.TrimSpace(h.ID) == "" {
		return nil, fmt.Errorf("missing id")
	}
	date, err := parseUpstreamDate(h.DecisionDate)
	if err != nil {
		return nil, err
	}
	title := h.Title
	if strings.TrimSpace(title) == "" {
		title = h.CaseNumber
	}
	d := &models.Decision{
		ID:               FederalPrefix + "-" + strings.TrimSpace(h.ID),
		CourtLevel:       models.CourtLevelFederal,
		Citation:         h.CaseNumber,
		Title:            title,
		Summary:          h.Regeste,
		FullText:         h.Text,
		DecisionDate:     date,
		Language:         upstreamLanguage(h.Language, c.lang),
		LegalAreas:       h.LegalAreas,
		Chamber:          h.Chamber,
		BGEReference:     h.BGEReference,
		SourceURL:        h.URL,
		RelatedDecisions: h.Cites,
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
