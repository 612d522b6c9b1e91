// Package tools is the tool-call boundary of entscheid: strict per-tool input and
// result contracts, JSON dispatch for the HTTP API, and the MCP server.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/analytics"
	"github.com/hyperjump/entscheid/internal/models"
)

// Tool names.
const (
	ToolSearchDecisions    = "search_decisions"
	ToolSearchCanton       = "search_canton"
	ToolRelatedDecisions   = "get_related_decisions"
	ToolDecisionDetails    = "get_decision_details"
	ToolSuccessRate        = "analyze_precedent_success_rate"
	ToolSimilarCases       = "find_similar_cases"
	ToolProvisionInterpret = "get_legal_provision_interpretation"
)

// ErrUnknownTool is returned by Call for a name that is not a registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// Searcher runs searches and resolves single decisions.
type Searcher interface {
	Search(ctx context.Context, filters models.SearchFilters, queryType string) (*models.SearchResponse, error)
	GetDecision(ctx context.Context, id string) (*models.Decision, error)
}

// RelatedFinder resolves citation-graph neighbors.
type RelatedFinder interface {
	FindRelated(ctx context.Context, id string, limit int) ([]*models.Decision, error)
}

// Analytics runs the precedent analyses.
type Analytics interface {
	SuccessRate(ctx context.Context, req analytics.SuccessRateRequest) (*analytics.SuccessRateReport, error)
	FindSimilar(ctx context.Context, req analytics.SimilarityRequest) (*analytics.SimilarityReport, error)
	InterpretProvision(ctx context.Context, req analytics.ProvisionRequest) (*analytics.ProvisionReport, error)
}

// Info describes a tool for listings.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var toolInfos = []Info{
	{ToolSearchDecisions, "Search federal and cantonal court decisions by text, court level, canton, language, date range and legal area."},
	{ToolSearchCanton, "Search the decisions of one cantonal court."},
	{ToolRelatedDecisions, "List decisions connected to a decision through citations, most recent first."},
	{ToolDecisionDetails, "Return the full record of one decision, fetching it from its source when it is not stored."},
	{ToolSuccessRate, "Estimate how often claims in a legal area succeed, by court level, canton and year."},
	{ToolSimilarCases, "Find stored decisions similar to a reference decision or a fact pattern, with per-factor scores."},
	{ToolProvisionInterpret, "Collect decisions applying a statutory provision, with the passages that mention it."},
}

// Tools lists the available tools in registration order.
func Tools() []Info {
	out := make([]Info, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// Service implements the tools on top of the orchestrator, the citation graph and the analyzer.
type Service struct {
	search    Searcher
	related   RelatedFinder
	analytics Analytics
	logger    *zap.Logger
}

// NewService creates a Service. A nil logger disables logging.
func NewService(search Searcher, related RelatedFinder, an Analytics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{search: search, related: related, analytics: an, logger: logger}
}

// SearchDecisions implements search_decisions.
func (s *Service) SearchDecisions(ctx context.Context, in SearchDecisionsInput) (*SearchResult, error) {
	f, err := in.Validate()
	if err != nil {
		return nil, err
	}
	return s.runSearch(ctx, f, ToolSearchDecisions)
}

// SearchCanton implements search_canton.
func (s *Service) SearchCanton(ctx context.Context, in SearchCantonInput) (*SearchResult, error) {
	f, err := in.Validate()
	if err != nil {
		return nil, err
	}
	return s.runSearch(ctx, f, ToolSearchCanton)
}

func (s *Service) runSearch(ctx context.Context, f models.SearchFilters, tool string) (*SearchResult, error) {
	resp, err := s.search.Search(ctx, f, tool)
	if err != nil {
		return nil, err
	}
	res := NewSearchResult(resp)
	return &res, nil
}

// RelatedDecisions implements get_related_decisions.
func (s *Service) RelatedDecisions(ctx context.Context, in RelatedDecisionsInput) (*RelatedResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	related, err := s.related.FindRelated(ctx, in.DecisionID, in.Limit)
	if err != nil {
		return nil, err
	}
	return &RelatedResult{
		DecisionID: in.DecisionID,
		Decisions:  decisionDTOs(related),
		Count:      len(related),
	}, nil
}

// DecisionDetails implements get_decision_details.
func (s *Service) DecisionDetails(ctx context.Context, in DecisionDetailsInput) (*DetailsResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	d, err := s.search.GetDecision(ctx, in.DecisionID)
	if err != nil {
		return nil, err
	}
	return &DetailsResult{Decision: NewDecisionDTO(d, true)}, nil
}

// SuccessRate implements analyze_precedent_success_rate.
func (s *Service) SuccessRate(ctx context.Context, in SuccessRateInput) (*SuccessRateResult, error) {
	req, err := in.Request()
	if err != nil {
		return nil, err
	}
	rep, err := s.analytics.SuccessRate(ctx, req)
	if err != nil {
		return nil, err
	}
	res := NewSuccessRateResult(rep)
	return &res, nil
}

// SimilarCases implements find_similar_cases.
func (s *Service) SimilarCases(ctx context.Context, in SimilarCasesInput) (*SimilarCasesResult, error) {
	req, err := in.Request()
	if err != nil {
		return nil, err
	}
	rep, err := s.analytics.FindSimilar(ctx, req)
	if err != nil {
		return nil, err
	}
	res := NewSimilarCasesResult(rep)
	return &res, nil
}

// ProvisionInterpretation implements get_legal_provision_interpretation.
func (s *Service) ProvisionInterpretation(ctx context.Context, in ProvisionInput) (*ProvisionResult, error) {
	req, err := in.Request()
	if err != nil {
		return nil, err
	}
	rep, err := s.analytics.InterpretProvision(ctx, req)
	if err != nil {
		return nil, err
	}
	res := NewProvisionResult(rep)
	return &res, nil
}

// Call decodes raw as the input of the named tool and runs it. Unknown fields
// and trailing data are rejected as invalid input before the tool runs.
func (s *Service) Call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	out, err := s.dispatch(ctx, name, raw)
	if err != nil {
		s.logFailure(name, err)
		return nil, err
	}
	return out, nil
}

func (s *Service) dispatch(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	switch name {
	case ToolSearchDecisions:
		return call(ctx, raw, s.SearchDecisions)
	case ToolSearchCanton:
		return call(ctx, raw, s.SearchCanton)
	case ToolRelatedDecisions:
		return call(ctx, raw, s.RelatedDecisions)
	case ToolDecisionDetails:
		return call(ctx, raw, s.DecisionDetails)
	case ToolSuccessRate:
		return call(ctx, raw, s.SuccessRate)
	case ToolSimilarCases:
		return call(ctx, raw, s.SimilarCases)
	case ToolProvisionInterpret:
		return call(ctx, raw, s.ProvisionInterpretation)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

func (s *Service) logFailure(tool string, err error) {
	if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrNotFound) {
		s.logger.Debug("Tool call rejected", zap.String("tool", tool), zap.Error(err))
		return
	}
	s.logger.Warn("Tool call failed", zap.String("tool", tool), zap.Error(err))
}

func call[In, Out any](ctx context.Context, raw json.RawMessage, fn func(context.Context, In) (*Out, error)) (any, error) {
	in, err := decodeStrict[In](raw)
	if err != nil {
		return nil, err
	}
	out, err := fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeStrict[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, models.NewValidationError("", "malformed arguments: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return v, models.NewValidationError("", "malformed arguments: trailing data")
	}
	return v, nil
}
