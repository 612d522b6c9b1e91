package sources

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

// Registry holds the source clients built once at startup and decides which of
// them serve a query.
type Registry struct {
	federal  Client
	cantons  map[models.Canton]Client
	byPrefix map[string]Client
}

// NewRegistry builds a registry from explicit clients. federal may be nil.
func NewRegistry(federal Client, cantonal ...Client) *Registry {
	r := &Registry{
		federal:  federal,
		cantons:  make(map[models.Canton]Client, len(cantonal)),
		byPrefix: make(map[string]Client, len(cantonal)+1),
	}
	if federal != nil {
		r.byPrefix[federal.Prefix()] = federal
	}
	for _, c := range cantonal {
		r.cantons[c.Canton()] = c
		r.byPrefix[c.Prefix()] = c
	}
	return r
}

// FromConfig builds clients for every enabled source in cfg.
func FromConfig(cfg config.SourcesConfig, log *zap.Logger) (*Registry, error) {
	var federal Client
	if cfg.Federal.EnabledOrDefault() {
		c, err := NewFederalClient(cfg.Federal, log)
		if err != nil {
			return nil, err
		}
		federal = c
	}
	codes := make([]string, 0, len(cfg.Cantons))
	for code := range cfg.Cantons {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	var cantonal []Client
	for _, code := range codes {
		sc := cfg.Cantons[code]
		if !sc.EnabledOrDefault() {
			continue
		}
		c, err := NewCantonalClient(models.Canton(code), sc, log)
		if err != nil {
			return nil, fmt.Errorf("canton %s: %w", code, err)
		}
		cantonal = append(cantonal, c)
	}
	return NewRegistry(federal, cantonal...), nil
}

// Select returns the sources a query fans out to: the federal source for federal
// queries, the requested (or all configured) cantons for cantonal queries, and
// both for queries across all levels. A requested canton without a configured
// source is a caller error.
func (r *Registry) Select(f *models.SearchFilters) ([]Client, error) {
	var out []Client
	level := f.CourtLevel
	if level == "" {
		level = models.CourtLevelAll
	}
	if level == models.CourtLevelFederal || level == models.CourtLevelAll {
		if r.federal != nil {
			out = append(out, r.federal)
		} else if level == models.CourtLevelFederal {
			return nil, models.NewValidationError("court_level", "no federal source is configured")
		}
	}
	if level == models.CourtLevelCantonal || level == models.CourtLevelAll {
		if len(f.Cantons) > 0 {
			for _, code := range f.Cantons {
				c, ok := r.cantons[code]
				if !ok {
					return nil, models.NewValidationError("cantons", "no source is configured for canton %s", code)
				}
				out = append(out, c)
			}
		} else {
			for _, code := range r.Cantons() {
				out = append(out, r.cantons[code])
			}
		}
	}
	if len(out) == 0 {
		return nil, models.NewValidationError("court_level", "no sources are configured for %s decisions", level)
	}
	return out, nil
}

// ForDecision returns the source owning a canonical decision id.
func (r *Registry) ForDecision(id string) (Client, bool) {
	c, ok := r.byPrefix[models.IDPrefix(id)]
	return c, ok
}

// Cantons returns the configured canton codes in order.
func (r *Registry) Cantons() []models.Canton {
	out := make([]models.Canton, 0, len(r.cantons))
	for c := range r.cantons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every configured source, federal first.
func (r *Registry) All() []Client {
	var out []Client
	if r.federal != nil {
		out = append(out, r.federal)
	}
	for _, code := range r.Cantons() {
		out = append(out, r.cantons[code])
	}
	return out
}
