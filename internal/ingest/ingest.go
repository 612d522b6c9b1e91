// Package ingest persists decisions returned by sources: it upserts them into the
// decision store, records citation edges mined from their text, and feeds the
// full-text index.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/citation"
	"github.com/hyperjump/entscheid/internal/keyword"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/storage"
)

// Ingester writes decisions into the store and the keyword index.
type Ingester struct {
	store  storage.DecisionStore
	index  keyword.Index
	logger *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger used for per-record failures.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// New creates an ingester. index may be nil, in which case nothing is indexed.
func New(store storage.DecisionStore, index keyword.Index, opts ...Option) *Ingester {
	in := &Ingester{store: store, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Report summarizes one ingest run.
type Report struct {
	Stored  int `json:"stored"`
	Failed  int `json:"failed"`
	Edges   int `json:"edges"`
	Indexed int `json:"indexed"`
}

// Ingest persists every decision. It is best-effort: a failure on one record is
// logged and counted and never stops the others. Only a cancelled context ends
// the run early.
func (in *Ingester) Ingest(ctx context.Context, decisions []*models.Decision) Report {
	var rep Report
	for _, d := range decisions {
		if ctx.Err() != nil {
			break
		}
		if d == nil {
			continue
		}
		edges, err := in.ingestOne(ctx, d)
		if err != nil {
			rep.Failed++
			in.logger.Warn("ingest decision failed", zap.String("decision_id", d.ID), zap.Error(err))
			continue
		}
		rep.Stored++
		rep.Edges += edges
		if in.index != nil {
			if err := in.index.Index(ctx, d); err != nil {
				in.logger.Warn("index decision failed", zap.String("decision_id", d.ID), zap.Error(err))
				continue
			}
			rep.Indexed++
		}
	}
	in.logger.Debug("ingest finished",
		zap.Int("stored", rep.Stored),
		zap.Int("failed", rep.Failed),
		zap.Int("edges", rep.Edges),
		zap.Int("indexed", rep.Indexed),
	)
	return rep
}

func (in *Ingester) ingestOne(ctx context.Context, d *models.Decision) (int, error) {
	if err := in.store.Upsert(ctx, d); err != nil {
		return 0, err
	}
	edges := citation.Edges(d)
	if len(edges) == 0 {
		return 0, nil
	}
	if err := in.store.AddRelations(ctx, edges); err != nil {
		return 0, fmt.Errorf("mined edges: %w", err)
	}
	return len(edges), nil
}

// Reindex rebuilds the keyword index from every stored decision.
func (in *Ingester) Reindex(ctx context.Context) (int, error) {
	if in.index == nil {
		return 0, nil
	}
	all, err := in.store.ListCandidates(ctx, storage.CandidateFilter{}, 0)
	if err != nil {
		return 0, fmt.Errorf("list decisions: %w", err)
	}
	n := 0
	for _, d := range all {
		if err := in.index.Index(ctx, d); err != nil {
			return n, fmt.Errorf("index %s: %w", d.ID, err)
		}
		n++
	}
	return n, nil
}
