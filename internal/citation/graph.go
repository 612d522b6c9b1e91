package citation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/storage"
)

// DefaultRelatedTTL is how long a neighbor list stays cached.
const DefaultRelatedTTL = 24 * time.Hour

// Graph answers related-decision queries from the store, cache first.
type Graph struct {
	store storage.DecisionStore
	cache storage.Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewGraph wires the graph to its store and cache. cache may be nil.
func NewGraph(store storage.DecisionStore, cache storage.Cache, ttl time.Duration, log *zap.Logger) *Graph {
	if ttl <= 0 {
		ttl = DefaultRelatedTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{store: store, cache: cache, ttl: ttl, log: log}
}

func relatedKey(id string, limit int) string {
	return fmt.Sprintf("related:%s:%d", id, limit)
}

// FindRelated returns decisions citing or cited by id, most recent first, at most
// limit of them. An id the store does not know yields an empty list, the same as a
// decision without relations.
func (g *Graph) FindRelated(ctx context.Context, id string, limit int) ([]*models.Decision, error) {
	if id == "" {
		return nil, models.NewValidationError("decision_id", "is required")
	}
	key := relatedKey(id, limit)
	if g.cache != nil {
		cached, ok, err := storage.GetJSON[[]*models.Decision](ctx, g.cache, key)
		if err != nil {
			g.log.Warn("related cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	related, err := g.store.FindRelated(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("find related %s: %w", id, err)
	}
	if related == nil {
		related = []*models.Decision{}
	}
	if g.cache != nil {
		if err := storage.SetJSON(ctx, g.cache, key, related, g.ttl, models.CacheTypeRelated); err != nil {
			g.log.Warn("related cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return related, nil
}

// Edges builds mined citation edges from a decision's summary and full text.
func Edges(d *models.Decision) []models.Relation {
	refs := Mine(d.Summary + "\n" + d.FullText)
	edges := make([]models.Relation, 0, len(refs))
	for _, ref := range refs {
		if ref == d.ID || ref == d.Citation || ref == models.CanonicalBGE(d.BGEReference) {
			continue
		}
		edges = append(edges, models.Relation{
			FromID:     d.ID,
			Target:     ref,
			Kind:       models.RelationCites,
			Provenance: models.ProvenanceMined,
		})
	}
	return edges
}
