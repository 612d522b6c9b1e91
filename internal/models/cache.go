package models

import "time"

// Cache entry type tags.
const (
	CacheTypeSearch    = "search"
	CacheTypeDecision  = "decision"
	CacheTypeRelated   = "related"
	CacheTypeAnalytics = "analytics"
)

// CacheEntry is one row of the cache store.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
	HitCount  int64     `json:"hit_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStats summarizes the cache store.
type CacheStats struct {
	Total   int64            `json:"total"`
	Expired int64            `json:"expired"`
	ByType  map[string]int64 `json:"by_type"`
}

// Relation provenance values.
const (
	ProvenanceDeclared = "declared"
	ProvenanceMined    = "mined"
)

// Relation kinds.
const (
	RelationCites = "cites"
)

// Relation is a directed citation edge. Target is a decision id or a citation
// string; it is resolved against stored decisions at read time.
type Relation struct {
	FromID     string    `json:"from_id"`
	Target     string    `json:"target"`
	Kind       string    `json:"kind"`
	Provenance string    `json:"provenance"`
	CreatedAt  time.Time `json:"created_at"`
}
