package models

// Facets are count breakdowns of a merged result set.
type Facets struct {
	ByCourtLevel map[CourtLevel]int `json:"by_court_level"`
	ByCanton     map[Canton]int     `json:"by_canton"`
}

// SourceStatus records how one source behaved for one query.
type SourceStatus struct {
	Source     string `json:"source"`
	Count      int    `json:"count"`
	Total      int    `json:"total"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether the source was omitted from the merge.
func (s SourceStatus) Failed() bool { return s.Error != "" }

// SearchResponse is the merged, truncated, faceted result of a decision search.
type SearchResponse struct {
	Decisions []*Decision `json:"decisions"`
	// Total is the merged count before truncation to the limit.
	Total int `json:"total"`
	// UpstreamTotal sums the totals reported by the sources.
	UpstreamTotal int            `json:"upstream_total"`
	Facets        Facets         `json:"facets"`
	Sources       []SourceStatus `json:"sources,omitempty"`
	FromCache     bool           `json:"from_cache"`
	QueryTime     int64          `json:"query_time_ms"`
	Query         string         `json:"query"`
}

// Partial reports whether at least one source failed.
func (r *SearchResponse) Partial() bool {
	for _, s := range r.Sources {
		if s.Failed() {
			return true
		}
	}
	return false
}
