// Package cli provides CLI output formatting for entscheid.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/tools"
	"github.com/hyperjump/entscheid/pkg/utils"
)

// OutputFormat is the format of command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json"; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search result to w in the given format.
func WriteSearchResults(w io.Writer, res *tools.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	cached := ""
	if res.FromCache {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\nFound %d decisions for %q in %dms (%d upstream%s)\n",
		res.Total, res.Query, res.QueryTimeMs, res.UpstreamTotal, cached)
	if len(res.ByCourtLevel) > 0 {
		fmt.Fprintf(w, "By court level: %s\n", formatCounts(res.ByCourtLevel))
	}
	if len(res.ByCanton) > 0 {
		fmt.Fprintf(w, "By canton: %s\n", formatCounts(res.ByCanton))
	}
	for _, s := range res.Sources {
		if s.Error != "" {
			fmt.Fprintf(w, "! source %s failed: %s\n", s.Source, s.Error)
		}
	}
	fmt.Fprintln(w)
	for i, d := range res.Decisions {
		writeDecisionSummary(w, i+1, d)
	}
	return nil
}

// WriteRelated writes related decisions to w in the given format.
func WriteRelated(w io.Writer, res *tools.RelatedResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	if res.Count == 0 {
		fmt.Fprintf(w, "No related decisions for %s\n", res.DecisionID)
		return nil
	}
	fmt.Fprintf(w, "\n%d decisions related to %s\n\n", res.Count, res.DecisionID)
	for i, d := range res.Decisions {
		writeDecisionSummary(w, i+1, d)
	}
	return nil
}

// WriteDecision writes one decision with its full text to w in the given format.
func WriteDecision(w io.Writer, res *tools.DetailsResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	d := res.Decision
	fmt.Fprintf(w, "%s\n", d.Title)
	fmt.Fprintf(w, "ID:       %s\n", d.DecisionID)
	fmt.Fprintf(w, "Court:    %s\n", court(d))
	fmt.Fprintf(w, "Date:     %s\n", d.DecisionDate)
	fmt.Fprintf(w, "Language: %s\n", d.Language)
	if d.Citation != "" {
		fmt.Fprintf(w, "Citation: %s\n", d.Citation)
	}
	if d.BGEReference != "" {
		fmt.Fprintf(w, "BGE:      %s\n", d.BGEReference)
	}
	if len(d.LegalAreas) > 0 {
		fmt.Fprintf(w, "Areas:    %s\n", strings.Join(d.LegalAreas, ", "))
	}
	if len(d.RelatedDecisions) > 0 {
		fmt.Fprintf(w, "Related:  %s\n", strings.Join(d.RelatedDecisions, ", "))
	}
	if d.SourceURL != "" {
		fmt.Fprintf(w, "Source:   %s\n", d.SourceURL)
	}
	if d.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", d.Summary)
	}
	if d.FullText != "" {
		fmt.Fprintf(w, "\n%s\n", d.FullText)
	}
	return nil
}

func writeDecisionSummary(w io.Writer, rank int, d tools.DecisionDTO) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%d. %s | %s | %s\n", rank, d.DecisionID, court(d), d.DecisionDate)
	fmt.Fprintf(w, "%s\n", d.Title)
	if len(d.LegalAreas) > 0 {
		fmt.Fprintf(w, "Areas: %s\n", strings.Join(d.LegalAreas, ", "))
	}
	if d.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", Truncate(d.Summary, 200))
	}
	fmt.Fprintln(w)
}

func court(d tools.DecisionDTO) string {
	switch {
	case d.CourtLevel == string(models.CourtLevelCantonal) && d.Canton != "":
		return "cantonal " + d.Canton
	case d.Chamber != "":
		return d.CourtLevel + ", " + d.Chamber
	}
	return d.CourtLevel
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// Truncate shortens s to at most maxLen runes and appends "..." if it was cut.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}
