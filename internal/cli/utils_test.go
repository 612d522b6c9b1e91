package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/entscheid/internal/tools"
)

func sampleSearch() *tools.SearchResult {
	return &tools.SearchResult{
		Query:         "Mietzins",
		Total:         2,
		UpstreamTotal: 14,
		ByCourtLevel:  map[string]int{"federal": 1, "cantonal": 1},
		ByCanton:      map[string]int{"ZH": 1},
		Sources: []tools.SourceDTO{
			{Source: "federal", Count: 1, Total: 9},
			{Source: "GE", Error: "upstream status 503"},
		},
		QueryTimeMs: 42,
		Decisions: []tools.DecisionDTO{
			{
				DecisionID:   "BG-4A_12/2023",
				CourtLevel:   "federal",
				Chamber:      "I. zivilrechtliche Abteilung",
				Title:        "Anfechtung des Anfangsmietzinses",
				Summary:      strings.Repeat("Mietzins ", 40),
				DecisionDate: "2023-05-04",
				LegalAreas:   []string{"Mietrecht"},
			},
			{
				DecisionID:   "ZH-PD230012",
				CourtLevel:   "cantonal",
				Canton:       "ZH",
				Title:        "Kündigung",
				DecisionDate: "2023-02-01",
			},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleSearch(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded tools.SearchResult
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != "Mietzins" || len(decoded.Decisions) != 2 || decoded.Decisions[1].Canton != "ZH" {
		t.Errorf("decoded: got %+v", decoded)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleSearch(), OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`Found 2 decisions for "Mietzins" in 42ms (14 upstream)`,
		"By court level: cantonal=1 federal=1",
		"By canton: ZH=1",
		"! source GE failed: upstream status 503",
		"1. BG-4A_12/2023 | federal, I. zivilrechtliche Abteilung | 2023-05-04",
		"2. ZH-PD230012 | cantonal ZH | 2023-02-01",
		"Areas: Mietrecht",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "source federal failed") {
		t.Error("healthy source reported as failed")
	}
}

func TestWriteRelated(t *testing.T) {
	var buf bytes.Buffer
	empty := &tools.RelatedResult{DecisionID: "BG-1", Decisions: []tools.DecisionDTO{}}
	if err := WriteRelated(&buf, empty, OutputText); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "No related decisions for BG-1\n" {
		t.Errorf("empty: got %q", got)
	}

	buf.Reset()
	res := &tools.RelatedResult{DecisionID: "BG-1", Decisions: sampleSearch().Decisions, Count: 2}
	if err := WriteRelated(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "2 decisions related to BG-1") {
		t.Errorf("related: got %q", buf.String())
	}
}

func TestWriteDecision(t *testing.T) {
	d := sampleSearch().Decisions[0]
	d.FullText = "Sachverhalt und Erwägungen."
	d.BGEReference = "BGE 149 III 100"
	var buf bytes.Buffer
	if err := WriteDecision(&buf, &tools.DetailsResult{Decision: d}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ID:       BG-4A_12/2023", "BGE:      BGE 149 III 100", "Sachverhalt und Erwägungen."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"Bundesgericht", 6, "Bundes..."},
		{"Zürich", 2, "Zü..."},
		{"no limit", 0, "no limit"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}
