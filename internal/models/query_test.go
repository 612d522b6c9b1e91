package models

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestSearchFilters_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filters *SearchFilters
		wantErr bool
	}{
		{"empty filters", &SearchFilters{}, false},
		{"valid query", &SearchFilters{Query: "Mietrecht"}, false},
		{"unknown level", &SearchFilters{CourtLevel: "district"}, true},
		{"lowercase canton", &SearchFilters{Cantons: []Canton{"zh"}}, true},
		{"unknown canton", &SearchFilters{Cantons: []Canton{"XX"}}, true},
		{"federal with cantons", &SearchFilters{CourtLevel: CourtLevelFederal, Cantons: []Canton{"ZH"}}, true},
		{"bad language", &SearchFilters{Language: "es"}, true},
		{"negative limit", &SearchFilters{Limit: -1}, true},
		{
			"inverted range",
			&SearchFilters{
				DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				DateTo:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filters.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error %v does not match ErrInvalidInput", err)
			}
		})
	}
}

func TestSearchFilters_ValidateNormalizes(t *testing.T) {
	f := &SearchFilters{
		Query:      "  Art.   8 ZGB ",
		Cantons:    []Canton{"ZH", "BE", "ZH"},
		LegalAreas: []string{"Zivilrecht", "zivilrecht", " Mietrecht "},
		Limit:      500,
	}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if f.Query != "Art. 8 ZGB" {
		t.Errorf("Query = %q", f.Query)
	}
	if f.CourtLevel != CourtLevelAll {
		t.Errorf("CourtLevel = %q, want all", f.CourtLevel)
	}
	if !reflect.DeepEqual(f.Cantons, []Canton{"BE", "ZH"}) {
		t.Errorf("Cantons = %v", f.Cantons)
	}
	if !reflect.DeepEqual(f.LegalAreas, []string{"Mietrecht", "Zivilrecht"}) {
		t.Errorf("LegalAreas = %v", f.LegalAreas)
	}
	if f.Limit != MaxSearchLimit {
		t.Errorf("Limit = %d, want %d", f.Limit, MaxSearchLimit)
	}

	d := &SearchFilters{}
	_ = d.Validate()
	if d.Limit != DefaultSearchLimit {
		t.Errorf("default limit = %d", d.Limit)
	}
}

func TestSearchResponse_Partial(t *testing.T) {
	r := &SearchResponse{Sources: []SourceStatus{{Source: "federal"}, {Source: "ZH", Error: "timeout"}}}
	if !r.Partial() {
		t.Error("expected partial response")
	}
	r.Sources = r.Sources[:1]
	if r.Partial() {
		t.Error("expected complete response")
	}
}
