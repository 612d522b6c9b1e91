package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

type stubClient struct {
	name   string
	level  models.CourtLevel
	canton models.Canton
}

func (s *stubClient) Name() string                  { return s.name }
func (s *stubClient) Prefix() string                { return s.name }
func (s *stubClient) CourtLevel() models.CourtLevel { return s.level }
func (s *stubClient) Canton() models.Canton         { return s.canton }
func (s *stubClient) Search(context.Context, Filters) (*Result, error) {
	return &Result{}, nil
}
func (s *stubClient) Fetch(context.Context, string) (*models.Decision, error) {
	return nil, models.ErrNotFound
}

func testRegistry() *Registry {
	return NewRegistry(
		&stubClient{name: "BG", level: models.CourtLevelFederal},
		&stubClient{name: "ZH", level: models.CourtLevelCantonal, canton: "ZH"},
		&stubClient{name: "BE", level: models.CourtLevelCantonal, canton: "BE"},
	)
}

func names(cs []Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name()
	}
	return out
}

func TestRegistrySelect(t *testing.T) {
	tests := []struct {
		name    string
		filters models.SearchFilters
		want    []string
		wantErr bool
	}{
		{"federal only", models.SearchFilters{CourtLevel: models.CourtLevelFederal}, []string{"BG"}, false},
		{"all cantons", models.SearchFilters{CourtLevel: models.CourtLevelCantonal}, []string{"BE", "ZH"}, false},
		{"requested canton", models.SearchFilters{CourtLevel: models.CourtLevelCantonal, Cantons: []models.Canton{"ZH"}}, []string{"ZH"}, false},
		{"everything", models.SearchFilters{CourtLevel: models.CourtLevelAll}, []string{"BG", "BE", "ZH"}, false},
		{"default level", models.SearchFilters{}, []string{"BG", "BE", "ZH"}, false},
		{"all with canton", models.SearchFilters{CourtLevel: models.CourtLevelAll, Cantons: []models.Canton{"BE"}}, []string{"BG", "BE"}, false},
		{"unconfigured canton", models.SearchFilters{CourtLevel: models.CourtLevelCantonal, Cantons: []models.Canton{"VD"}}, nil, true},
	}

	r := testRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Select(&tt.filters)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidInput) {
					t.Fatalf("expected invalid input, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			gotNames := names(got)
			if len(gotNames) != len(tt.want) {
				t.Fatalf("got %v, want %v", gotNames, tt.want)
			}
			for i := range gotNames {
				if gotNames[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", gotNames, tt.want)
				}
			}
		})
	}
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry(nil)
	for _, level := range []models.CourtLevel{models.CourtLevelFederal, models.CourtLevelCantonal, models.CourtLevelAll} {
		if _, err := r.Select(&models.SearchFilters{CourtLevel: level}); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("%s: expected invalid input, got %v", level, err)
		}
	}
}

func TestRegistryForDecision(t *testing.T) {
	r := testRegistry()
	if c, ok := r.ForDecision("ZH-LB1"); !ok || c.Name() != "ZH" {
		t.Errorf("ForDecision(ZH-LB1) = %v, %v", c, ok)
	}
	if _, ok := r.ForDecision("VD-1"); ok {
		t.Error("expected no source for VD")
	}
	if _, ok := r.ForDecision("noprefix"); ok {
		t.Error("expected no source for id without prefix")
	}
}

func TestFromConfig(t *testing.T) {
	off := false
	r, err := FromConfig(config.SourcesConfig{
		Federal: config.SourceConfig{BaseURL: "https://federal.example.test"},
		Cantons: map[string]config.SourceConfig{
			"ZH": {BaseURL: "https://zh.example.test"},
			"GE": {BaseURL: "https://ge.example.test", Enabled: &off},
			"BE": {},
		},
	}, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	got := names(r.All())
	if len(got) != 2 || got[0] != "federal" || got[1] != "ZH" {
		t.Errorf("All() = %v, want [federal ZH]", got)
	}
}
