package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
)

const federalSearchBody = `{
  "total": 42,
  "hits": [
    {"id": "6B_100/2022", "case_number": "6B_100/2022", "bge_reference": "BGE 148 IV 10",
     "chamber": "Strafrechtliche Abteilung", "title": "Fahrlässige Tötung", "regeste": "Art. 117 StGB",
     "text": "Die Beschwerde wird gutgeheissen.", "decision_date": "2022-05-03", "language": "de",
     "legal_areas": ["Strafrecht"], "url": "https://example.test/6B_100", "cites": ["BGE 145 IV 1", "6B_9/2019"]},
    {"id": "4A_1/2021", "title": "Missing date", "decision_date": "", "language": "de"}
  ]
}`

func newFederalTestClient(t *testing.T, handler http.HandlerFunc) *FederalClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewFederalClient(config.SourceConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, Language: "de"}, nil)
	if err != nil {
		t.Fatalf("NewFederalClient: %v", err)
	}
	c.http.sleep = (&sleepRecorder{}).sleep
	return c
}

func TestFederalSearch(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	c := newFederalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Write([]byte(federalSearchBody))
	})

	res, err := c.Search(context.Background(), Filters{
		Query:      "Tötung",
		LegalAreas: []string{"Strafrecht", "Verkehr"},
		DateFrom:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:     time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		Language:   models.LanguageGerman,
		Limit:      5,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotPath != "/api/v1/decisions/search" {
		t.Errorf("path = %s", gotPath)
	}
	want := map[string]string{
		"q": "Tötung", "legal_area": "Strafrecht,Verkehr", "date_from": "2020-01-01",
		"date_to": "2023-12-31", "lang": "de", "size": "5",
	}
	for k, v := range want {
		if got := gotQuery[k]; len(got) != 1 || got[0] != v {
			t.Errorf("param %s = %v, want %s", k, got, v)
		}
	}

	if res.Total != 42 {
		t.Errorf("total = %d, want 42", res.Total)
	}
	if len(res.Decisions) != 1 {
		t.Fatalf("decisions = %d, want 1 (invalid hit skipped)", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.ID != "BG-6B_100/2022" || d.CourtLevel != models.CourtLevelFederal || d.Canton != "" {
		t.Errorf("identity = %s %s %q", d.ID, d.CourtLevel, d.Canton)
	}
	if d.Summary != "Art. 117 StGB" || d.BGEReference != "BGE 148 IV 10" || d.Chamber == "" {
		t.Errorf("unexpected mapping %+v", d)
	}
	if models.FormatDate(d.DecisionDate) != "2022-05-03" {
		t.Errorf("date = %v", d.DecisionDate)
	}
	if len(d.RelatedDecisions) != 2 {
		t.Errorf("related = %v", d.RelatedDecisions)
	}
}

func TestFederalFetch(t *testing.T) {
	c := newFederalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/decisions/6B_100/2022" && r.URL.RawPath != "/api/v1/decisions/6B_100%2F2022" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":"6B_100/2022","title":"T","decision_date":"03.05.2022","language":"de"}`))
	})

	d, err := c.Fetch(context.Background(), "BG-6B_100/2022")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if d.ID != "BG-6B_100/2022" {
		t.Errorf("id = %s", d.ID)
	}

	if _, err := c.Fetch(context.Background(), "BG-missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := c.Fetch(context.Background(), "ZH-1"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected invalid input for foreign id, got %v", err)
	}
}

func TestFederalLanguageFallback(t *testing.T) {
	c := newFederalTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":1,"hits":[{"id":"1","title":"T","decision_date":"2020-01-01","language":"xx"}]}`))
	})
	res, err := c.Search(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Decisions) != 1 || res.Decisions[0].Language != models.LanguageGerman {
		t.Fatalf("expected configured fallback language, got %+v", res.Decisions)
	}
}
