package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/entscheid/internal/models"
)

func TestProvisionRequestValidate(t *testing.T) {
	tests := []struct {
		article, law string
		wantArticle  string
		wantErr      bool
	}{
		{"41", "OR", "41", false},
		{"Art. 41", "OR", "41", false},
		{"art 336c", "OR", "336c", false},
		{"Artikel 8", "ZGB", "8", false},
		{"8bis", "BV", "8bis", false},
		{"41 Abs. 1", "OR", "", true},
		{"", "OR", "", true},
		{"41", "", "", true},
		{"41", "O R", "", true},
	}
	for _, tt := range tests {
		req := ProvisionRequest{Article: tt.article, Law: tt.law}
		err := req.Validate()
		if tt.wantErr {
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("%q %q: err = %v, want invalid input", tt.article, tt.law, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q %q: %v", tt.article, tt.law, err)
			continue
		}
		if req.Article != tt.wantArticle || req.Limit != models.DefaultSearchLimit {
			t.Errorf("%q: article=%q limit=%d", tt.article, req.Article, req.Limit)
		}
	}
}

func TestExcerpts(t *testing.T) {
	req := ProvisionRequest{Article: "41", Law: "OR"}
	re := req.pattern()
	filler := strings.Repeat("Lorem ipsum dolor sit amet. ", 20)

	text := filler + "Nach Art. 41 Abs. 1 OR haftet, wer einem andern widerrechtlich Schaden zufügt. " + filler +
		"Die Voraussetzungen von art. 41 OR sind erfüllt. Art. 410 OR ist nicht anwendbar. Art. 41 ZGB auch nicht."
	got := excerpts(re, text)
	if len(got) != 2 {
		t.Fatalf("excerpts = %d %q, want 2", len(got), got)
	}
	if !strings.HasPrefix(got[0], "...") || !strings.HasSuffix(got[0], "...") || !strings.Contains(got[0], "Art. 41 Abs. 1 OR haftet") {
		t.Errorf("first excerpt = %q", got[0])
	}
	if !strings.Contains(got[1], "art. 41 OR sind erfüllt") {
		t.Errorf("second excerpt = %q", got[1])
	}
	if len([]rune(got[0])) > 2*excerptRadius+60 {
		t.Errorf("excerpt too long: %d runes", len([]rune(got[0])))
	}

	if ex := excerpts(re, "Art. 4 OR und Art. 141 OR."); len(ex) != 0 {
		t.Errorf("matched other articles: %q", ex)
	}
	var many strings.Builder
	for i := range 10 {
		fmt.Fprintf(&many, "%s Erwägung %d zu Art. 41 OR. ", filler, i)
	}
	if ex := excerpts(re, many.String()); len(ex) != maxExcerpts {
		t.Errorf("excerpts = %d, want %d", len(ex), maxExcerpts)
	}
}

func TestInterpretProvision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	stored := federal("BG-1", "Haftung aus unerlaubter Handlung", "Gemäss Art. 41 OR haftet der Schädiger.", "2019-03-01", "Haftpflichtrecht")
	unrelated := federal("BG-2", "Kaufvertrag", "Art. 197 OR", "2020-03-01")
	env.put(t, stored, unrelated)

	upstream := cantonal("ZH-1", "ZH", "Genugtuung", "Die Anwendung von Art. 41 Abs. 1 OR setzt Verschulden voraus.", "2022-08-01")
	env.engine.decisions = []*models.Decision{upstream}

	a := env.analyzer(nil)
	rep, err := a.InterpretProvision(ctx, ProvisionRequest{Article: "Art. 41", Law: "OR"})
	if err != nil {
		t.Fatalf("InterpretProvision: %v", err)
	}
	if rep.Provision != "Art. 41 OR" || env.engine.last.Query != "Art. 41 OR" {
		t.Errorf("provision = %q, query = %q", rep.Provision, env.engine.last.Query)
	}
	if rep.Total != 2 || rep.WithExcerpts != 2 {
		t.Fatalf("total=%d with_excerpts=%d: %+v", rep.Total, rep.WithExcerpts, rep.Decisions)
	}
	if rep.Decisions[0].Decision.ID != "ZH-1" || rep.Decisions[1].Decision.ID != "BG-1" {
		t.Errorf("order = %s, %s", rep.Decisions[0].Decision.ID, rep.Decisions[1].Decision.ID)
	}
	if rep.ByCourtLevel[models.CourtLevelFederal] != 1 || rep.ByCourtLevel[models.CourtLevelCantonal] != 1 {
		t.Errorf("by court level = %v", rep.ByCourtLevel)
	}
	if rep.FirstDecision != "2019-03-01" || rep.LatestDecision != "2022-08-01" {
		t.Errorf("range = %s..%s", rep.FirstDecision, rep.LatestDecision)
	}
}

func TestInterpretProvisionFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, federal("BG-1", "Haftung", "Gemäss Art. 41 OR haftet der Schädiger.", "2019-03-01"))
	env.engine.err = fmt.Errorf("%w: upstream down", models.ErrAllSourcesFailed)

	rep, err := env.analyzer(nil).InterpretProvision(ctx, ProvisionRequest{Article: "41", Law: "OR"})
	if err != nil {
		t.Fatalf("InterpretProvision: %v", err)
	}
	if rep.Total != 1 || rep.Decisions[0].Decision.ID != "BG-1" || len(rep.Decisions[0].Excerpts) != 1 {
		t.Errorf("report = %+v", rep)
	}

	env.engine.err = errors.New("boom")
	if _, err := env.analyzer(nil).InterpretProvision(ctx, ProvisionRequest{Article: "42", Law: "OR"}); err == nil {
		t.Error("expected unexpected search errors to surface")
	}
}
