package models

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func validFederal() *Decision {
	return &Decision{
		ID:           "BG-6B_123/2021",
		CourtLevel:   CourtLevelFederal,
		Title:        "Strafzumessung",
		DecisionDate: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		Language:     LanguageGerman,
		Chamber:      "Strafrechtliche Abteilung",
	}
}

func TestDecision_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Decision)
		field   string
		wantErr bool
	}{
		{"valid federal", func(d *Decision) {}, "", false},
		{"missing id", func(d *Decision) { d.ID = " " }, "decision_id", true},
		{"missing title", func(d *Decision) { d.Title = "" }, "title", true},
		{"bad level", func(d *Decision) { d.CourtLevel = CourtLevelAll }, "court_level", true},
		{"federal with canton", func(d *Decision) { d.Canton = "ZH" }, "canton", true},
		{"cantonal without canton", func(d *Decision) { d.CourtLevel = CourtLevelCantonal; d.Chamber = "" }, "canton", true},
		{"cantonal with chamber", func(d *Decision) { d.CourtLevel = CourtLevelCantonal; d.Canton = "ZH" }, "chamber", true},
		{"bad language", func(d *Decision) { d.Language = "xx" }, "language", true},
		{"missing date", func(d *Decision) { d.DecisionDate = time.Time{} }, "decision_date", true},
		{"valid cantonal", func(d *Decision) {
			d.ID = "ZH-PS210001"
			d.CourtLevel = CourtLevelCantonal
			d.Canton = "ZH"
			d.Chamber = ""
		}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validFederal()
			tt.mutate(d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestDecision_Normalize(t *testing.T) {
	d := validFederal()
	d.DecisionDate = time.Date(2021, 6, 1, 15, 4, 5, 0, time.UTC)
	d.LegalAreas = []string{"Strafrecht", "STRAFRECHT", "Verfahren"}
	d.RelatedDecisions = []string{"BG-1", d.ID, "BG-1", " "}
	d.CreatedAt = time.Date(2024, 1, 1, 1, 1, 1, 123456789, time.FixedZone("CET", 3600))
	d.Normalize()

	if !d.DecisionDate.Equal(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DecisionDate = %v", d.DecisionDate)
	}
	if !reflect.DeepEqual(d.LegalAreas, []string{"Strafrecht", "Verfahren"}) {
		t.Errorf("LegalAreas = %v", d.LegalAreas)
	}
	if !reflect.DeepEqual(d.RelatedDecisions, []string{"BG-1"}) {
		t.Errorf("RelatedDecisions = %v", d.RelatedDecisions)
	}
	if d.CreatedAt.Nanosecond() != 123000000 || d.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v", d.CreatedAt)
	}
}

func TestCanonicalBGE(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BGE 147 III 73", "BGE 147 III 73"},
		{"ATF 140 III 433", "BGE 140 III 433"},
		{"DTF  145\tIV 1", "BGE 145 IV 1"},
		{"  atf 121 Ia 1 ", "BGE 121 Ia 1"},
		{"ATF 140 III 433 E. 2", "ATF 140 III 433 E. 2"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalBGE(tt.in); got != tt.want {
			t.Errorf("CanonicalBGE(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	d := validFederal()
	d.BGEReference = " ATF 140  III 433"
	d.Normalize()
	if d.BGEReference != "BGE 140 III 433" {
		t.Errorf("normalized BGEReference = %q", d.BGEReference)
	}
}

func TestIDPrefix(t *testing.T) {
	for id, want := range map[string]string{
		"BG-6B_123/2021": "BG",
		"ZH-PS210001":    "ZH",
		"nodash":         "",
		"-x":             "",
	} {
		if got := IDPrefix(id); got != want {
			t.Errorf("IDPrefix(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestParseCanton(t *testing.T) {
	if c, err := ParseCanton("ZH"); err != nil || c != "ZH" {
		t.Errorf("ParseCanton(ZH) = %q, %v", c, err)
	}
	for _, bad := range []string{"zh", "XX", "", "ZHH"} {
		if _, err := ParseCanton(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseCanton(%q) err = %v", bad, err)
		}
	}
	if len(Cantons) != 26 {
		t.Errorf("expected 26 cantons, got %d", len(Cantons))
	}
}

func TestParseLanguage(t *testing.T) {
	for in, want := range map[string]Language{"de": LanguageGerman, "de-CH": LanguageGerman, "FR": LanguageFrench, "rm": LanguageRomansh} {
		got, err := ParseLanguage(in)
		if err != nil || got != want {
			t.Errorf("ParseLanguage(%q) = %q, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "es", "??"} {
		if _, err := ParseLanguage(bad); err == nil {
			t.Errorf("ParseLanguage(%q) should fail", bad)
		}
	}
}

func TestParseDate(t *testing.T) {
	if d, err := ParseDate(""); err != nil || !d.IsZero() {
		t.Errorf("empty date = %v, %v", d, err)
	}
	if _, err := ParseDate("01.06.2021"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	d, err := ParseDate("2021-06-01")
	if err != nil || FormatDate(d) != "2021-06-01" {
		t.Errorf("round trip = %v, %v", d, err)
	}
}

func TestDecisionPatch_IsEmpty(t *testing.T) {
	if !(DecisionPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	title := "x"
	if (DecisionPatch{Title: &title}).IsEmpty() {
		t.Error("patch with title should not be empty")
	}
}

func TestSortByDateDesc(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC) }
	ds := []*Decision{{ID: "b", DecisionDate: day(1)}, {ID: "c", DecisionDate: day(2)}, {ID: "a", DecisionDate: day(1)}}
	SortByDateDesc(ds)
	var ids []string
	for _, d := range ds {
		ids = append(ids, d.ID)
	}
	if !reflect.DeepEqual(ids, []string{"c", "a", "b"}) {
		t.Errorf("order = %v", ids)
	}
}
