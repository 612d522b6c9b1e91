// Package citation extracts citation references from decision text and serves the
// citation graph built from them.
package citation

import (
	"regexp"
	"strings"

	"github.com/hyperjump/entscheid/internal/models"
)

var (
	// BGE 147 III 73, ATF 140 III 433, DTF 145 IV 1, BGE 121 Ia 1
	bgeRe = regexp.MustCompile(`\b(?:BGE|ATF|DTF)\s+(\d{1,3})\s+(Ia|Ib|II|III|IV|V|I)\s+(\d{1,4})\b`)
	// 6B_123/2021, 4A_12/2020, 5P.123/2004
	docketRe = regexp.MustCompile(`\b(\d{1,2}[A-Z]{1,2})[_.](\d{1,5})/((?:19|20)\d{2})\b`)
)

// Mine returns the citation references found in text: BGE references (ATF and DTF
// are folded to BGE) and federal docket numbers. References are deduplicated and
// returned in order of first appearance.
func Mine(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	type match struct {
		pos int
		ref string
	}
	var found []match
	for _, m := range bgeRe.FindAllStringSubmatchIndex(text, -1) {
		ref := models.CanonicalBGE(text[m[0]:m[1]])
		found = append(found, match{m[0], ref})
	}
	for _, m := range docketRe.FindAllStringSubmatchIndex(text, -1) {
		ref := text[m[2]:m[3]] + "_" + text[m[4]:m[5]] + "/" + text[m[6]:m[7]]
		if text[m[3]] == '.' {
			ref = text[m[2]:m[3]] + "." + text[m[4]:m[5]] + "/" + text[m[6]:m[7]]
		}
		found = append(found, match{m[0], ref})
	}
	// Two passes leave the matches grouped by kind; restore text order.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].pos < found[j-1].pos; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	seen := make(map[string]struct{}, len(found))
	var out []string
	for _, f := range found {
		if _, ok := seen[f.ref]; ok {
			continue
		}
		seen[f.ref] = struct{}{}
		out = append(out, f.ref)
	}
	return out
}
