package analytics

import (
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/pkg/utils"
)

// Outcome is the classified result of a decision from the appellant's view.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeUnclassified is reported when the text gives no clear signal.
	OutcomeUnclassified Outcome = "unclassified"
)

// Outcome phrases by language. Matching is on whole folded tokens, so phrases
// never match inside longer words ("admis" vs "inadmissible").
var (
	positivePhrases = map[models.Language][]string{
		models.LanguageGerman:  {"gutgeheissen", "gutzuheissen", "teilweise gutgeheissen", "stattgegeben", "aufgehoben", "obsiegt"},
		models.LanguageFrench:  {"admis", "admet", "admise", "bien fondé", "annulé", "annulée", "accueilli"},
		models.LanguageItalian: {"accolto", "accolta", "accoglie", "annullato", "annullata", "fondato"},
		models.LanguageRomansh: {"approvà", "approvada", "admess"},
		models.LanguageEnglish: {"granted", "appeal allowed", "upheld the appeal", "set aside"},
	}
	negativePhrases = map[models.Language][]string{
		models.LanguageGerman:  {"abgewiesen", "abzuweisen", "nicht eingetreten", "nichteintreten", "unbegründet", "abgelehnt"},
		models.LanguageFrench:  {"rejeté", "rejetée", "rejette", "irrecevable", "mal fondé", "n'entre pas en matière"},
		models.LanguageItalian: {"respinto", "respinta", "respinge", "inammissibile", "infondato", "non entra nel merito"},
		models.LanguageRomansh: {"refusà", "refusada", "betg admissibel"},
		models.LanguageEnglish: {"dismissed", "rejected", "inadmissible", "denied"},
	}
)

// Classify reads the title and summary of d and counts outcome phrases of every
// language; decisions are often summarized in another language than they are
// written in. More positive than negative phrases is a success, more negative
// a failure, anything else stays unclassified.
func Classify(d *models.Decision) Outcome {
	tokens := utils.Tokenize(d.Title+"\n"+d.Summary, 1)
	pos := countPhrases(tokens, positivePhrases)
	neg := countPhrases(tokens, negativePhrases)
	switch {
	case pos > neg:
		return OutcomeSuccess
	case neg > pos:
		return OutcomeFailure
	default:
		return OutcomeUnclassified
	}
}

func countPhrases(tokens []string, phrases map[models.Language][]string) int {
	n := 0
	for _, lang := range models.Languages {
		for _, p := range phrases[lang] {
			if utils.ContainsWord(tokens, p) {
				n++
			}
		}
	}
	return n
}
