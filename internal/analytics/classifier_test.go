package analytics

import (
	"testing"

	"github.com/hyperjump/entscheid/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		summary string
		want    Outcome
	}{
		{"german success", "Mietzins", "Die Beschwerde wird gutgeheissen.", OutcomeSuccess},
		{"german failure", "Kündigung", "Die Beschwerde wird abgewiesen, soweit darauf eingetreten wird.", OutcomeFailure},
		{"german no entry", "Fristversäumnis", "Auf die Beschwerde wird nicht eingetreten.", OutcomeFailure},
		{"partial success", "Haftung", "Die Beschwerde wird teilweise gutgeheissen, im Übrigen abgewiesen.", OutcomeSuccess},
		{"french success", "Bail", "Le recours est admis et l'arrêt attaqué annulé.", OutcomeSuccess},
		{"french failure", "Bail", "Le recours est rejeté.", OutcomeFailure},
		{"french inadmissible", "Bail", "Le recours est irrecevable.", OutcomeFailure},
		{"italian success", "Locazione", "Il ricorso è accolto.", OutcomeSuccess},
		{"italian failure", "Locazione", "Il ricorso è respinto.", OutcomeFailure},
		{"english failure", "Appeal", "The appeal is dismissed.", OutcomeFailure},
		{"tie", "Beschwerde", "Gutgeheissen in einem Punkt, abgewiesen im anderen.", OutcomeUnclassified},
		{"no signal", "Verfahren betreffend Mietrecht", "Sachverhalt und Erwägungen.", OutcomeUnclassified},
		{"no substring match", "Zulässigkeit", "La question de l'admissibilité reste ouverte.", OutcomeUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &models.Decision{Title: tt.title, Summary: tt.summary}
			if got := Classify(d); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
