// Package interpreter is the boundary to the external collaborator that turns free text
// into candidate work analyses. Everything it returns is untrusted.
package interpreter

import (
	"context"
	"strings"

	"github.com/dukex/parley/pkg/models"
)

// Analysis is the interpreter's proposal of a new work for a message.
type Analysis struct {
	WorkDefinitionTypeID string                 `json:"work_definition_type_id"`
	Intent               string                 `json:"intent"`
	Confidence           float64                `json:"confidence"`
	Slots                []models.CandidateSlot `json:"slots"`
	Model                models.ModelInfo       `json:"model"`
}

// Interpreter is the port implemented by concrete providers. A nil result with a nil
// error means the provider found nothing.
type Interpreter interface {
	Interpret(ctx context.Context, definitions []*models.WorkDefinition, text string) (*Analysis, error)
	SolveActiveWork(ctx context.Context, definition *models.WorkDefinition, state models.Snapshot, text string) ([]models.CandidateSlot, error)
}

// HasVerbatimEvidence reports whether the slot's evidence occurs verbatim in text.
func HasVerbatimEvidence(slot models.CandidateSlot, text string) bool {
	return slot.Evidence != "" && strings.Contains(text, slot.Evidence)
}

// TrustedSlots keeps the slots that name a slot of def and carry verbatim evidence, and
// returns the dropped ones separately.
func TrustedSlots(def *models.WorkDefinition, slots []models.CandidateSlot, text string) (kept, dropped []models.CandidateSlot) {
	for _, s := range slots {
		if _, ok := def.Slot(s.Path); !ok || !HasVerbatimEvidence(s, text) {
			dropped = append(dropped, s)

			continue
		}

		kept = append(kept, s)
	}

	return kept, dropped
}
