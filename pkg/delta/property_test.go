package delta

import (
	"reflect"
	"testing"

	"github.com/dukex/parley/pkg/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var opPool = []models.Operation{
	models.SetOp{Path: "date", Value: "tomorrow"},
	models.SetOp{Path: "date", Value: "friday"},
	models.SetOp{Path: "notes", Value: map[string]any{"k": "v"}},
	models.SetOp{Path: "attendees", Value: 3},
	models.UnsetOp{Path: "notes"},
	models.UnsetOp{Path: "date"},
	models.TransitionOp{To: "SCHEDULED"},
	models.TransitionOp{To: "CANCELLED"},
	models.AppendEventRefOp{Ref: "msg-1"},
	models.SetOp{Path: "nonexistent", Value: 1},
}

func deltaFrom(indexes []int) models.Delta {
	d := make(models.Delta, 0, len(indexes))
	for _, i := range indexes {
		d = append(d, opPool[i])
	}

	return d
}

func snapshotFrom(date string, withNotes bool) models.Snapshot {
	s := models.Snapshot{State: "SCORING", Slots: map[string]any{}}
	if date != "" {
		s.Slots["date"] = date
	}

	if withNotes {
		s.Slots["notes"] = "seed"
	}

	return s
}

func TestApplyIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("apply(apply(s, d), d) == apply(s, d)", prop.ForAll(
		func(indexes []int, date string, withNotes bool) bool {
			d := deltaFrom(indexes)
			s := snapshotFrom(date, withNotes)

			once, err := Apply(s, d)
			if err != nil {
				return false
			}

			twice, err := Apply(once, d)
			if err != nil {
				return false
			}

			return reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(gen.IntRange(0, len(opPool)-1)),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.Property("apply leaves its input untouched", prop.ForAll(
		func(indexes []int, date string) bool {
			s := snapshotFrom(date, true)
			before := s.Clone()

			_, err := Apply(s, deltaFrom(indexes))

			return err == nil && reflect.DeepEqual(before, s)
		},
		gen.SliceOf(gen.IntRange(0, len(opPool)-1)),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestValidateAllOrNothing(t *testing.T) {
	def := appointmentDefinition()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a delta holding an unknown slot is always rejected", prop.ForAll(
		func(indexes []int, at int) bool {
			d := deltaFrom(indexes)
			pos := at % (len(d) + 1)
			d = append(d[:pos], append(models.Delta{models.SetOp{Path: "nonexistent", Value: 1}}, d[pos:]...)...)

			return Validate(snapshotFrom("tomorrow", false), d, def) != nil
		},
		gen.SliceOf(gen.IntRange(0, len(opPool)-2)),
		gen.IntRange(0, 50),
	))

	properties.Property("validation is deterministic", prop.ForAll(
		func(indexes []int) bool {
			d := deltaFrom(indexes)
			s := snapshotFrom("tomorrow", true)

			first := Validate(s, d, def)
			second := Validate(s, d, def)

			return (first == nil) == (second == nil)
		},
		gen.SliceOf(gen.IntRange(0, len(opPool)-1)),
	))

	properties.TestingRun(t)
}
