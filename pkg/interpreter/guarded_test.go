package interpreter_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/parley/pkg/breaker"
	"github.com/dukex/parley/pkg/interpreter"
	"github.com/dukex/parley/pkg/mocks"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTrustedSlots(t *testing.T) {
	def := testutil.CreateTestDefinition()
	text := "quiero una cita mañana"

	kept, dropped := interpreter.TrustedSlots(def, []models.CandidateSlot{
		{Path: "date", Value: "tomorrow", Evidence: "mañana"},
		{Path: "date", Value: "friday", Evidence: "viernes"},
		{Path: "date", Value: "x"},
		{Path: "ghost", Value: "x", Evidence: "cita"},
	}, text)

	require.Len(t, kept, 1)
	assert.Equal(t, "tomorrow", kept[0].Value)
	assert.Len(t, dropped, 3)
}

func TestGuarded_Interpret(t *testing.T) {
	def := testutil.CreateTestDefinition()
	text := "quiero una cita mañana"

	next := &mocks.MockInterpreter{}
	next.On("Interpret", mock.Anything, []*models.WorkDefinition{def}, text).Return(&interpreter.Analysis{
		WorkDefinitionTypeID: def.TypeID,
		Confidence:           0.9,
		Slots: []models.CandidateSlot{
			{Path: "date", Value: "tomorrow", Evidence: "mañana"},
			{Path: "date", Value: "friday", Evidence: "el viernes"},
		},
	}, nil)

	g := interpreter.NewGuarded(next, breaker.New(breaker.NewMemoryStore(), testLogger()), "test", testLogger())

	analysis := g.Interpret(t.Context(), []*models.WorkDefinition{def}, text)
	require.NotNil(t, analysis)
	assert.Len(t, analysis.Slots, 1)
	assert.Equal(t, "test", analysis.Model.Provider)
	next.AssertExpectations(t)
}

func TestGuarded_InterpretUnknownType(t *testing.T) {
	def := testutil.CreateTestDefinition()

	next := &mocks.MockInterpreter{}
	next.On("Interpret", mock.Anything, mock.Anything, mock.Anything).Return(&interpreter.Analysis{WorkDefinitionTypeID: "other"}, nil)

	g := interpreter.NewGuarded(next, breaker.New(breaker.NewMemoryStore(), testLogger()), "test", testLogger())

	assert.Nil(t, g.Interpret(t.Context(), []*models.WorkDefinition{def}, "hola"))
}

func TestGuarded_BreakerOpensAfterFailures(t *testing.T) {
	def := testutil.CreateTestDefinition()

	next := &mocks.MockInterpreter{}
	next.On("SolveActiveWork", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	g := interpreter.NewGuarded(next, breaker.New(breaker.NewMemoryStore(), testLogger()), "test", testLogger())

	for range breaker.DefaultThreshold {
		assert.Nil(t, g.SolveActiveWork(t.Context(), def, models.NewSnapshot("SCORING", nil), "el viernes"))
	}

	assert.Nil(t, g.SolveActiveWork(t.Context(), def, models.NewSnapshot("SCORING", nil), "el viernes"))
	next.AssertNumberOfCalls(t, "SolveActiveWork", breaker.DefaultThreshold)
}
