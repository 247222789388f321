package registry_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/registry"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory DefinitionRepository for registry unit tests.
type memoryRepo struct {
	defs []*models.WorkDefinition
}

func (m *memoryRepo) Insert(_ context.Context, def *models.WorkDefinition) error {
	for _, d := range m.defs {
		if d.AccountID == def.AccountID && d.TypeID == def.TypeID && d.Version == def.Version {
			return persistence.ErrDuplicateVersion
		}
	}

	def.ID = def.TypeID + "-" + def.Version
	m.defs = append(m.defs, def)

	return nil
}

func (m *memoryRepo) Get(_ context.Context, accountID, typeID, version string) (*models.WorkDefinition, error) {
	for _, d := range m.defs {
		if d.AccountID == accountID && d.TypeID == typeID && d.Version == version {
			return d, nil
		}
	}

	return nil, nil
}

func (m *memoryRepo) GetByID(_ context.Context, id string) (*models.WorkDefinition, error) {
	for _, d := range m.defs {
		if d.ID == id {
			return d, nil
		}
	}

	return nil, nil
}

func (m *memoryRepo) ListVersions(_ context.Context, accountID, typeID string) ([]*models.WorkDefinition, error) {
	var out []*models.WorkDefinition

	for _, d := range m.defs {
		if d.AccountID == accountID && d.TypeID == typeID {
			out = append(out, d)
		}
	}

	return out, nil
}

func (m *memoryRepo) ListAll(_ context.Context, accountID string) ([]*models.WorkDefinition, error) {
	var out []*models.WorkDefinition

	for _, d := range m.defs {
		if d.AccountID == accountID {
			out = append(out, d)
		}
	}

	return out, nil
}

func newRegistry() *registry.Registry {
	return registry.New(&memoryRepo{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegister(t *testing.T) {
	reg := newRegistry()
	ctx := t.Context()

	def, err := reg.Register(ctx, "acc-1", testutil.CreateTestDefinition())
	require.NoError(t, err)
	assert.Equal(t, "acc-1", def.AccountID)
	assert.NotEmpty(t, def.ID)
	assert.False(t, def.CreatedAt.IsZero())

	_, err = reg.Register(ctx, "acc-1", testutil.CreateTestDefinition())
	assert.True(t, persistence.IsDuplicateVersion(err))

	got, err := reg.Get(ctx, "acc-1", "appointment_scheduler", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)

	missing, err := reg.Get(ctx, "acc-1", "appointment_scheduler", "2.0.0")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.WorkDefinition)
		reason string
	}{
		{"missing type id", func(d *models.WorkDefinition) { d.TypeID = "" }, "TypeID"},
		{"non semver version", func(d *models.WorkDefinition) { d.Version = "latest" }, "Version"},
		{"no states", func(d *models.WorkDefinition) { d.FSM.States = nil }, "States"},
		{"unknown initial", func(d *models.WorkDefinition) { d.FSM.Initial = "NOPE" }, "initial state"},
		{"default initial not declared", func(d *models.WorkDefinition) { d.FSM.Initial = "" }, `initial state "OPEN"`},
		{"unknown transition source", func(d *models.WorkDefinition) {
			d.FSM.Transitions = append(d.FSM.Transitions, models.Transition{From: "X", To: "SCHEDULED"})
		}, "transition source"},
		{"unknown transition target", func(d *models.WorkDefinition) {
			d.FSM.Transitions = append(d.FSM.Transitions, models.Transition{From: "SCORING", To: "X"})
		}, "transition target"},
		{"duplicate slot", func(d *models.WorkDefinition) { d.Slots = append(d.Slots, d.Slots[0]) }, "declared twice"},
		{"unknown binding attribute", func(d *models.WorkDefinition) { d.BindingAttribute = "email" }, "binding attribute"},
		{"bad slot type", func(d *models.WorkDefinition) { d.Slots[0].Type = "date" }, "Type"},
		{"bad concurrency", func(d *models.WorkDefinition) { d.Policies.Concurrency = "exclusive" }, "Concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testutil.CreateTestDefinition()
			tt.mutate(def)

			_, err := newRegistry().Register(t.Context(), "acc-1", def)
			require.ErrorIs(t, err, registry.ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestRegister_TerminalTargetNeedNotBeDeclared(t *testing.T) {
	def := testutil.CreateTestDefinition(func(d *models.WorkDefinition) {
		d.FSM.Transitions = append(d.FSM.Transitions, models.Transition{From: "SCHEDULED", To: models.StateCompleted})
	})

	_, err := newRegistry().Register(t.Context(), "acc-1", def)
	require.NoError(t, err)
}

func TestGetLatest_UsesSemanticOrdering(t *testing.T) {
	reg := newRegistry()
	ctx := t.Context()

	for _, v := range []string{"9.0.0", "10.0.0", "1.2.0", "10.0.0-rc.1"} {
		_, err := reg.Register(ctx, "acc-1", testutil.CreateTestDefinition(testutil.WithVersion(v)))
		require.NoError(t, err)
	}

	latest, err := reg.GetLatest(ctx, "acc-1", "appointment_scheduler")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0", latest.Version)

	id, err := reg.Lookup(ctx, "acc-1", "appointment_scheduler")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, id)

	_, err = reg.Lookup(ctx, "acc-1", "unknown_type")
	assert.True(t, persistence.IsNotFound(err))

	none, err := reg.GetLatest(ctx, "acc-2", "appointment_scheduler")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListLatest(t *testing.T) {
	reg := newRegistry()
	ctx := t.Context()

	register := func(typeID, version string) {
		_, err := reg.Register(ctx, "acc-1", testutil.CreateTestDefinition(
			func(d *models.WorkDefinition) { d.TypeID = typeID },
			testutil.WithVersion(version),
		))
		require.NoError(t, err)
	}

	register("onboarding", "2.0.0")
	register("appointment_scheduler", "1.0.0")
	register("onboarding", "11.0.0")
	register("appointment_scheduler", "1.0.1")

	latest, err := reg.ListLatest(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "appointment_scheduler", latest[0].TypeID)
	assert.Equal(t, "1.0.1", latest[0].Version)
	assert.Equal(t, "onboarding", latest[1].TypeID)
	assert.Equal(t, "11.0.0", latest[1].Version)
}

func TestLatest(t *testing.T) {
	assert.Nil(t, registry.Latest(nil))

	defs := []*models.WorkDefinition{{Version: "garbage"}, {Version: "0.0.1"}}
	assert.Equal(t, "0.0.1", registry.Latest(defs).Version)
}
