package registry_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDefinition = `
type_id: appointment_scheduler
version: 1.2.0
name: Appointment scheduler
slots:
  - path: date
    type: string
    required: true
  - path: patient_id
    type: string
    immutable: true
fsm:
  states: [SCORING, SCHEDULED, CANCELLED]
  initial: SCORING
  transitions:
    - {from: SCORING, to: SCHEDULED}
    - {from: "*", to: CANCELLED}
policies:
  expiration_seconds: 3600
  concurrency: single_active
  negotiation:
    auto_open: true
    confirm_immutable: true
binding_attribute: date
`

const jsonDefinition = `{
  "id": "ignored",
  "account_id": "acc-1",
  "type_id": "refund",
  "version": "0.1.0",
  "slots": [{"path": "order_id", "type": "string"}],
  "fsm": {"states": ["OPEN", "DONE"], "transitions": [{"from": "OPEN", "to": "DONE"}]}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()

		def, err := registry.LoadFile(writeFile(t, "def.yaml", yamlDefinition))
		require.NoError(t, err)

		assert.Equal(t, "appointment_scheduler", def.TypeID)
		assert.Equal(t, "1.2.0", def.Version)
		assert.Len(t, def.Slots, 2)
		assert.True(t, def.Slots[1].Immutable)
		assert.Equal(t, "SCORING", def.InitialState())
		assert.Equal(t, models.ConcurrencySingleActive, def.Policies.Concurrency)
		assert.True(t, def.Policies.Negotiation.AutoOpen)
		assert.Equal(t, "date", def.BindingAttribute)
		assert.NoError(t, registry.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil))).Validate(def))
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		def, err := registry.LoadFile(writeFile(t, "def.json", jsonDefinition))
		require.NoError(t, err)

		assert.Equal(t, "refund", def.TypeID)
		assert.Equal(t, models.DefaultInitialState, def.InitialState())
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()

		_, err := registry.LoadFile(writeFile(t, "def.yaml", "type_id: x\nstates: [A]\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := registry.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
