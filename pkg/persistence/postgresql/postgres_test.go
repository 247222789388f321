package postgresql_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/persistence/postgresql"
	"github.com/dukex/parley/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWork(ctx context.Context, t *testing.T, store *postgresql.Persistence, state string, expiresAt *time.Time) (*models.WorkDefinition, *models.Work) {
	t.Helper()

	def := testutil.CreateTestDefinition()
	require.NoError(t, store.Definitions().Insert(ctx, def))

	now := time.Now().UTC().Truncate(time.Microsecond)
	work := &models.Work{
		AccountID:         def.AccountID,
		RelationshipID:    "rel-1",
		ConversationID:    "conv-1",
		WorkDefinitionID:  def.ID,
		DefinitionVersion: def.Version,
		State:             state,
		Revision:          1,
		ExpiresAt:         expiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return tx.InsertWork(ctx, work)
	})
	require.NoError(t, err)

	return def, work
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := testutil.SetupPostgres(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer db.Close()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	for _, table := range []string{"work_definitions", "works", "work_slots", "work_events", "semantic_contexts", "external_effect_claims"} {
		var exists bool

		err := db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)

	require.NoError(t, store.HealthCheck(ctx))
}

func TestDefinitionRepository(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	repo := store.Definitions()

	def := testutil.CreateTestDefinition(testutil.WithSlot(models.SlotSpec{
		Path:      "patient_id",
		Type:      models.SlotTypeString,
		Immutable: true,
		Schema:    map[string]any{"minLength": float64(3)},
	}))
	require.NoError(t, repo.Insert(ctx, def))
	assert.NotEmpty(t, def.ID)

	t.Run("get exact version", func(t *testing.T) {
		got, err := repo.Get(ctx, def.AccountID, def.TypeID, "1.0.0")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, def.ID, got.ID)
		assert.Equal(t, def.FSM, got.FSM)
		assert.Equal(t, def.Slots, got.Slots)
	})

	t.Run("absent version is nil", func(t *testing.T) {
		got, err := repo.Get(ctx, def.AccountID, def.TypeID, "9.9.9")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate version", func(t *testing.T) {
		dup := testutil.CreateTestDefinition(testutil.WithAccount(def.AccountID))
		err := repo.Insert(ctx, dup)
		require.Error(t, err)
		assert.True(t, persistence.IsDuplicateVersion(err))
	})

	t.Run("same version in another account", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, testutil.CreateTestDefinition()))
	})

	t.Run("list versions", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, testutil.CreateTestDefinition(
			testutil.WithAccount(def.AccountID), testutil.WithVersion("10.0.0"))))

		versions, err := repo.ListVersions(ctx, def.AccountID, def.TypeID)
		require.NoError(t, err)
		assert.Len(t, versions, 2)

		all, err := repo.ListAll(ctx, def.AccountID)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestWorkRepository_AdvanceRevision(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	_, work := seedWork(ctx, t, store, "SCORING", nil)

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		revision, err := tx.AdvanceRevision(ctx, work.ID, 1, "SCHEDULED", time.Now().UTC())
		if err != nil {
			return err
		}

		assert.Equal(t, int64(2), revision)

		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		_, err := tx.AdvanceRevision(ctx, work.ID, 1, "SCORING", time.Now().UTC())

		return err
	})
	require.Error(t, err)
	assert.True(t, persistence.IsConcurrencyConflict(err))

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		got, err := tx.GetWork(ctx, work.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Revision)
		assert.Equal(t, "SCHEDULED", got.State)

		return nil
	})
	require.NoError(t, err)
}

func TestWorkRepository_SlotsAndActiveWork(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	def, work := seedWork(ctx, t, store, "SCORING", nil)

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		now := time.Now().UTC()
		for _, slot := range []*models.WorkSlot{
			{WorkID: work.ID, Path: "date", Value: "tomorrow", Status: models.SlotStatusCommitted, SetBy: models.ActorAI, Evidence: "mañana", UpdatedAt: now},
			{WorkID: work.ID, Path: "date", Value: "friday", Status: models.SlotStatusCommitted, SetBy: models.ActorUser, UpdatedAt: now},
			{WorkID: work.ID, Path: "meta", Value: map[string]any{"n": float64(2)}, Status: models.SlotStatusProposed, SetBy: models.ActorSystem, UpdatedAt: now},
		} {
			if err := tx.UpsertSlot(ctx, slot); err != nil {
				return err
			}
		}

		return tx.DeleteSlot(ctx, work.ID, "missing")
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		slots, err := tx.ListSlots(ctx, work.ID)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, "friday", slots[0].Value)
		assert.Equal(t, models.ActorUser, slots[0].SetBy)
		assert.Equal(t, map[string]any{"n": float64(2)}, slots[1].Value)

		count, err := tx.CountActiveWorks(ctx, def.AccountID, "rel-1", "conv-1", def.TypeID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		return nil
	})
	require.NoError(t, err)

	active, err := store.FindActiveWork(ctx, def.AccountID, "rel-1", "conv-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, work.ID, active.ID)

	none, err := store.FindActiveWork(ctx, def.AccountID, "rel-1", "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	_, work := seedWork(ctx, t, store, "SCORING", nil)

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		err := tx.UpsertSlot(ctx, &models.WorkSlot{
			WorkID: work.ID, Path: "date", Value: "x", Status: models.SlotStatusCommitted, SetBy: models.ActorUser, UpdatedAt: time.Now(),
		})
		require.NoError(t, err)

		_, err = tx.AdvanceRevision(ctx, work.ID, 99, "SCHEDULED", time.Now())

		return err
	})
	require.Error(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		slots, err := tx.ListSlots(ctx, work.ID)
		require.NoError(t, err)
		assert.Empty(t, slots)

		return nil
	})
	require.NoError(t, err)
}

func TestProposalRepository_Resolve(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	def := testutil.CreateTestDefinition()
	require.NoError(t, store.Definitions().Insert(ctx, def))

	proposal := &models.ProposedWork{
		AccountID:        def.AccountID,
		ConversationID:   "conv-1",
		WorkDefinitionID: def.ID,
		Intent:           "book",
		CandidateSlots:   []models.CandidateSlot{{Path: "date", Value: "tomorrow", Evidence: "mañana"}},
		Confidence:       0.95,
		Resolution:       models.ResolutionPending,
		CreatedAt:        time.Now().UTC(),
	}

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		decision := &models.DecisionEvent{AccountID: def.AccountID, ConversationID: "conv-1", Kind: "propose", CreatedAt: time.Now().UTC()}
		if err := tx.InsertDecisionEvent(ctx, decision); err != nil {
			return err
		}

		proposal.DecisionEventID = decision.ID

		return tx.InsertProposedWork(ctx, proposal)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		got, err := tx.ResolveProposedWork(ctx, def.AccountID, proposal.ID, models.ResolutionDiscarded, "", time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionDiscarded, got.Resolution)
		assert.NotNil(t, got.DiscardedAt)
		assert.Equal(t, proposal.CandidateSlots, got.CandidateSlots)

		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		_, err := tx.ResolveProposedWork(ctx, def.AccountID, proposal.ID, models.ResolutionDiscarded, "", time.Now().UTC())

		return err
	})
	assert.ErrorIs(t, err, persistence.ErrAlreadyResolved)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		_, err := tx.ResolveProposedWork(ctx, "other-account", proposal.ID, models.ResolutionDiscarded, "", time.Now().UTC())

		return err
	})
	assert.ErrorIs(t, err, persistence.ErrProposedWorkNotFound)
}

func TestSemanticContextRepository(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	def, work := seedWork(ctx, t, store, "SCORING", nil)
	now := time.Now().UTC()

	pending := &models.SemanticContext{
		AccountID: def.AccountID, ConversationID: "conv-1", WorkID: work.ID, SlotPath: "date",
		ProposedValue: "friday", Status: models.SemanticContextPending, ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}
	stale := &models.SemanticContext{
		AccountID: def.AccountID, ConversationID: "conv-1", SlotPath: "date",
		ProposedValue: "monday", Status: models.SemanticContextPending, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(time.Second),
	}

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		require.NoError(t, tx.InsertSemanticContext(ctx, pending))

		return tx.InsertSemanticContext(ctx, stale)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		found, err := tx.FindPendingSemanticContext(ctx, def.AccountID, "conv-1", now)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, pending.ID, found.ID, "expired contexts are never matched")

		_, err = tx.ConsumeSemanticContext(ctx, stale.ID, "msg-1", now)
		assert.ErrorIs(t, err, persistence.ErrInvalidOrExpired)

		consumed, err := tx.ConsumeSemanticContext(ctx, pending.ID, "msg-2", now)
		require.NoError(t, err)
		assert.Equal(t, models.SemanticContextConsumed, consumed.Status)
		assert.Equal(t, "msg-2", consumed.MessageID)

		_, err = tx.ConsumeSemanticContext(ctx, pending.ID, "msg-3", now)
		assert.ErrorIs(t, err, persistence.ErrInvalidOrExpired)

		_, err = tx.ConsumeSemanticContext(ctx, "00000000-0000-0000-0000-000000000000", "msg-4", now)
		assert.ErrorIs(t, err, persistence.ErrSemanticContextNotFound)

		return nil
	})
	require.NoError(t, err)
}

func TestEffectRepository(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	def, work := seedWork(ctx, t, store, "SCORING", nil)
	now := time.Now().UTC()

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		first, err := tx.InsertClaim(ctx, &models.ExternalEffectClaim{
			AccountID: def.AccountID, WorkID: work.ID, EffectType: "calendar.book", ToolCallID: "call-1",
			Status: models.ClaimStatusClaimed, CreatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, first.IdempotencyKey)

		again, err := tx.InsertClaim(ctx, &models.ExternalEffectClaim{
			AccountID: def.AccountID, WorkID: work.ID, EffectType: "calendar.book", ToolCallID: "call-1",
			Status: models.ClaimStatusClaimed, CreatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID, "same tool call yields the same claim")

		require.NoError(t, tx.InsertEffect(ctx, &models.ExternalEffect{
			AccountID: def.AccountID, WorkID: work.ID, ClaimID: first.ID, IdempotencyKey: first.IdempotencyKey,
			ToolName: "calendar", Status: models.EffectStatusSucceeded, CreatedAt: now,
		}))
		require.NoError(t, tx.ReleaseClaim(ctx, first.ID, now))
		assert.ErrorIs(t, tx.ReleaseClaim(ctx, first.ID, now), persistence.ErrClaimNotActive)

		claim, err := tx.GetClaim(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ClaimStatusReleased, claim.Status)

		return nil
	})
	require.NoError(t, err)
}

func TestMaintenanceRepository_ExpireIsIdempotent(t *testing.T) {
	store, ctx, _ := testutil.SetupPostgres(t)
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	_, due := seedWork(ctx, t, store, "SCORING", &past)
	_, notDue := seedWork(ctx, t, store, "SCORING", &future)
	_, done := seedWork(ctx, t, store, models.StateCompleted, &past)

	var expired []models.ExpiredWork

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error

		expired, err = tx.ExpireWorks(ctx, time.Now().UTC())

		return err
	})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].WorkID)
	assert.Equal(t, "SCORING", expired[0].FromState)
	assert.Equal(t, int64(2), expired[0].Revision)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		again, err := tx.ExpireWorks(ctx, time.Now().UTC())
		require.NoError(t, err)
		assert.Empty(t, again)

		for _, id := range []string{notDue.ID, done.ID} {
			w, err := tx.GetWork(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(1), w.Revision)
		}

		return nil
	})
	require.NoError(t, err)
}
