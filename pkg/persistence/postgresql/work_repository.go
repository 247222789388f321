package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/lib/pq"
)

const workColumns = `
			id
		  , account_id
		  , relationship_id
		  , conversation_id
		  , work_definition_id
		  , definition_version
		  , proposed_work_id
		  , state
		  , revision
		  , expires_at
		  , created_at
		  , updated_at`

// WorkRepository handles works and their slot rows.
type WorkRepository struct {
	q      querier
	logger *slog.Logger
}

// NewWorkRepository creates a new work repository.
func NewWorkRepository(q querier, logger *slog.Logger) *WorkRepository {
	return &WorkRepository{q: q, logger: logger}
}

// InsertWork stores a freshly opened work.
func (r *WorkRepository) InsertWork(ctx context.Context, work *models.Work) error {
	if work.ID == "" {
		id, err := newID("work")
		if err != nil {
			return err
		}

		work.ID = id
	}

	query := `
		INSERT INTO works (` + workColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		work.ID,
		work.AccountID,
		work.RelationshipID,
		work.ConversationID,
		work.WorkDefinitionID,
		work.DefinitionVersion,
		nullString(work.ProposedWorkID),
		work.State,
		work.Revision,
		work.ExpiresAt,
		work.CreatedAt,
		work.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkError("InsertWork", work.ID, err)
	}

	return nil
}

// GetWork loads a work row.
func (r *WorkRepository) GetWork(ctx context.Context, id string) (*models.Work, error) {
	if !isUUID(id) {
		return nil, persistence.NewWorkError("GetWork", id, persistence.ErrWorkNotFound)
	}

	query := `SELECT ` + workColumns + ` FROM works WHERE id = $1`

	work, err := r.scanWork(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkError("GetWork", id, persistence.ErrWorkNotFound)
		}

		return nil, persistence.NewWorkError("GetWork", id, err)
	}

	return work, nil
}

// FindActive returns the most recently updated non-terminal work of a conversation, or nil.
func (r *WorkRepository) FindActive(ctx context.Context, accountID, relationshipID, conversationID string) (*models.Work, error) {
	query := `SELECT ` + workColumns + `
		FROM works
		WHERE account_id = $1
		  AND relationship_id = $2
		  AND conversation_id = $3
		  AND state <> ALL($4)
		ORDER BY updated_at DESC
		LIMIT 1
	`

	work, err := r.scanWork(r.q.QueryRowContext(ctx, query,
		accountID, relationshipID, conversationID, pq.Array(models.TerminalStates)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to find active work: %w", err)
	}

	return work, nil
}

// LockConversationType takes a transaction-scoped advisory lock keyed by the conversation
// and definition type. Outside a transaction it is released as soon as it is taken.
func (r *WorkRepository) LockConversationType(ctx context.Context, accountID, relationshipID, conversationID, typeID string) error {
	key := strings.Join([]string{accountID, relationshipID, conversationID, typeID}, "\x1f")

	if _, err := r.q.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("failed to lock conversation type: %w", err)
	}

	return nil
}

// CountActiveWorks counts non-terminal works of one definition type in a conversation.
func (r *WorkRepository) CountActiveWorks(ctx context.Context, accountID, relationshipID, conversationID, typeID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM works w
		JOIN work_definitions d ON d.id = w.work_definition_id
		WHERE w.account_id = $1
		  AND w.relationship_id = $2
		  AND w.conversation_id = $3
		  AND d.type_id = $4
		  AND w.state <> ALL($5)
	`

	var count int

	err := r.q.QueryRowContext(ctx, query,
		accountID, relationshipID, conversationID, typeID, pq.Array(models.TerminalStates)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active works: %w", err)
	}

	return count, nil
}

// AdvanceRevision bumps the revision from expected to expected+1 and writes the state.
func (r *WorkRepository) AdvanceRevision(ctx context.Context, workID string, expected int64, state string, at time.Time) (int64, error) {
	query := `
		UPDATE works
		SET revision = revision + 1, state = $3, updated_at = $4
		WHERE id = $1 AND revision = $2
	`

	result, err := r.q.ExecContext(ctx, query, workID, expected, state, at)
	if err != nil {
		return 0, persistence.NewWorkError("AdvanceRevision", workID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewWorkError("AdvanceRevision", workID, err)
	}

	if affected == 0 {
		return 0, persistence.NewWorkError("AdvanceRevision", workID, persistence.ErrConcurrencyConflict)
	}

	return expected + 1, nil
}

// ListSlots returns the slot rows of a work ordered by path.
func (r *WorkRepository) ListSlots(ctx context.Context, workID string) ([]*models.WorkSlot, error) {
	query := `
		SELECT work_id, path, value, status, immutable, set_by, evidence, updated_at
		FROM work_slots
		WHERE work_id = $1
		ORDER BY path
	`

	rows, err := r.q.QueryContext(ctx, query, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to query work slots: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	slots := make([]*models.WorkSlot, 0)

	for rows.Next() {
		var (
			slot      models.WorkSlot
			valueJSON []byte
		)

		err := rows.Scan(&slot.WorkID, &slot.Path, &valueJSON, &slot.Status, &slot.Immutable, &slot.SetBy, &slot.Evidence, &slot.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work slot: %w", err)
		}

		if len(valueJSON) > 0 {
			if err := json.Unmarshal(valueJSON, &slot.Value); err != nil {
				return nil, fmt.Errorf("failed to unmarshal slot %s: %w", slot.Path, err)
			}
		}

		slots = append(slots, &slot)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating work slots: %w", err)
	}

	return slots, nil
}

// UpsertSlot writes the slot row keyed by (work, path).
func (r *WorkRepository) UpsertSlot(ctx context.Context, slot *models.WorkSlot) error {
	valueJSON, err := json.Marshal(slot.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal slot %s: %w", slot.Path, err)
	}

	query := `
		INSERT INTO work_slots (work_id, path, value, status, immutable, set_by, evidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (work_id, path) DO UPDATE SET
			value = EXCLUDED.value,
			status = EXCLUDED.status,
			immutable = EXCLUDED.immutable,
			set_by = EXCLUDED.set_by,
			evidence = EXCLUDED.evidence,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.q.ExecContext(ctx, query,
		slot.WorkID,
		slot.Path,
		string(valueJSON),
		slot.Status,
		slot.Immutable,
		slot.SetBy,
		slot.Evidence,
		slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert slot %s: %w", slot.Path, err)
	}

	return nil
}

// DeleteSlot removes a slot row. Deleting an absent slot is not an error.
func (r *WorkRepository) DeleteSlot(ctx context.Context, workID, path string) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM work_slots WHERE work_id = $1 AND path = $2", workID, path)
	if err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", path, err)
	}

	return nil
}

func (r *WorkRepository) scanWork(scanner rowScanner) (*models.Work, error) {
	var (
		work           models.Work
		proposedWorkID sql.NullString
	)

	err := scanner.Scan(
		&work.ID,
		&work.AccountID,
		&work.RelationshipID,
		&work.ConversationID,
		&work.WorkDefinitionID,
		&work.DefinitionVersion,
		&proposedWorkID,
		&work.State,
		&work.Revision,
		&work.ExpiresAt,
		&work.CreatedAt,
		&work.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	work.ProposedWorkID = proposedWorkID.String

	return &work, nil
}
