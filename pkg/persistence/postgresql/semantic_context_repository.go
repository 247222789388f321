package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

const semanticContextColumns = `
			id
		  , account_id
		  , conversation_id
		  , work_id
		  , slot_path
		  , proposed_value
		  , status
		  , trace_id
		  , message_id
		  , expires_at
		  , created_at
		  , consumed_at`

// SemanticContextRepository handles pending confirmations.
type SemanticContextRepository struct {
	q      querier
	logger *slog.Logger
}

// NewSemanticContextRepository creates a new semantic context repository.
func NewSemanticContextRepository(q querier, logger *slog.Logger) *SemanticContextRepository {
	return &SemanticContextRepository{q: q, logger: logger}
}

// InsertSemanticContext stores a new pending confirmation.
func (r *SemanticContextRepository) InsertSemanticContext(ctx context.Context, sc *models.SemanticContext) error {
	if sc.ID == "" {
		id, err := newID("semantic context")
		if err != nil {
			return err
		}

		sc.ID = id
	}

	valueJSON, err := json.Marshal(sc.ProposedValue)
	if err != nil {
		return fmt.Errorf("failed to marshal proposed value: %w", err)
	}

	query := `
		INSERT INTO semantic_contexts (` + semanticContextColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.q.ExecContext(ctx, query,
		sc.ID,
		sc.AccountID,
		sc.ConversationID,
		nullString(sc.WorkID),
		sc.SlotPath,
		string(valueJSON),
		sc.Status,
		sc.TraceID,
		sc.MessageID,
		sc.ExpiresAt,
		sc.CreatedAt,
		sc.ConsumedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert semantic context: %w", err)
	}

	return nil
}

// GetSemanticContext loads a context by id.
func (r *SemanticContextRepository) GetSemanticContext(ctx context.Context, id string) (*models.SemanticContext, error) {
	if !isUUID(id) {
		return nil, persistence.ErrSemanticContextNotFound
	}

	query := `SELECT ` + semanticContextColumns + ` FROM semantic_contexts WHERE id = $1`

	sc, err := r.scanSemanticContext(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSemanticContextNotFound
		}

		return nil, fmt.Errorf("failed to scan semantic context: %w", err)
	}

	return sc, nil
}

// ConsumeSemanticContext marks a pending, unexpired context consumed in one conditional update.
func (r *SemanticContextRepository) ConsumeSemanticContext(ctx context.Context, id, messageID string, at time.Time) (*models.SemanticContext, error) {
	if !isUUID(id) {
		return nil, persistence.ErrSemanticContextNotFound
	}

	query := `
		UPDATE semantic_contexts
		SET status = 'consumed', consumed_at = $2, message_id = $3
		WHERE id = $1 AND status = 'pending' AND expires_at > $2
		RETURNING ` + semanticContextColumns

	sc, err := r.scanSemanticContext(r.q.QueryRowContext(ctx, query, id, at, messageID))
	if err == nil {
		return sc, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume semantic context: %w", err)
	}

	if _, err := r.GetSemanticContext(ctx, id); err != nil {
		return nil, err
	}

	return nil, persistence.ErrInvalidOrExpired
}

// ExpireSemanticContext moves a pending context to expired regardless of its deadline.
func (r *SemanticContextRepository) ExpireSemanticContext(ctx context.Context, id string) (*models.SemanticContext, error) {
	if !isUUID(id) {
		return nil, persistence.ErrSemanticContextNotFound
	}

	query := `
		UPDATE semantic_contexts
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + semanticContextColumns

	sc, err := r.scanSemanticContext(r.q.QueryRowContext(ctx, query, id))
	if err == nil {
		return sc, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to expire semantic context: %w", err)
	}

	if _, err := r.GetSemanticContext(ctx, id); err != nil {
		return nil, err
	}

	return nil, persistence.ErrInvalidOrExpired
}

// FindPendingSemanticContext returns the newest unexpired pending context of a conversation, or nil.
func (r *SemanticContextRepository) FindPendingSemanticContext(ctx context.Context, accountID, conversationID string, at time.Time) (*models.SemanticContext, error) {
	query := `SELECT ` + semanticContextColumns + `
		FROM semantic_contexts
		WHERE account_id = $1
		  AND conversation_id = $2
		  AND status = 'pending'
		  AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	sc, err := r.scanSemanticContext(r.q.QueryRowContext(ctx, query, accountID, conversationID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to find pending semantic context: %w", err)
	}

	return sc, nil
}

func (r *SemanticContextRepository) scanSemanticContext(scanner rowScanner) (*models.SemanticContext, error) {
	var (
		sc        models.SemanticContext
		workID    sql.NullString
		valueJSON []byte
	)

	err := scanner.Scan(
		&sc.ID,
		&sc.AccountID,
		&sc.ConversationID,
		&workID,
		&sc.SlotPath,
		&valueJSON,
		&sc.Status,
		&sc.TraceID,
		&sc.MessageID,
		&sc.ExpiresAt,
		&sc.CreatedAt,
		&sc.ConsumedAt,
	)
	if err != nil {
		return nil, err
	}

	sc.WorkID = workID.String

	if len(valueJSON) > 0 {
		if err := json.Unmarshal(valueJSON, &sc.ProposedValue); err != nil {
			return nil, fmt.Errorf("failed to unmarshal proposed value: %w", err)
		}
	}

	return &sc, nil
}
