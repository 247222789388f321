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

const claimColumns = `
			id
		  , account_id
		  , work_id
		  , effect_type
		  , tool_call_id
		  , idempotency_key
		  , status
		  , created_at
		  , released_at`

// EffectRepository handles external effect claims and their recorded outcomes.
type EffectRepository struct {
	q      querier
	logger *slog.Logger
}

// NewEffectRepository creates a new effect repository.
func NewEffectRepository(q querier, logger *slog.Logger) *EffectRepository {
	return &EffectRepository{q: q, logger: logger}
}

// InsertClaim reserves an idempotency key. A second claim for the same tool call of the
// same work returns the first claim unchanged.
func (r *EffectRepository) InsertClaim(ctx context.Context, claim *models.ExternalEffectClaim) (*models.ExternalEffectClaim, error) {
	if claim.ID == "" {
		id, err := newID("claim")
		if err != nil {
			return nil, err
		}

		claim.ID = id
	}

	if claim.IdempotencyKey == "" {
		claim.IdempotencyKey = claim.ID
	}

	query := `
		INSERT INTO external_effect_claims (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (work_id, effect_type, tool_call_id) WHERE tool_call_id IS NOT NULL DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		claim.ID,
		claim.AccountID,
		claim.WorkID,
		claim.EffectType,
		nullString(claim.ToolCallID),
		claim.IdempotencyKey,
		claim.Status,
		claim.CreatedAt,
		claim.ReleasedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert claim: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to insert claim: %w", err)
	}

	if affected == 1 {
		return claim, nil
	}

	query = `SELECT ` + claimColumns + `
		FROM external_effect_claims
		WHERE work_id = $1 AND effect_type = $2 AND tool_call_id = $3
	`

	existing, err := r.scanClaim(r.q.QueryRowContext(ctx, query, claim.WorkID, claim.EffectType, claim.ToolCallID))
	if err != nil {
		return nil, fmt.Errorf("failed to load existing claim: %w", err)
	}

	return existing, nil
}

// GetClaim loads a claim by id.
func (r *EffectRepository) GetClaim(ctx context.Context, id string) (*models.ExternalEffectClaim, error) {
	if !isUUID(id) {
		return nil, persistence.ErrClaimNotFound
	}

	query := `SELECT ` + claimColumns + ` FROM external_effect_claims WHERE id = $1`

	claim, err := r.scanClaim(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrClaimNotFound
		}

		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}

	return claim, nil
}

// ReleaseClaim flips a claimed reservation to released exactly once.
func (r *EffectRepository) ReleaseClaim(ctx context.Context, id string, at time.Time) error {
	if !isUUID(id) {
		return persistence.ErrClaimNotFound
	}

	result, err := r.q.ExecContext(ctx,
		"UPDATE external_effect_claims SET status = 'released', released_at = $2 WHERE id = $1 AND status = 'claimed'",
		id, at)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}

	if affected == 0 {
		return persistence.ErrClaimNotActive
	}

	return nil
}

// InsertEffect records the outcome of a claimed call.
func (r *EffectRepository) InsertEffect(ctx context.Context, effect *models.ExternalEffect) error {
	if effect.ID == "" {
		id, err := newID("effect")
		if err != nil {
			return err
		}

		effect.ID = id
	}

	requestJSON, err := json.Marshal(effect.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal effect request: %w", err)
	}

	responseJSON, err := json.Marshal(effect.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal effect response: %w", err)
	}

	query := `
		INSERT INTO external_effects (
			id, account_id, work_id, claim_id, idempotency_key, tool_name, request, response, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.q.ExecContext(ctx, query,
		effect.ID,
		effect.AccountID,
		effect.WorkID,
		effect.ClaimID,
		effect.IdempotencyKey,
		effect.ToolName,
		string(requestJSON),
		string(responseJSON),
		effect.Status,
		effect.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert external effect: %w", err)
	}

	return nil
}

func (r *EffectRepository) scanClaim(scanner rowScanner) (*models.ExternalEffectClaim, error) {
	var (
		claim      models.ExternalEffectClaim
		toolCallID sql.NullString
	)

	err := scanner.Scan(
		&claim.ID,
		&claim.AccountID,
		&claim.WorkID,
		&claim.EffectType,
		&toolCallID,
		&claim.IdempotencyKey,
		&claim.Status,
		&claim.CreatedAt,
		&claim.ReleasedAt,
	)
	if err != nil {
		return nil, err
	}

	claim.ToolCallID = toolCallID.String

	return &claim, nil
}
