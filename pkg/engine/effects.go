package engine

import (
	"context"
	"fmt"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// ClaimRequest reserves the right to perform one external side effect.
type ClaimRequest struct {
	WorkID     string `json:"work_id"      validate:"required"`
	EffectType string `json:"effect_type"  validate:"required"`
	ToolCallID string `json:"tool_call_id"`
}

// RecordRequest stores the outcome of a claimed side effect.
type RecordRequest struct {
	WorkID   string              `json:"work_id"   validate:"required"`
	ClaimID  string              `json:"claim_id"  validate:"required"`
	ToolName string              `json:"tool_name" validate:"required"`
	Request  map[string]any      `json:"request"`
	Response map[string]any      `json:"response"`
	Status   models.EffectStatus `json:"status"    validate:"required,oneof=succeeded failed"`
}

// ClaimExternalEffect creates a claim for the work. A repeated claim for the same tool
// call returns the original claim.
func (e *Engine) ClaimExternalEffect(ctx context.Context, req ClaimRequest) (_ *models.ExternalEffectClaim, err error) {
	ctx, done := e.instrument(ctx, "claim_external_effect", attribute.String(otelhelper.WorkIDKey, req.WorkID))
	defer func() { done(err) }()

	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	var claim *models.ExternalEffectClaim

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		work, err := tx.GetWork(ctx, req.WorkID)
		if err != nil {
			return err
		}

		claim, err = tx.InsertClaim(ctx, &models.ExternalEffectClaim{
			AccountID:  work.AccountID,
			WorkID:     work.ID,
			EffectType: req.EffectType,
			ToolCallID: req.ToolCallID,
			Status:     models.ClaimStatusClaimed,
			CreatedAt:  e.now(),
		})

		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "external effect claimed",
		"claim_id", claim.ID,
		"work_id", claim.WorkID,
		"effect_type", claim.EffectType,
		"idempotency_key", claim.IdempotencyKey,
	)

	return claim, nil
}

// RecordExternalEffect releases an active claim and stores the effect under the claim's
// idempotency key. A failed effect is recorded like any other outcome.
func (e *Engine) RecordExternalEffect(ctx context.Context, req RecordRequest) (_ *models.ExternalEffect, err error) {
	ctx, done := e.instrument(ctx, "record_external_effect", attribute.String(otelhelper.WorkIDKey, req.WorkID))
	defer func() { done(err) }()

	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	now := e.now()

	var effect *models.ExternalEffect

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		claim, err := tx.GetClaim(ctx, req.ClaimID)
		if err != nil {
			return err
		}

		if claim.WorkID != req.WorkID {
			return fmt.Errorf("%w: claim %s belongs to work %s", ErrInvalidRequest, claim.ID, claim.WorkID)
		}

		if err := tx.ReleaseClaim(ctx, claim.ID, now); err != nil {
			return err
		}

		effect = &models.ExternalEffect{
			AccountID:      claim.AccountID,
			WorkID:         claim.WorkID,
			ClaimID:        claim.ID,
			IdempotencyKey: claim.IdempotencyKey,
			ToolName:       req.ToolName,
			Request:        req.Request,
			Response:       req.Response,
			Status:         req.Status,
			CreatedAt:      now,
		}

		return tx.InsertEffect(ctx, effect)
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Increment("effect.recorded", 1, map[string]string{"tool": effect.ToolName, "status": string(effect.Status)})

	if effect.Status == models.EffectStatusFailed {
		e.logger.WarnContext(ctx, "external effect failed",
			"effect_id", effect.ID,
			"work_id", effect.WorkID,
			"tool_name", effect.ToolName,
		)
	}

	return effect, nil
}
