package engine

import (
	"context"
	"fmt"

	"github.com/dukex/parley/pkg/delta"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// DecisionKindProposeWork tags the decision event written by ProposeWork.
const DecisionKindProposeWork = "propose_work"

// ProposeRequest carries an interpreter's suggestion to open a work.
type ProposeRequest struct {
	AccountID        string                 `json:"account_id"         validate:"required"`
	RelationshipID   string                 `json:"relationship_id"`
	ConversationID   string                 `json:"conversation_id"    validate:"required"`
	TraceID          string                 `json:"trace_id"`
	WorkDefinitionID string                 `json:"work_definition_id" validate:"required"`
	Intent           string                 `json:"intent"`
	CandidateSlots   []models.CandidateSlot `json:"candidate_slots"    validate:"dive"`
	Confidence       float64                `json:"confidence"         validate:"min=0,max=1"`
	Model            models.ModelInfo       `json:"model"`
	RawInput         string                 `json:"raw_input,omitempty"`
}

// ProposeWork records the decision event and a pending ProposedWork in one transaction.
func (e *Engine) ProposeWork(ctx context.Context, req ProposeRequest) (_ *models.ProposedWork, err error) {
	ctx, done := e.instrument(ctx, "propose_work",
		attribute.String(otelhelper.AccountIDKey, req.AccountID),
		attribute.String(otelhelper.ConversationIDKey, req.ConversationID),
		attribute.String(otelhelper.DefinitionIDKey, req.WorkDefinitionID),
	)
	defer func() { done(err) }()

	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	now := e.now()

	var proposal *models.ProposedWork

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		def, err := tx.GetDefinitionByID(ctx, req.WorkDefinitionID)
		if err != nil {
			return err
		}

		if def == nil || def.AccountID != req.AccountID {
			return fmt.Errorf("%w: %s", ErrDefinitionMissing, req.WorkDefinitionID)
		}

		decision := &models.DecisionEvent{
			AccountID:      req.AccountID,
			ConversationID: req.ConversationID,
			TraceID:        req.TraceID,
			Kind:           DecisionKindProposeWork,
			RawInput:       req.RawInput,
			Model:          req.Model,
			Output: map[string]any{
				"intent":             req.Intent,
				"work_definition_id": req.WorkDefinitionID,
				"confidence":         req.Confidence,
				"candidate_slots":    req.CandidateSlots,
			},
			CreatedAt: now,
		}

		if err := tx.InsertDecisionEvent(ctx, decision); err != nil {
			return err
		}

		candidates := req.CandidateSlots
		if candidates == nil {
			candidates = []models.CandidateSlot{}
		}

		proposal = &models.ProposedWork{
			AccountID:        req.AccountID,
			RelationshipID:   req.RelationshipID,
			ConversationID:   req.ConversationID,
			DecisionEventID:  decision.ID,
			WorkDefinitionID: req.WorkDefinitionID,
			Intent:           req.Intent,
			CandidateSlots:   candidates,
			Confidence:       req.Confidence,
			Resolution:       models.ResolutionPending,
			CreatedAt:        now,
		}

		return tx.InsertProposedWork(ctx, proposal)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "work proposed",
		"proposed_work_id", proposal.ID,
		"account_id", proposal.AccountID,
		"conversation_id", proposal.ConversationID,
		"work_definition_id", proposal.WorkDefinitionID,
		"confidence", proposal.Confidence,
	)

	return proposal, nil
}

// OpenWork turns a pending proposal into a Work at revision 1, seeding its slots from
// the candidate slots. Candidate slots are validated against the definition like any
// other delta.
func (e *Engine) OpenWork(ctx context.Context, accountID, proposedWorkID string) (_ *models.Work, err error) {
	ctx, done := e.instrument(ctx, "open_work",
		attribute.String(otelhelper.AccountIDKey, accountID),
		attribute.String(otelhelper.ProposedWorkIDKey, proposedWorkID),
	)
	defer func() { done(err) }()

	now := e.now()

	var (
		work  *models.Work
		event *models.WorkEvent
	)

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		proposal, err := tx.GetProposedWork(ctx, accountID, proposedWorkID)
		if err != nil {
			return err
		}

		if proposal.Resolution != models.ResolutionPending {
			return fmt.Errorf("proposed work %s is %s: %w", proposal.ID, proposal.Resolution, persistence.ErrAlreadyResolved)
		}

		def, err := tx.GetDefinitionByID(ctx, proposal.WorkDefinitionID)
		if err != nil {
			return err
		}

		if def == nil {
			return fmt.Errorf("%w: %s", ErrDefinitionMissing, proposal.WorkDefinitionID)
		}

		if def.Concurrency() == models.ConcurrencySingleActive {
			// held until commit so a concurrent open of the same type counts this insert
			err := tx.LockConversationType(ctx, proposal.AccountID, proposal.RelationshipID, proposal.ConversationID, def.TypeID)
			if err != nil {
				return err
			}

			active, err := tx.CountActiveWorks(ctx, proposal.AccountID, proposal.RelationshipID, proposal.ConversationID, def.TypeID)
			if err != nil {
				return err
			}

			if active > 0 {
				return fmt.Errorf("%w: %s in conversation %s", ErrActiveWorkExists, def.TypeID, proposal.ConversationID)
			}
		}

		seed := make(models.Delta, 0, len(proposal.CandidateSlots))
		for _, c := range proposal.CandidateSlots {
			seed = append(seed, models.SetOp{Path: c.Path, Value: c.Value, Evidence: c.Evidence})
		}

		initial := models.NewSnapshot(def.InitialState(), nil)
		if err := delta.Validate(initial, seed, def); err != nil {
			return err
		}

		work = &models.Work{
			AccountID:         proposal.AccountID,
			RelationshipID:    proposal.RelationshipID,
			ConversationID:    proposal.ConversationID,
			WorkDefinitionID:  def.ID,
			DefinitionVersion: def.Version,
			ProposedWorkID:    proposal.ID,
			State:             initial.State,
			Revision:          1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		if ttl := def.Expiration(); ttl > 0 {
			expiresAt := now.Add(ttl)
			work.ExpiresAt = &expiresAt
		}

		if err := tx.InsertWork(ctx, work); err != nil {
			return err
		}

		if _, err := tx.ResolveProposedWork(ctx, accountID, proposal.ID, models.ResolutionOpened, work.ID, now); err != nil {
			return err
		}

		if err := writeSlots(ctx, tx, work.ID, def, seed, models.ActorAI, now); err != nil {
			return err
		}

		event = &models.WorkEvent{
			WorkID:       work.ID,
			AccountID:    work.AccountID,
			Type:         models.WorkEventOpened,
			WorkRevision: work.Revision,
			Actor:        models.ActorAI,
			Payload: map[string]any{
				"proposed_work_id":   proposal.ID,
				"work_definition_id": def.ID,
				"definition_version": def.Version,
				"state":              work.State,
				"delta":              seed,
			},
			CreatedAt: now,
		}

		return tx.AppendWorkEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "work opened",
		"work_id", work.ID,
		"proposed_work_id", proposedWorkID,
		"state", work.State,
	)

	e.publish(ctx, []*models.WorkEvent{event})

	return work, nil
}

// DiscardWork resolves a pending proposal without opening a work.
func (e *Engine) DiscardWork(ctx context.Context, accountID, proposedWorkID string) (_ *models.ProposedWork, err error) {
	ctx, done := e.instrument(ctx, "discard_work",
		attribute.String(otelhelper.AccountIDKey, accountID),
		attribute.String(otelhelper.ProposedWorkIDKey, proposedWorkID),
	)
	defer func() { done(err) }()

	var proposal *models.ProposedWork

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		proposal, err = tx.ResolveProposedWork(ctx, accountID, proposedWorkID, models.ResolutionDiscarded, "", e.now())

		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "proposed work discarded", "proposed_work_id", proposedWorkID)

	return proposal, nil
}
