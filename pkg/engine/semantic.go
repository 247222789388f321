package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dukex/parley/pkg/delta"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// affirmatives is matched against the whole normalized message, never a substring.
var affirmatives = map[string]struct{}{
	"ok":         {},
	"okay":       {},
	"si":         {},
	"dale":       {},
	"confirmar":  {},
	"confirmo":   {},
	"confirmado": {},
	"de acuerdo": {},
	"correcto":   {},
	"yes":        {},
	"y":          {},
	"confirm":    {},
	"vale":       {},
	"listo":      {},
	"👍":          {},
}

// NormalizeMessage strips diacritics, lowercases, trims surrounding punctuation and
// collapses inner whitespace.
func NormalizeMessage(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}

	out = strings.ToLower(out)
	out = strings.TrimFunc(out, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})

	return strings.Join(strings.Fields(out), " ")
}

// IsAffirmative reports whether text, once normalized, is an explicit confirmation.
func IsAffirmative(text string) bool {
	_, ok := affirmatives[NormalizeMessage(text)]

	return ok
}

// ConfirmationRequest asks the user to confirm a proposed slot value.
type ConfirmationRequest struct {
	WorkID        string        `json:"work_id"   validate:"required"`
	SlotPath      string        `json:"slot_path" validate:"required"`
	ProposedValue any           `json:"proposed_value"`
	TraceID       string        `json:"trace_id"`
	MessageID     string        `json:"message_id"`
	TTL           time.Duration `json:"-"`
}

// RequestSemanticConfirmation stores a pending semantic context for one slot. The
// proposed set is validated up front so the user is never asked to confirm a value that
// could not be committed.
func (e *Engine) RequestSemanticConfirmation(ctx context.Context, req ConfirmationRequest) (_ *models.SemanticContext, err error) {
	ctx, done := e.instrument(ctx, "request_semantic_confirmation",
		attribute.String(otelhelper.WorkIDKey, req.WorkID),
		attribute.String(otelhelper.TraceIDKey, req.TraceID),
	)
	defer func() { done(err) }()

	if err := e.validateRequest(req); err != nil {
		return nil, err
	}

	now := e.now()

	var (
		sc    *models.SemanticContext
		event *models.WorkEvent
	)

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		work, err := tx.GetWork(ctx, req.WorkID)
		if err != nil {
			return err
		}

		def, err := tx.GetDefinitionByID(ctx, work.WorkDefinitionID)
		if err != nil {
			return err
		}

		if def == nil {
			return fmt.Errorf("%w: %s", ErrDefinitionMissing, work.WorkDefinitionID)
		}

		slots, err := tx.ListSlots(ctx, work.ID)
		if err != nil {
			return err
		}

		proposed := models.Delta{models.SetOp{Path: req.SlotPath, Value: req.ProposedValue}}
		if err := delta.Validate(models.NewSnapshot(work.State, slots), proposed, def); err != nil {
			return err
		}

		ttl := req.TTL
		if ttl <= 0 {
			ttl = time.Duration(def.Policies.Negotiation.ConfirmationTTLSeconds) * time.Second
		}

		if ttl <= 0 {
			ttl = DefaultConfirmationTTL
		}

		sc = &models.SemanticContext{
			AccountID:      work.AccountID,
			ConversationID: work.ConversationID,
			WorkID:         work.ID,
			SlotPath:       req.SlotPath,
			ProposedValue:  req.ProposedValue,
			Status:         models.SemanticContextPending,
			TraceID:        req.TraceID,
			MessageID:      req.MessageID,
			ExpiresAt:      now.Add(ttl),
			CreatedAt:      now,
		}

		if err := tx.InsertSemanticContext(ctx, sc); err != nil {
			return err
		}

		event = &models.WorkEvent{
			WorkID:       work.ID,
			AccountID:    work.AccountID,
			Type:         models.WorkEventConfirmationRequested,
			WorkRevision: work.Revision,
			Actor:        models.ActorSystem,
			TraceID:      req.TraceID,
			Payload: map[string]any{
				"semantic_context_id": sc.ID,
				"slot_path":           sc.SlotPath,
				"proposed_value":      sc.ProposedValue,
				"expires_at":          sc.ExpiresAt,
			},
			CreatedAt: now,
		}

		return tx.AppendWorkEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "semantic confirmation requested",
		"semantic_context_id", sc.ID,
		"work_id", sc.WorkID,
		"slot_path", sc.SlotPath,
		"expires_at", sc.ExpiresAt,
	)

	e.publish(ctx, []*models.WorkEvent{event})

	return sc, nil
}

// ResolveSemanticMatch returns the pending, unexpired context of the conversation when
// text is an explicit affirmative, and nil otherwise. It never writes.
func (e *Engine) ResolveSemanticMatch(ctx context.Context, accountID, conversationID, text string) (_ *models.SemanticContext, err error) {
	ctx, done := e.instrument(ctx, "resolve_semantic_match",
		attribute.String(otelhelper.AccountIDKey, accountID),
		attribute.String(otelhelper.ConversationIDKey, conversationID),
	)
	defer func() { done(err) }()

	if !IsAffirmative(text) {
		e.metrics.Increment("semantic.match", 1, map[string]string{"result": "not_affirmative"})

		return nil, nil
	}

	var sc *models.SemanticContext

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		sc, err = tx.FindPendingSemanticContext(ctx, accountID, conversationID, e.now())

		return err
	})
	if err != nil {
		return nil, err
	}

	result := "matched"
	if sc == nil {
		result = "no_pending_context"
	}

	e.metrics.Increment("semantic.match", 1, map[string]string{"result": result})

	return sc, nil
}

// CommitSemanticConfirmation consumes a pending context and commits its proposed value
// as the user in the same transaction. When the commit fails the context stays pending.
// A context bound to no work is only consumed.
func (e *Engine) CommitSemanticConfirmation(ctx context.Context, contextID, messageID string) (_ *models.SemanticContext, err error) {
	ctx, done := e.instrument(ctx, "commit_semantic_confirmation")
	defer func() { done(err) }()

	now := e.now()

	var (
		sc        *models.SemanticContext
		work      *models.Work
		committed []*models.WorkEvent
	)

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error

		sc, err = tx.ConsumeSemanticContext(ctx, contextID, messageID, now)
		if err != nil {
			return err
		}

		if sc.WorkID == "" {
			return nil
		}

		confirmed := models.Delta{models.SetOp{Path: sc.SlotPath, Value: sc.ProposedValue}}

		var event *models.WorkEvent

		work, event, _, err = e.commitDeltaTx(ctx, tx, sc.WorkID, confirmed, models.ActorUser, sc.TraceID, commitConfig{})
		if err != nil {
			return err
		}

		consumed := &models.WorkEvent{
			WorkID:       work.ID,
			AccountID:    work.AccountID,
			Type:         models.WorkEventConfirmationConsumed,
			WorkRevision: work.Revision,
			Actor:        models.ActorUser,
			TraceID:      sc.TraceID,
			Payload: map[string]any{
				"semantic_context_id": sc.ID,
				"message_id":          messageID,
				"slot_path":           sc.SlotPath,
			},
			CreatedAt: now,
		}

		if err := tx.AppendWorkEvent(ctx, consumed); err != nil {
			return err
		}

		committed = []*models.WorkEvent{event, consumed}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if work == nil {
		e.logger.InfoContext(ctx, "semantic confirmation consumed without work", "semantic_context_id", sc.ID)
		e.metrics.Increment("semantic.confirmed", 1, map[string]string{"bound": "false"})

		return sc, nil
	}

	e.logger.InfoContext(ctx, "semantic confirmation committed",
		"semantic_context_id", sc.ID,
		"work_id", work.ID,
		"revision", work.Revision,
	)

	e.metrics.Increment("semantic.confirmed", 1, nil)
	e.publish(ctx, committed)

	return sc, nil
}

// ExpireSemanticContext withdraws a pending context before its deadline, for instance
// once its work can no longer take the proposed value.
func (e *Engine) ExpireSemanticContext(ctx context.Context, contextID string) (_ *models.SemanticContext, err error) {
	ctx, done := e.instrument(ctx, "expire_semantic_context")
	defer func() { done(err) }()

	var sc *models.SemanticContext

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		sc, err = tx.ExpireSemanticContext(ctx, contextID)

		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "semantic context expired", "semantic_context_id", sc.ID, "work_id", sc.WorkID)
	e.metrics.Increment("semantic.expired", 1, nil)

	return sc, nil
}
