package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/parley/pkg/delta"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/otelhelper"
	"github.com/dukex/parley/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

var validActors = []models.Actor{models.ActorUser, models.ActorAI, models.ActorSystem}

// CommitOption tunes a single CommitDelta call.
type CommitOption func(*commitConfig)

type commitConfig struct {
	expectedRevision *int64
}

// WithExpectedRevision makes the commit fail with a concurrency conflict unless the work
// is still at rev when it is read.
func WithExpectedRevision(rev int64) CommitOption {
	return func(c *commitConfig) { c.expectedRevision = &rev }
}

// CommitDelta validates d against the current snapshot and, when valid, persists the
// slot changes, the state transition, the revision bump and a delta_committed event in
// one transaction.
func (e *Engine) CommitDelta(ctx context.Context, workID string, d models.Delta, actor models.Actor, traceID string, opts ...CommitOption) (_ *models.Work, err error) {
	ctx, done := e.instrument(ctx, "commit_delta",
		attribute.String(otelhelper.WorkIDKey, workID),
		attribute.String(otelhelper.TraceIDKey, traceID),
	)
	defer func() { done(err) }()

	cfg := commitConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !slices.Contains(validActors, actor) {
		return nil, fmt.Errorf("%w: unknown actor %q", ErrInvalidRequest, actor)
	}

	var (
		work  *models.Work
		event *models.WorkEvent
		from  string
	)

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		work, event, from, err = e.commitDeltaTx(ctx, tx, workID, d, actor, traceID, cfg)

		return err
	})
	if err != nil {
		if persistence.IsConcurrencyConflict(err) {
			e.logger.WarnContext(ctx, "delta commit lost revision race", "work_id", workID, "error", err)
		}

		return nil, err
	}

	if from != work.State {
		e.metrics.Increment("work.transition", 1, map[string]string{"from": from, "to": work.State})
	}

	e.logger.InfoContext(ctx, "delta committed",
		"work_id", work.ID,
		"revision", work.Revision,
		"state", work.State,
		"operations", len(d),
		"actor", actor,
	)

	e.publish(ctx, []*models.WorkEvent{event})

	return work, nil
}

// commitDeltaTx is the body of CommitDelta, reusable inside a larger transaction. The
// revision compare-and-swap runs before any slot row is touched so a losing writer never
// writes slots.
func (e *Engine) commitDeltaTx(ctx context.Context, tx persistence.Tx, workID string, d models.Delta, actor models.Actor, traceID string, cfg commitConfig) (*models.Work, *models.WorkEvent, string, error) {
	work, err := tx.GetWork(ctx, workID)
	if err != nil {
		return nil, nil, "", err
	}

	if cfg.expectedRevision != nil && *cfg.expectedRevision != work.Revision {
		return nil, nil, "", persistence.NewWorkError("commit_delta", workID,
			fmt.Errorf("%w: expected revision %d, found %d", persistence.ErrConcurrencyConflict, *cfg.expectedRevision, work.Revision))
	}

	def, err := tx.GetDefinitionByID(ctx, work.WorkDefinitionID)
	if err != nil {
		return nil, nil, "", err
	}

	if def == nil {
		return nil, nil, "", fmt.Errorf("%w: %s", ErrDefinitionMissing, work.WorkDefinitionID)
	}

	slots, err := tx.ListSlots(ctx, workID)
	if err != nil {
		return nil, nil, "", err
	}

	snap := models.NewSnapshot(work.State, slots)

	if err := delta.Validate(snap, d, def); err != nil {
		return nil, nil, "", err
	}

	next, err := delta.Apply(snap, d)
	if err != nil {
		return nil, nil, "", err
	}

	now := e.now()

	revision, err := tx.AdvanceRevision(ctx, workID, work.Revision, next.State, now)
	if err != nil {
		return nil, nil, "", err
	}

	if err := writeSlots(ctx, tx, workID, def, d, actor, now); err != nil {
		return nil, nil, "", err
	}

	from := work.State
	work.State = next.State
	work.Revision = revision
	work.UpdatedAt = now

	event := &models.WorkEvent{
		WorkID:       workID,
		AccountID:    work.AccountID,
		Type:         models.WorkEventDeltaCommitted,
		WorkRevision: revision,
		Actor:        actor,
		TraceID:      traceID,
		Payload: map[string]any{
			"delta":      d,
			"from_state": from,
			"to_state":   next.State,
		},
		CreatedAt: now,
	}

	if err := tx.AppendWorkEvent(ctx, event); err != nil {
		return nil, nil, "", err
	}

	return work, event, from, nil
}

// writeSlots persists the slot-level effect of a validated delta in operation order.
func writeSlots(ctx context.Context, tx persistence.Tx, workID string, def *models.WorkDefinition, d models.Delta, actor models.Actor, at time.Time) error {
	for _, op := range d {
		switch o := op.(type) {
		case models.SetOp:
			spec, _ := def.Slot(o.Path)

			slot := &models.WorkSlot{
				WorkID:    workID,
				Path:      o.Path,
				Value:     o.Value,
				Status:    models.SlotStatusCommitted,
				Immutable: spec.Immutable,
				SetBy:     actor,
				Evidence:  o.Evidence,
				UpdatedAt: at,
			}

			if err := tx.UpsertSlot(ctx, slot); err != nil {
				return err
			}
		case models.UnsetOp:
			if err := tx.DeleteSlot(ctx, workID, o.Path); err != nil {
				return err
			}
		}
	}

	return nil
}

// GetWorkState returns the work header, its slot rows and the projected snapshot.
func (e *Engine) GetWorkState(ctx context.Context, workID string) (_ *models.WorkProjection, err error) {
	ctx, done := e.instrument(ctx, "get_work_state", attribute.String(otelhelper.WorkIDKey, workID))
	defer func() { done(err) }()

	var projection *models.WorkProjection

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		work, err := tx.GetWork(ctx, workID)
		if err != nil {
			return err
		}

		slots, err := tx.ListSlots(ctx, workID)
		if err != nil {
			return err
		}

		projection = &models.WorkProjection{
			Work:     work,
			Slots:    slots,
			Snapshot: models.NewSnapshot(work.State, slots),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return projection, nil
}

// ListWorkEvents returns the audit trail of a work ordered by insertion.
func (e *Engine) ListWorkEvents(ctx context.Context, workID string) (_ []*models.WorkEvent, err error) {
	ctx, done := e.instrument(ctx, "list_work_events", attribute.String(otelhelper.WorkIDKey, workID))
	defer func() { done(err) }()

	var list []*models.WorkEvent

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		if _, err := tx.GetWork(ctx, workID); err != nil {
			return err
		}

		var err error
		list, err = tx.ListWorkEvents(ctx, workID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return list, nil
}
