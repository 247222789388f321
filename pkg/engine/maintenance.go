package engine

import (
	"context"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
)

// ExpireMaintenance moves every non-terminal work past its deadline to EXPIRED and
// expires stale semantic contexts. Running it twice in a row expires nothing the second
// time.
func (e *Engine) ExpireMaintenance(ctx context.Context) (_ models.ExpirationResult, err error) {
	ctx, done := e.instrument(ctx, "expire_maintenance")
	defer func() { done(err) }()

	now := e.now()

	var (
		result    models.ExpirationResult
		committed []*models.WorkEvent
	)

	err = e.store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		expired, err := tx.ExpireWorks(ctx, now)
		if err != nil {
			return err
		}

		for _, w := range expired {
			event := &models.WorkEvent{
				WorkID:       w.WorkID,
				AccountID:    w.AccountID,
				Type:         models.WorkEventExpired,
				WorkRevision: w.Revision,
				Actor:        models.ActorSystem,
				Payload: map[string]any{
					"from_state": w.FromState,
					"to_state":   models.StateExpired,
				},
				CreatedAt: now,
			}

			if err := tx.AppendWorkEvent(ctx, event); err != nil {
				return err
			}

			committed = append(committed, event)
		}

		contexts, err := tx.ExpireSemanticContexts(ctx, now)
		if err != nil {
			return err
		}

		result = models.ExpirationResult{ExpiredWorks: len(expired), ExpiredContexts: contexts}

		return nil
	})
	if err != nil {
		return models.ExpirationResult{}, err
	}

	e.metrics.Increment("work.expired", float64(result.ExpiredWorks), nil)
	e.metrics.Increment("semantic_context.expired", float64(result.ExpiredContexts), nil)

	if result.ExpiredWorks > 0 || result.ExpiredContexts > 0 {
		e.logger.InfoContext(ctx, "expiration sweep",
			"expired_works", result.ExpiredWorks,
			"expired_contexts", result.ExpiredContexts,
		)
	}

	e.publish(ctx, committed)

	return result, nil
}
