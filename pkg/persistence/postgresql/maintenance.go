package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/parley/pkg/models"
	"github.com/lib/pq"
)

// MaintenanceRepository runs the bulk expiration statements.
type MaintenanceRepository struct {
	q      querier
	logger *slog.Logger
}

// NewMaintenanceRepository creates a new maintenance repository.
func NewMaintenanceRepository(q querier, logger *slog.Logger) *MaintenanceRepository {
	return &MaintenanceRepository{q: q, logger: logger}
}

// ExpireWorks moves every due non-terminal work to EXPIRED. Each row's revision is
// bumped like a commit, so a commit racing the sweep loses its compare-and-swap.
// Rows locked by an in-flight commit are skipped and picked up by the next sweep.
func (r *MaintenanceRepository) ExpireWorks(ctx context.Context, at time.Time) ([]models.ExpiredWork, error) {
	query := `
		WITH due AS (
			SELECT id, state
			FROM works
			WHERE state <> ALL($1)
			  AND expires_at IS NOT NULL
			  AND expires_at <= $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE works w
		SET state = $3, revision = w.revision + 1, updated_at = $2
		FROM due
		WHERE w.id = due.id
		RETURNING w.id, w.account_id, due.state, w.revision
	`

	rows, err := r.q.QueryContext(ctx, query, pq.Array(models.TerminalStates), at, models.StateExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to expire works: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	expired := make([]models.ExpiredWork, 0)

	for rows.Next() {
		var e models.ExpiredWork

		err := rows.Scan(&e.WorkID, &e.AccountID, &e.FromState, &e.Revision)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired work: %w", err)
		}

		expired = append(expired, e)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating expired works: %w", err)
	}

	return expired, nil
}

// ExpireSemanticContexts moves every due pending context to expired.
func (r *MaintenanceRepository) ExpireSemanticContexts(ctx context.Context, at time.Time) (int, error) {
	result, err := r.q.ExecContext(ctx,
		"UPDATE semantic_contexts SET status = 'expired' WHERE status = 'pending' AND expires_at <= $1",
		at)
	if err != nil {
		return 0, fmt.Errorf("failed to expire semantic contexts: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire semantic contexts: %w", err)
	}

	return int(affected), nil
}
