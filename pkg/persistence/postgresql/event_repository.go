package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/parley/pkg/models"
)

// EventRepository handles the append-only work audit trail.
type EventRepository struct {
	q      querier
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(q querier, logger *slog.Logger) *EventRepository {
	return &EventRepository{q: q, logger: logger}
}

// AppendWorkEvent inserts an event and sets its generated id.
func (r *EventRepository) AppendWorkEvent(ctx context.Context, event *models.WorkEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO work_events (work_id, account_id, type, work_revision, actor, trace_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = r.q.QueryRowContext(ctx, query,
		event.WorkID,
		event.AccountID,
		event.Type,
		event.WorkRevision,
		event.Actor,
		event.TraceID,
		string(payloadJSON),
		event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append work event: %w", err)
	}

	return nil
}

// ListWorkEvents returns a work's events in insertion order.
func (r *EventRepository) ListWorkEvents(ctx context.Context, workID string) ([]*models.WorkEvent, error) {
	query := `
		SELECT id, work_id, account_id, type, work_revision, actor, trace_id, payload, created_at
		FROM work_events
		WHERE work_id = $1
		ORDER BY id
	`

	rows, err := r.q.QueryContext(ctx, query, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to query work events: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	events := make([]*models.WorkEvent, 0)

	for rows.Next() {
		var (
			event       models.WorkEvent
			payloadJSON []byte
		)

		err := rows.Scan(
			&event.ID,
			&event.WorkID,
			&event.AccountID,
			&event.Type,
			&event.WorkRevision,
			&event.Actor,
			&event.TraceID,
			&payloadJSON,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work event: %w", err)
		}

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating work events: %w", err)
	}

	return events, nil
}
