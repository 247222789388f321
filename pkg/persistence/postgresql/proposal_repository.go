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
	"github.com/google/uuid"
)

const proposalColumns = `
			id
		  , account_id
		  , relationship_id
		  , conversation_id
		  , decision_event_id
		  , work_definition_id
		  , intent
		  , candidate_slots
		  , confidence
		  , resolution
		  , work_id
		  , created_at
		  , opened_at
		  , discarded_at`

// ProposalRepository handles decision events and proposed works.
type ProposalRepository struct {
	q      querier
	logger *slog.Logger
}

// NewProposalRepository creates a new proposal repository.
func NewProposalRepository(q querier, logger *slog.Logger) *ProposalRepository {
	return &ProposalRepository{q: q, logger: logger}
}

func newID(kind string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate %s ID: %w", kind, err)
	}

	return id.String(), nil
}

// InsertDecisionEvent appends one AI decision to the audit log.
func (r *ProposalRepository) InsertDecisionEvent(ctx context.Context, event *models.DecisionEvent) error {
	if event.ID == "" {
		id, err := newID("decision event")
		if err != nil {
			return err
		}

		event.ID = id
	}

	modelJSON, err := json.Marshal(event.Model)
	if err != nil {
		return fmt.Errorf("failed to marshal model info: %w", err)
	}

	outputJSON, err := json.Marshal(event.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal decision output: %w", err)
	}

	query := `
		INSERT INTO decision_events (id, account_id, conversation_id, trace_id, kind, raw_input, model, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.q.ExecContext(ctx, query,
		event.ID,
		event.AccountID,
		event.ConversationID,
		event.TraceID,
		event.Kind,
		event.RawInput,
		string(modelJSON),
		string(outputJSON),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision event: %w", err)
	}

	return nil
}

// InsertProposedWork stores a new pending proposal.
func (r *ProposalRepository) InsertProposedWork(ctx context.Context, proposal *models.ProposedWork) error {
	if proposal.ID == "" {
		id, err := newID("proposed work")
		if err != nil {
			return err
		}

		proposal.ID = id
	}

	slotsJSON, err := json.Marshal(proposal.CandidateSlots)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate slots: %w", err)
	}

	query := `
		INSERT INTO proposed_works (` + proposalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.q.ExecContext(ctx, query,
		proposal.ID,
		proposal.AccountID,
		proposal.RelationshipID,
		proposal.ConversationID,
		proposal.DecisionEventID,
		proposal.WorkDefinitionID,
		proposal.Intent,
		string(slotsJSON),
		proposal.Confidence,
		proposal.Resolution,
		nullString(proposal.WorkID),
		proposal.CreatedAt,
		proposal.OpenedAt,
		proposal.DiscardedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposed work: %w", err)
	}

	return nil
}

// GetProposedWork loads a proposal scoped to its account.
func (r *ProposalRepository) GetProposedWork(ctx context.Context, accountID, id string) (*models.ProposedWork, error) {
	if !isUUID(id) {
		return nil, persistence.ErrProposedWorkNotFound
	}

	query := `SELECT ` + proposalColumns + `
		FROM proposed_works
		WHERE account_id = $1 AND id = $2
	`

	proposal, err := r.scanProposal(r.q.QueryRowContext(ctx, query, accountID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrProposedWorkNotFound
		}

		return nil, fmt.Errorf("failed to scan proposed work: %w", err)
	}

	return proposal, nil
}

// ResolveProposedWork flips a pending proposal in a single conditional update, so a
// concurrent open and discard cannot both win.
func (r *ProposalRepository) ResolveProposedWork(
	ctx context.Context,
	accountID, id string,
	resolution models.Resolution,
	workID string,
	at time.Time,
) (*models.ProposedWork, error) {
	if !isUUID(id) {
		return nil, persistence.ErrProposedWorkNotFound
	}

	var openedAt, discardedAt *time.Time

	switch resolution {
	case models.ResolutionOpened:
		openedAt = &at
	case models.ResolutionDiscarded:
		discardedAt = &at
	default:
		return nil, fmt.Errorf("cannot resolve proposed work to %q", resolution)
	}

	query := `
		UPDATE proposed_works
		SET resolution = $3, work_id = $4, opened_at = $5, discarded_at = $6
		WHERE account_id = $1 AND id = $2 AND resolution = 'pending'
		RETURNING ` + proposalColumns

	proposal, err := r.scanProposal(r.q.QueryRowContext(ctx, query,
		accountID, id, resolution, nullString(workID), openedAt, discardedAt))
	if err == nil {
		return proposal, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve proposed work: %w", err)
	}

	// Nothing matched: either the row is missing or it already left pending.
	var exists bool

	err = r.q.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM proposed_works WHERE account_id = $1 AND id = $2)",
		accountID, id).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check proposed work: %w", err)
	}

	if !exists {
		return nil, persistence.ErrProposedWorkNotFound
	}

	return nil, persistence.ErrAlreadyResolved
}

func (r *ProposalRepository) scanProposal(scanner rowScanner) (*models.ProposedWork, error) {
	var (
		p         models.ProposedWork
		slotsJSON []byte
		workID    sql.NullString
	)

	err := scanner.Scan(
		&p.ID,
		&p.AccountID,
		&p.RelationshipID,
		&p.ConversationID,
		&p.DecisionEventID,
		&p.WorkDefinitionID,
		&p.Intent,
		&slotsJSON,
		&p.Confidence,
		&p.Resolution,
		&workID,
		&p.CreatedAt,
		&p.OpenedAt,
		&p.DiscardedAt,
	)
	if err != nil {
		return nil, err
	}

	p.WorkID = workID.String

	if err := json.Unmarshal(slotsJSON, &p.CandidateSlots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candidate slots: %w", err)
	}

	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
