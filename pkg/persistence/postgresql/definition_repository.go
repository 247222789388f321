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
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const definitionColumns = `
			id
		  , account_id
		  , type_id
		  , version
		  , name
		  , description
		  , slots
		  , fsm
		  , policies
		  , binding_attribute
		  , created_at`

// DefinitionRepository handles work definition database operations.
type DefinitionRepository struct {
	q      querier
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(q querier, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{q: q, logger: logger}
}

// Insert stores a new definition version. Definitions are never updated.
func (r *DefinitionRepository) Insert(ctx context.Context, def *models.WorkDefinition) error {
	if def.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate definition ID: %w", err)
		}

		def.ID = id.String()
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	slotsJSON, err := json.Marshal(def.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}

	fsmJSON, err := json.Marshal(def.FSM)
	if err != nil {
		return fmt.Errorf("failed to marshal fsm: %w", err)
	}

	policiesJSON, err := json.Marshal(def.Policies)
	if err != nil {
		return fmt.Errorf("failed to marshal policies: %w", err)
	}

	query := `
		INSERT INTO work_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.q.ExecContext(ctx, query,
		def.ID,
		def.AccountID,
		def.TypeID,
		def.Version,
		def.Name,
		def.Description,
		string(slotsJSON),
		string(fsmJSON),
		string(policiesJSON),
		def.BindingAttribute,
		def.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = persistence.ErrDuplicateVersion
		}

		return &persistence.DefinitionError{
			Op:        "Insert",
			AccountID: def.AccountID,
			TypeID:    def.TypeID,
			Version:   def.Version,
			Err:       err,
		}
	}

	return nil
}

// Get returns the exact version, or nil when it does not exist.
func (r *DefinitionRepository) Get(ctx context.Context, accountID, typeID, version string) (*models.WorkDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM work_definitions
		WHERE account_id = $1 AND type_id = $2 AND version = $3
	`

	return r.getOne(ctx, query, accountID, typeID, version)
}

// GetByID returns a definition by its internal id, or nil when it does not exist.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkDefinition, error) {
	if !isUUID(id) {
		return nil, nil
	}

	query := `SELECT ` + definitionColumns + `
		FROM work_definitions
		WHERE id = $1
	`

	return r.getOne(ctx, query, id)
}

// GetDefinitionByID is GetByID bound into a transaction.
func (r *DefinitionRepository) GetDefinitionByID(ctx context.Context, id string) (*models.WorkDefinition, error) {
	return r.GetByID(ctx, id)
}

// ListVersions returns every version of one type. Ordering is left to the caller,
// which compares versions semantically.
func (r *DefinitionRepository) ListVersions(ctx context.Context, accountID, typeID string) ([]*models.WorkDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM work_definitions
		WHERE account_id = $1 AND type_id = $2
	`

	return r.list(ctx, query, accountID, typeID)
}

// ListAll returns every version of every type of an account.
func (r *DefinitionRepository) ListAll(ctx context.Context, accountID string) ([]*models.WorkDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM work_definitions
		WHERE account_id = $1
		ORDER BY type_id
	`

	return r.list(ctx, query, accountID)
}

func (r *DefinitionRepository) getOne(ctx context.Context, query string, args ...any) (*models.WorkDefinition, error) {
	def, err := r.scanDefinition(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan work definition: %w", err)
	}

	return def, nil
}

func (r *DefinitionRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkDefinition, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work definitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	defs := make([]*models.WorkDefinition, 0)

	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work definition: %w", err)
		}

		defs = append(defs, def)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating work definitions: %w", err)
	}

	return defs, nil
}

func (r *DefinitionRepository) scanDefinition(scanner rowScanner) (*models.WorkDefinition, error) {
	var (
		def                              models.WorkDefinition
		slotsJSON, fsmJSON, policiesJSON []byte
	)

	err := scanner.Scan(
		&def.ID,
		&def.AccountID,
		&def.TypeID,
		&def.Version,
		&def.Name,
		&def.Description,
		&slotsJSON,
		&fsmJSON,
		&policiesJSON,
		&def.BindingAttribute,
		&def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(slotsJSON, &def.Slots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slots: %w", err)
	}

	if err := json.Unmarshal(fsmJSON, &def.FSM); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fsm: %w", err)
	}

	if err := json.Unmarshal(policiesJSON, &def.Policies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policies: %w", err)
	}

	return &def, nil
}
