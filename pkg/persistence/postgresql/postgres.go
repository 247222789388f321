// Package postgresql provides the PostgreSQL persistence implementation for work execution.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/persistence/sqlbase"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx so repositories run in or out of a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	definitions *DefinitionRepository
	works       *WorkRepository
	events      *EventRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence opens the database, runs pending migrations and returns the store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewWithDB(database, logger), nil
}

// NewWithDB wraps an already opened database without running migrations.
func NewWithDB(db *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:          db,
		logger:      logger,
		definitions: NewDefinitionRepository(db, logger),
		works:       NewWorkRepository(db, logger),
		events:      NewEventRepository(db, logger),
	}
}

// WithTx runs fn in a transaction, committing on success and rolling back on any error.
func (p *Persistence) WithTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			rbErr := tx.Rollback()
			if rbErr != nil {
				p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	err = fn(ctx, newTransaction(tx, p.logger))
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Definitions returns the definition repository bound to the connection pool.
func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

// FindActiveWork returns the most recently updated non-terminal work of a conversation.
func (p *Persistence) FindActiveWork(ctx context.Context, accountID, relationshipID, conversationID string) (*models.Work, error) {
	return p.works.FindActive(ctx, accountID, relationshipID, conversationID)
}

// ListWorkEvents returns the audit trail of a work ordered by id.
func (p *Persistence) ListWorkEvents(ctx context.Context, workID string) ([]*models.WorkEvent, error) {
	return p.events.ListWorkEvents(ctx, workID)
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// transaction binds every repository to one *sql.Tx.
type transaction struct {
	*DefinitionRepository
	*ProposalRepository
	*WorkRepository
	*EventRepository
	*SemanticContextRepository
	*EffectRepository
	*MaintenanceRepository
}

var _ persistence.Tx = (*transaction)(nil)

func newTransaction(tx *sql.Tx, logger *slog.Logger) *transaction {
	return &transaction{
		DefinitionRepository:      NewDefinitionRepository(tx, logger),
		ProposalRepository:        NewProposalRepository(tx, logger),
		WorkRepository:            NewWorkRepository(tx, logger),
		EventRepository:           NewEventRepository(tx, logger),
		SemanticContextRepository: NewSemanticContextRepository(tx, logger),
		EffectRepository:          NewEffectRepository(tx, logger),
		MaintenanceRepository:     NewMaintenanceRepository(tx, logger),
	}
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// isUUID reports whether id could match a UUID key. Anything else is treated as absent
// instead of letting Postgres reject the cast.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)

	return err == nil
}
