// Package conversation drives the work execution core for one inbound message: a
// deterministic confirmation check first, then the resolver, then the interpreter.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/parley/pkg/delta"
	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/interpreter"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/resolver"
	"github.com/go-playground/validator/v10"
)

const DefaultMinConfidence = 0.7

// OutcomeKind tells the caller what the message did.
type OutcomeKind string

const (
	OutcomeConversational        OutcomeKind = "conversational"
	OutcomeProposed              OutcomeKind = "proposed"
	OutcomeOpened                OutcomeKind = "opened"
	OutcomeCommitted             OutcomeKind = "committed"
	OutcomeConfirmationRequested OutcomeKind = "confirmation_requested"
	OutcomeConfirmed             OutcomeKind = "confirmed"
)

// Message is one inbound conversation message.
type Message struct {
	AccountID      string `json:"account_id"      validate:"required"`
	RelationshipID string `json:"relationship_id"`
	ConversationID string `json:"conversation_id" validate:"required"`
	MessageID      string `json:"message_id"      validate:"required"`
	Text           string `json:"text"            validate:"required"`
	TraceID        string `json:"trace_id"`
}

// Outcome is the result of handling a message.
type Outcome struct {
	Kind              OutcomeKind `json:"kind"`
	WorkID            string      `json:"work_id,omitempty"`
	ProposedWorkID    string      `json:"proposed_work_id,omitempty"`
	SemanticContextID string      `json:"semantic_context_id,omitempty"`
	Revision          int64       `json:"revision,omitempty"`
}

// WorkEngine is the part of the engine the service drives.
type WorkEngine interface {
	ResolveSemanticMatch(ctx context.Context, accountID, conversationID, text string) (*models.SemanticContext, error)
	CommitSemanticConfirmation(ctx context.Context, contextID, messageID string) (*models.SemanticContext, error)
	ExpireSemanticContext(ctx context.Context, contextID string) (*models.SemanticContext, error)
	GetWorkState(ctx context.Context, workID string) (*models.WorkProjection, error)
	CommitDelta(ctx context.Context, workID string, d models.Delta, actor models.Actor, traceID string, opts ...engine.CommitOption) (*models.Work, error)
	RequestSemanticConfirmation(ctx context.Context, req engine.ConfirmationRequest) (*models.SemanticContext, error)
	ProposeWork(ctx context.Context, req engine.ProposeRequest) (*models.ProposedWork, error)
	OpenWork(ctx context.Context, accountID, proposedWorkID string) (*models.Work, error)
}

type Resolver interface {
	Resolve(ctx context.Context, c resolver.Context) (resolver.Resolution, error)
}

type Definitions interface {
	GetByID(ctx context.Context, id string) (*models.WorkDefinition, error)
	ListLatest(ctx context.Context, accountID string) ([]*models.WorkDefinition, error)
}

// Interpreter is the guarded interpreter: failures are already absorbed into nil.
type Interpreter interface {
	Interpret(ctx context.Context, definitions []*models.WorkDefinition, text string) *interpreter.Analysis
	SolveActiveWork(ctx context.Context, definition *models.WorkDefinition, state models.Snapshot, text string) []models.CandidateSlot
}

type Notifier interface {
	Send(ctx context.Context, conversationID, targetAccountID, text string) error
}

// Dependencies groups the collaborators of a Service.
type Dependencies struct {
	Engine      WorkEngine
	Resolver    Resolver
	Definitions Definitions
	Interpreter Interpreter
	Notifier    Notifier
}

type Service struct {
	Dependencies

	minConfidence float64
	validate      *validator.Validate
	logger        *slog.Logger
}

type Option func(*Service)

// WithMinConfidence sets the confidence a proposal needs to be persisted.
func WithMinConfidence(c float64) Option {
	return func(s *Service) { s.minConfidence = c }
}

func New(deps Dependencies, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		Dependencies:  deps,
		minConfidence: DefaultMinConfidence,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger.With("module", "conversation"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// HandleMessage routes one message. Typed engine errors are returned to the caller;
// interpreter and notifier failures never are.
func (s *Service) HandleMessage(ctx context.Context, msg Message) (Outcome, error) {
	if err := s.validate.Struct(msg); err != nil {
		return Outcome{}, fmt.Errorf("%w: %s", engine.ErrInvalidRequest, err.Error())
	}

	sc, err := s.Engine.ResolveSemanticMatch(ctx, msg.AccountID, msg.ConversationID, msg.Text)
	if err != nil {
		return Outcome{}, err
	}

	if sc != nil {
		return s.confirm(ctx, msg, sc)
	}

	res, err := s.Resolver.Resolve(ctx, resolver.Context{
		AccountID:      msg.AccountID,
		RelationshipID: msg.RelationshipID,
		ConversationID: msg.ConversationID,
	})
	if err != nil {
		return Outcome{}, err
	}

	if res.Decision == resolver.DecisionResumeWork {
		return s.resume(ctx, msg, res.WorkID)
	}

	return s.evaluate(ctx, msg)
}

func (s *Service) confirm(ctx context.Context, msg Message, sc *models.SemanticContext) (Outcome, error) {
	consumed, err := s.Engine.CommitSemanticConfirmation(ctx, sc.ID, msg.MessageID)
	if errors.Is(err, delta.ErrWorkFrozen) {
		// the work closed while the question was pending; it can never be answered
		if _, expErr := s.Engine.ExpireSemanticContext(ctx, sc.ID); expErr != nil && !persistence.IsInvalidOrExpired(expErr) {
			return Outcome{}, expErr
		}

		s.logger.InfoContext(ctx, "confirmation dropped for frozen work", "semantic_context_id", sc.ID, "work_id", sc.WorkID)

		return Outcome{Kind: OutcomeConversational, WorkID: sc.WorkID}, nil
	}

	if err != nil {
		return Outcome{}, err
	}

	s.acknowledge(ctx, msg, fmt.Sprintf("Confirmed %s.", consumed.SlotPath))

	return Outcome{Kind: OutcomeConfirmed, WorkID: consumed.WorkID, SemanticContextID: consumed.ID}, nil
}

func (s *Service) resume(ctx context.Context, msg Message, workID string) (Outcome, error) {
	projection, err := s.Engine.GetWorkState(ctx, workID)
	if err != nil {
		return Outcome{}, err
	}

	def, err := s.Definitions.GetByID(ctx, projection.Work.WorkDefinitionID)
	if err != nil {
		return Outcome{}, err
	}

	if def == nil {
		return Outcome{}, fmt.Errorf("%w: %s", engine.ErrDefinitionMissing, projection.Work.WorkDefinitionID)
	}

	slots := s.Interpreter.SolveActiveWork(ctx, def, projection.Snapshot, msg.Text)

	var (
		changes    models.Delta
		toConfirm  []models.CandidateSlot
		negotiated = def.Policies.Negotiation.ConfirmImmutable
	)

	for _, slot := range slots {
		current, set := projection.Snapshot.Slots[slot.Path]
		if set && delta.SameValue(current, slot.Value) {
			continue
		}

		if spec, _ := def.Slot(slot.Path); spec.Immutable && negotiated {
			toConfirm = append(toConfirm, slot)

			continue
		}

		changes = append(changes, models.SetOp{Path: slot.Path, Value: slot.Value, Evidence: slot.Evidence})
	}

	outcome := Outcome{Kind: OutcomeConversational, WorkID: workID, Revision: projection.Work.Revision}

	if len(changes) > 0 {
		work, err := s.Engine.CommitDelta(ctx, workID, changes, models.ActorAI, msg.TraceID,
			engine.WithExpectedRevision(projection.Work.Revision))

		switch {
		case delta.IsValidationError(err):
			s.logger.WarnContext(ctx, "interpreted delta rejected", "work_id", workID, "error", err)
		case err != nil:
			return Outcome{}, err
		default:
			outcome.Kind = OutcomeCommitted
			outcome.Revision = work.Revision
		}
	}

	// one question at a time; the rest is picked up on later messages
	if len(toConfirm) > 0 {
		slot := toConfirm[0]

		sc, err := s.Engine.RequestSemanticConfirmation(ctx, engine.ConfirmationRequest{
			WorkID:        workID,
			SlotPath:      slot.Path,
			ProposedValue: slot.Value,
			TraceID:       msg.TraceID,
			MessageID:     msg.MessageID,
		})

		switch {
		case delta.IsValidationError(err):
			s.logger.WarnContext(ctx, "confirmation not requested", "work_id", workID, "path", slot.Path, "error", err)
		case err != nil:
			return Outcome{}, err
		default:
			outcome.Kind = OutcomeConfirmationRequested
			outcome.SemanticContextID = sc.ID

			s.acknowledge(ctx, msg, fmt.Sprintf("Please confirm %s: %v", slot.Path, slot.Value))
		}
	}

	return outcome, nil
}

func (s *Service) evaluate(ctx context.Context, msg Message) (Outcome, error) {
	conversational := Outcome{Kind: OutcomeConversational}

	defs, err := s.Definitions.ListLatest(ctx, msg.AccountID)
	if err != nil {
		return Outcome{}, err
	}

	if len(defs) == 0 {
		return conversational, nil
	}

	analysis := s.Interpreter.Interpret(ctx, defs, msg.Text)
	if analysis == nil {
		return conversational, nil
	}

	var def *models.WorkDefinition

	for _, d := range defs {
		if d.TypeID == analysis.WorkDefinitionTypeID {
			def = d
		}
	}

	if def == nil {
		return conversational, nil
	}

	if !hasBinding(def, analysis.Slots) {
		s.logger.InfoContext(ctx, "proposal without binding evidence", "type_id", def.TypeID, "binding_attribute", def.BindingAttribute)

		return conversational, nil
	}

	if analysis.Confidence < s.minConfidence {
		s.logger.InfoContext(ctx, "proposal below confidence threshold", "type_id", def.TypeID, "confidence", analysis.Confidence)

		return conversational, nil
	}

	proposal, err := s.Engine.ProposeWork(ctx, engine.ProposeRequest{
		AccountID:        msg.AccountID,
		RelationshipID:   msg.RelationshipID,
		ConversationID:   msg.ConversationID,
		TraceID:          msg.TraceID,
		WorkDefinitionID: def.ID,
		Intent:           analysis.Intent,
		CandidateSlots:   analysis.Slots,
		Confidence:       analysis.Confidence,
		Model:            analysis.Model,
		RawInput:         msg.Text,
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Kind: OutcomeProposed, ProposedWorkID: proposal.ID}

	if !def.Policies.Negotiation.AutoOpen {
		return outcome, nil
	}

	work, err := s.Engine.OpenWork(ctx, msg.AccountID, proposal.ID)

	switch {
	case engine.IsActiveWorkExists(err), delta.IsValidationError(err):
		s.logger.InfoContext(ctx, "proposal left pending", "proposed_work_id", proposal.ID, "error", err)

		return outcome, nil
	case err != nil:
		return Outcome{}, err
	}

	s.acknowledge(ctx, msg, fmt.Sprintf("Started %s.", displayName(def)))

	return Outcome{Kind: OutcomeOpened, WorkID: work.ID, ProposedWorkID: proposal.ID, Revision: work.Revision}, nil
}

func (s *Service) acknowledge(ctx context.Context, msg Message, text string) {
	if s.Notifier == nil {
		return
	}

	if err := s.Notifier.Send(ctx, msg.ConversationID, msg.AccountID, text); err != nil {
		s.logger.ErrorContext(ctx, "failed to send acknowledgement", "conversation_id", msg.ConversationID, "error", err)
	}
}

func hasBinding(def *models.WorkDefinition, slots []models.CandidateSlot) bool {
	if def.BindingAttribute == "" {
		return true
	}

	for _, s := range slots {
		if s.Path == def.BindingAttribute {
			return true
		}
	}

	return false
}

func displayName(def *models.WorkDefinition) string {
	if def.Name != "" {
		return def.Name
	}

	return def.TypeID
}
