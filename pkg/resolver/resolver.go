// Package resolver decides whether an inbound message resumes an active work or
// should be evaluated as a new proposal.
package resolver

import (
	"context"
	"fmt"

	"github.com/dukex/parley/pkg/models"
)

// Decision is the routing outcome.
type Decision string

const (
	DecisionResumeWork       Decision = "RESUME_WORK"
	DecisionEvaluateProposal Decision = "EVALUATE_PROPOSAL"
)

// Context identifies the conversation a message belongs to.
type Context struct {
	AccountID      string `json:"account_id"      query:"account_id"      validate:"required"`
	RelationshipID string `json:"relationship_id" query:"relationship_id"`
	ConversationID string `json:"conversation_id" query:"conversation_id" validate:"required"`
}

// Resolution carries the decision and, for RESUME_WORK, the work to resume.
type Resolution struct {
	Decision Decision     `json:"decision"`
	WorkID   string       `json:"work_id,omitempty"`
	Work     *models.Work `json:"work,omitempty"`
}

// ActiveWorkFinder is the read the resolver needs from the store.
type ActiveWorkFinder interface {
	FindActiveWork(ctx context.Context, accountID, relationshipID, conversationID string) (*models.Work, error)
}

// Resolver is stateless apart from its store handle.
type Resolver struct {
	works ActiveWorkFinder
}

// New creates a resolver.
func New(works ActiveWorkFinder) *Resolver {
	return &Resolver{works: works}
}

// Resolve returns RESUME_WORK for the most recently updated non-terminal work of the
// conversation, EVALUATE_PROPOSAL otherwise.
func (r *Resolver) Resolve(ctx context.Context, c Context) (Resolution, error) {
	work, err := r.works.FindActiveWork(ctx, c.AccountID, c.RelationshipID, c.ConversationID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve conversation %s: %w", c.ConversationID, err)
	}

	if work == nil {
		return Resolution{Decision: DecisionEvaluateProposal}, nil
	}

	return Resolution{Decision: DecisionResumeWork, WorkID: work.ID, Work: work}, nil
}
