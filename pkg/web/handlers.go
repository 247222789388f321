// Package web exposes the work execution core over HTTP.
package web

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/parley/pkg/conversation"
	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/resolver"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WorkEngine is the engine surface served over HTTP.
type WorkEngine interface {
	ProposeWork(ctx context.Context, req engine.ProposeRequest) (*models.ProposedWork, error)
	OpenWork(ctx context.Context, accountID, proposedWorkID string) (*models.Work, error)
	DiscardWork(ctx context.Context, accountID, proposedWorkID string) (*models.ProposedWork, error)
	GetWorkState(ctx context.Context, workID string) (*models.WorkProjection, error)
	ListWorkEvents(ctx context.Context, workID string) ([]*models.WorkEvent, error)
	CommitDelta(ctx context.Context, workID string, d models.Delta, actor models.Actor, traceID string, opts ...engine.CommitOption) (*models.Work, error)
	RequestSemanticConfirmation(ctx context.Context, req engine.ConfirmationRequest) (*models.SemanticContext, error)
	ResolveSemanticMatch(ctx context.Context, accountID, conversationID, text string) (*models.SemanticContext, error)
	CommitSemanticConfirmation(ctx context.Context, contextID, messageID string) (*models.SemanticContext, error)
	ClaimExternalEffect(ctx context.Context, req engine.ClaimRequest) (*models.ExternalEffectClaim, error)
	RecordExternalEffect(ctx context.Context, req engine.RecordRequest) (*models.ExternalEffect, error)
	ExpireMaintenance(ctx context.Context) (models.ExpirationResult, error)
	HealthCheck(ctx context.Context) error
}

// Registry is the definition catalogue.
type Registry interface {
	Register(ctx context.Context, accountID string, def *models.WorkDefinition) (*models.WorkDefinition, error)
	Get(ctx context.Context, accountID, typeID, version string) (*models.WorkDefinition, error)
	GetLatest(ctx context.Context, accountID, typeID string) (*models.WorkDefinition, error)
	ListLatest(ctx context.Context, accountID string) ([]*models.WorkDefinition, error)
}

// Resolver routes a conversation to resume or evaluate.
type Resolver interface {
	Resolve(ctx context.Context, c resolver.Context) (resolver.Resolution, error)
}

// Conversation handles a full inbound message.
type Conversation interface {
	HandleMessage(ctx context.Context, msg conversation.Message) (conversation.Outcome, error)
}

type APIHandlers struct {
	engine       WorkEngine
	registry     Registry
	resolver     Resolver
	conversation Conversation
	validator    *validator.Validate
}

func NewAPIHandlers(
	eng WorkEngine,
	registry Registry,
	resolver Resolver,
	conversation Conversation,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:       eng,
		registry:     registry,
		resolver:     resolver,
		conversation: conversation,
		validator:    validator,
	}
}

func (h *APIHandlers) bind(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	if err := h.validator.Struct(out); err != nil {
		return err
	}

	return nil
}

func (h *APIHandlers) RegisterDefinition(c fiber.Ctx) error {
	var def models.WorkDefinition
	if err := c.Bind().JSON(&def); err != nil {
		return badRequest(c, "Invalid request body")
	}

	registered, err := h.registry.Register(c.Context(), c.Params("accountId"), &def)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(registered)
}

func (h *APIHandlers) ListDefinitions(c fiber.Ctx) error {
	defs, err := h.registry.ListLatest(c.Context(), c.Params("accountId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if defs == nil {
		defs = []*models.WorkDefinition{}
	}

	return c.JSON(defs)
}

func (h *APIHandlers) GetLatestDefinition(c fiber.Ctx) error {
	def, err := h.registry.GetLatest(c.Context(), c.Params("accountId"), c.Params("typeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if def == nil {
		return notFound(c, "Work definition not found")
	}

	return c.JSON(def)
}

func (h *APIHandlers) GetDefinition(c fiber.Ctx) error {
	def, err := h.registry.Get(c.Context(), c.Params("accountId"), c.Params("typeId"), c.Params("version"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if def == nil {
		return notFound(c, "Work definition not found")
	}

	return c.JSON(def)
}

func (h *APIHandlers) ProposeWork(c fiber.Ctx) error {
	var req engine.ProposeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	proposed, err := h.engine.ProposeWork(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(proposed)
}

func (h *APIHandlers) OpenWork(c fiber.Ctx) error {
	var req ProposalActionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	work, err := h.engine.OpenWork(c.Context(), req.AccountID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	setRevision(c, work.Revision)

	return c.Status(fiber.StatusCreated).JSON(work)
}

func (h *APIHandlers) DiscardWork(c fiber.Ctx) error {
	var req ProposalActionRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	proposed, err := h.engine.DiscardWork(c.Context(), req.AccountID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(proposed)
}

func (h *APIHandlers) Resolve(c fiber.Ctx) error {
	var rc resolver.Context
	if err := c.Bind().Query(&rc); err != nil {
		return badRequest(c, "Invalid query parameters")
	}

	if err := h.validator.Struct(rc); err != nil {
		return badRequest(c, err.Error())
	}

	resolution, err := h.resolver.Resolve(c.Context(), rc)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resolution)
}

func (h *APIHandlers) GetWork(c fiber.Ctx) error {
	projection, err := h.engine.GetWorkState(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	setRevision(c, projection.Work.Revision)

	return c.JSON(projection)
}

func (h *APIHandlers) ListWorkEvents(c fiber.Ctx) error {
	events, err := h.engine.ListWorkEvents(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if events == nil {
		events = []*models.WorkEvent{}
	}

	return c.JSON(events)
}

func (h *APIHandlers) CommitDelta(c fiber.Ctx) error {
	var req CommitDeltaRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	var opts []engine.CommitOption

	if raw := c.Get(fiber.HeaderIfMatch); raw != "" {
		rev, err := parseRevision(raw)
		if err != nil {
			return badRequest(c, err.Error())
		}

		opts = append(opts, engine.WithExpectedRevision(rev))
	}

	work, err := h.engine.CommitDelta(c.Context(), c.Params("id"), req.Operations, req.Actor, req.TraceID, opts...)
	if err != nil {
		return handleServiceError(c, err)
	}

	setRevision(c, work.Revision)

	return c.JSON(work)
}

func (h *APIHandlers) RequestConfirmation(c fiber.Ctx) error {
	var req ConfirmationRequestBody
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	sc, err := h.engine.RequestSemanticConfirmation(c.Context(), engine.ConfirmationRequest{
		WorkID:        c.Params("id"),
		SlotPath:      req.SlotPath,
		ProposedValue: req.ProposedValue,
		TraceID:       req.TraceID,
		MessageID:     req.MessageID,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sc)
}

// MatchConfirmation answers 204 when text does not confirm anything pending.
func (h *APIHandlers) MatchConfirmation(c fiber.Ctx) error {
	var req MatchRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	sc, err := h.engine.ResolveSemanticMatch(c.Context(), req.AccountID, req.ConversationID, req.Text)
	if err != nil {
		return handleServiceError(c, err)
	}

	if sc == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(sc)
}

func (h *APIHandlers) CommitConfirmation(c fiber.Ctx) error {
	var req CommitConfirmationRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	sc, err := h.engine.CommitSemanticConfirmation(c.Context(), c.Params("id"), req.MessageID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(sc)
}

func (h *APIHandlers) ClaimEffect(c fiber.Ctx) error {
	var req ClaimRequestBody
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	claim, err := h.engine.ClaimExternalEffect(c.Context(), engine.ClaimRequest{
		WorkID:     c.Params("id"),
		EffectType: req.EffectType,
		ToolCallID: req.ToolCallID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(claim)
}

func (h *APIHandlers) RecordEffect(c fiber.Ctx) error {
	var req RecordEffectBody
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	effect, err := h.engine.RecordExternalEffect(c.Context(), engine.RecordRequest{
		WorkID:   c.Params("id"),
		ClaimID:  req.ClaimID,
		ToolName: req.ToolName,
		Request:  req.Request,
		Response: req.Response,
		Status:   req.Status,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(effect)
}

func (h *APIHandlers) Expire(c fiber.Ctx) error {
	result, err := h.engine.ExpireMaintenance(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) HandleMessage(c fiber.Ctx) error {
	var msg conversation.Message
	if err := h.bind(c, &msg); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.conversation.HandleMessage(c.Context(), msg)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(outcome)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.engine.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unhealthy",
			"message":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"message":   "All systems operational",
		"checkers":  fiber.Map{"store": "ok"},
		"timestamp": time.Now().UTC(),
	})
}

func setRevision(c fiber.Ctx, rev int64) {
	c.Set(fiber.HeaderETag, strconv.Quote(strconv.FormatInt(rev, 10)))
}

// parseRevision accepts 3, "3" and W/"3".
func parseRevision(raw string) (int64, error) {
	v := strings.TrimPrefix(strings.TrimSpace(raw), "W/")
	v = strings.Trim(v, `"`)

	rev, err := strconv.ParseInt(v, 10, 64)
	if err != nil || rev < 1 {
		return 0, fmt.Errorf("invalid If-Match revision %q", raw)
	}

	return rev, nil
}
