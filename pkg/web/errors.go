package web

import (
	"errors"

	"github.com/dukex/parley/pkg/delta"
	"github.com/dukex/parley/pkg/engine"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/dukex/parley/pkg/registry"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps typed domain errors onto RFC 7807 problems.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case delta.IsValidationError(err), engine.IsInvalidRequest(err), errors.Is(err, registry.ErrInvalidDefinition):
		return badRequest(c, err.Error())
	case persistence.IsNotFound(err), engine.IsDefinitionMissing(err):
		return notFound(c, err.Error())
	case persistence.IsConcurrencyConflict(err):
		return problem(c, fiber.StatusConflict, "concurrency_conflict", err.Error())
	case persistence.IsAlreadyResolved(err):
		return problem(c, fiber.StatusConflict, "already_resolved", err.Error())
	case persistence.IsDuplicateVersion(err):
		return problem(c, fiber.StatusConflict, "duplicate_version", err.Error())
	case engine.IsActiveWorkExists(err):
		return problem(c, fiber.StatusConflict, "active_work_exists", err.Error())
	case errors.Is(err, persistence.ErrClaimNotActive):
		return problem(c, fiber.StatusConflict, "claim_not_active", err.Error())
	case persistence.IsInvalidOrExpired(err):
		return problem(c, fiber.StatusGone, "invalid_or_expired", err.Error())
	default:
		return internalError(c, err)
	}
}
