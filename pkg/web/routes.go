package web

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Routes mounts the API on router. metrics may be nil to leave /metrics out.
func Routes(router fiber.Router, h *APIHandlers, metrics http.Handler) {
	router.Get("/health", h.HealthCheck)

	if metrics != nil {
		router.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	accounts := router.Group("/accounts/:accountId/definitions")
	accounts.Post("/", h.RegisterDefinition)
	accounts.Get("/", h.ListDefinitions)
	accounts.Get("/:typeId", h.GetLatestDefinition)
	accounts.Get("/:typeId/:version", h.GetDefinition)

	router.Post("/proposals", h.ProposeWork)
	router.Post("/proposals/:id/open", h.OpenWork)
	router.Post("/proposals/:id/discard", h.DiscardWork)

	router.Get("/resolve", h.Resolve)

	works := router.Group("/works/:id")
	works.Get("/", h.GetWork)
	works.Get("/events", h.ListWorkEvents)
	works.Post("/deltas", h.CommitDelta)
	works.Post("/confirmations", h.RequestConfirmation)
	works.Post("/effects/claims", h.ClaimEffect)
	works.Post("/effects", h.RecordEffect)

	router.Post("/confirmations/match", h.MatchConfirmation)
	router.Post("/confirmations/:id/commit", h.CommitConfirmation)

	router.Post("/maintenance/expire", h.Expire)
	router.Post("/messages", h.HandleMessage)
}
