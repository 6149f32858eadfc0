package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/adapter/http/fiber/middleware"
	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/service/versions"
)

// VersionsHandler serves the version discovery endpoints. Unauthenticated
// callers still get an answer, scoped down to the open data endpoints.
type VersionsHandler struct {
	svc *versions.Service
	log *zap.Logger
}

func NewVersionsHandler(svc *versions.Service, log *zap.Logger) *VersionsHandler {
	return &VersionsHandler{svc: svc, log: log}
}

func (h *VersionsHandler) Register(router fiber.Router) {
	router.Options("/versions", h.Options)
	router.Get("/versions", h.List)
	router.Options("/versions/:version_id", h.Options)
	router.Get("/versions/:version_id", h.Details)
}

func (h *VersionsHandler) Options(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet)
	return c.SendStatus(fiber.StatusOK)
}

func (h *VersionsHandler) List(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet)
	return respond(c, ocpi.Success(h.svc.Versions()))
}

func (h *VersionsHandler) Details(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet)

	if domain.VersionID(c.Params("version_id")) != domain.VersionOCPI221 {
		return respond(c, ocpi.Failure(ocpi.StatusUnsupportedVersion, "unsupported version"))
	}

	var counterpartyRole domain.Role
	if match := middleware.Auth(c); match != nil && len(match.Party.Roles) > 0 {
		counterpartyRole = match.Party.Roles[0].Role
	}
	return respond(c, ocpi.Success(h.svc.Details(counterpartyRole)))
}
