package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/adapter/http/fiber/middleware"
	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/service/credentials"
)

// CredentialsHandler serves the registration endpoint. All verbs except
// OPTIONS require a valid access token; which verbs are valid depends on
// whether the presented token belongs to an already registered party.
type CredentialsHandler struct {
	svc *credentials.Service
	log *zap.Logger
}

func NewCredentialsHandler(svc *credentials.Service, log *zap.Logger) *CredentialsHandler {
	return &CredentialsHandler{svc: svc, log: log}
}

func (h *CredentialsHandler) Register(router fiber.Router) {
	router.Options("/2.2.1/credentials", h.Options)
	router.Get("/2.2.1/credentials", h.Get)
	router.Post("/2.2.1/credentials", h.Post)
	router.Put("/2.2.1/credentials", h.Put)
	router.Delete("/2.2.1/credentials", h.Delete)
}

func (h *CredentialsHandler) Options(c *fiber.Ctx) error {
	allow(c, h.svc.AllowedMethods(middleware.Auth(c))...)
	return c.SendStatus(fiber.StatusOK)
}

func (h *CredentialsHandler) Get(c *fiber.Ctx) error {
	match := middleware.Auth(c)
	if match == nil {
		return respond(c, ocpi.Failure(ocpi.StatusGenericClientError, "missing or invalid access token"))
	}
	allow(c, h.svc.AllowedMethods(match)...)
	return respond(c, h.svc.GetCredentials(*match))
}

func (h *CredentialsHandler) Post(c *fiber.Ctx) error {
	match := middleware.Auth(c)
	if match == nil {
		return respond(c, ocpi.Failure(ocpi.StatusGenericClientError, "missing or invalid access token"))
	}
	allow(c, h.svc.AllowedMethods(match)...)

	var body domain.Credentials
	if err := c.BodyParser(&body); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed credentials body"))
	}
	return respond(c, h.svc.PostCredentials(c.UserContext(), *match, body))
}

func (h *CredentialsHandler) Put(c *fiber.Ctx) error {
	match := middleware.Auth(c)
	if match == nil {
		return respond(c, ocpi.Failure(ocpi.StatusGenericClientError, "missing or invalid access token"))
	}
	allow(c, h.svc.AllowedMethods(match)...)

	var body domain.Credentials
	if err := c.BodyParser(&body); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed credentials body"))
	}
	return respond(c, h.svc.PutCredentials(c.UserContext(), *match, body))
}

func (h *CredentialsHandler) Delete(c *fiber.Ctx) error {
	match := middleware.Auth(c)
	if match == nil {
		return respond(c, ocpi.Failure(ocpi.StatusGenericClientError, "missing or invalid access token"))
	}
	allow(c, h.svc.AllowedMethods(match)...)
	return respond(c, h.svc.DeleteCredentials(c.UserContext(), *match))
}
