package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/store"
)

// SessionsHandler serves the sessions receiver interface.
type SessionsHandler struct {
	store *store.Store
	log   *zap.Logger
}

func NewSessionsHandler(st *store.Store, log *zap.Logger) *SessionsHandler {
	return &SessionsHandler{store: st, log: log}
}

func (h *SessionsHandler) Register(router fiber.Router) {
	base := "/2.2.1/sessions/:country_code/:party_id/:session_id"

	router.Options(base, h.Options)
	router.Get(base, h.Get)
	router.Put(base, h.Put)
	router.Patch(base, h.Patch)
	router.Delete(base, h.Delete)
}

func (h *SessionsHandler) Options(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete)
	return c.SendStatus(fiber.StatusOK)
}

func (h *SessionsHandler) Get(c *fiber.Ctx) error {
	sess, ok, err := h.store.GetSession(c.UserContext(), partyKeyParams(c), domain.SessionID(c.Params("session_id")))
	if err != nil {
		h.log.Warn("session lookup failed", zap.Error(err))
		return respond(c, ocpi.Failure(ocpi.StatusGenericServerError, "session lookup failed"))
	}
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownLocation, "session not found"))
	}
	return respond(c, ocpi.Success(sess))
}

func (h *SessionsHandler) Put(c *fiber.Ctx) error {
	var sess domain.Session
	if err := c.BodyParser(&sess); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed session body"))
	}
	key := partyKeyParams(c)
	sess.CountryCode = key.CountryCode
	sess.PartyID = key.PartyID
	sess.ID = domain.SessionID(c.Params("session_id"))

	res := h.store.AddOrUpdateSession(c.UserContext(), &sess, allowDowngradesParam(c))
	return respond(c, mutationResponse("session", res))
}

func (h *SessionsHandler) Patch(c *fiber.Ctx) error {
	res := h.store.PatchSession(c.UserContext(), partyKeyParams(c),
		domain.SessionID(c.Params("session_id")), c.Body(), allowDowngradesParam(c))
	return respond(c, mutationResponse("session", res))
}

func (h *SessionsHandler) Delete(c *fiber.Ctx) error {
	res := h.store.RemoveSession(c.UserContext(), partyKeyParams(c), domain.SessionID(c.Params("session_id")))
	return respond(c, mutationResponse("session", res))
}
