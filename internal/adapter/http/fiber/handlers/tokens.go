package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/store"
)

// TokensHandler serves the tokens receiver interface. A token PUT carries the
// OCPI token object; its authorization status defaults to ALLOWED unless the
// body says otherwise.
type TokensHandler struct {
	store *store.Store
	log   *zap.Logger
}

func NewTokensHandler(st *store.Store, log *zap.Logger) *TokensHandler {
	return &TokensHandler{store: st, log: log}
}

func (h *TokensHandler) Register(router fiber.Router) {
	base := "/2.2.1/tokens/:country_code/:party_id/:token_uid"

	router.Options(base, h.Options)
	router.Get(base, h.Get)
	router.Put(base, h.Put)
	router.Patch(base, h.Patch)
	router.Delete(base, h.Delete)
}

func (h *TokensHandler) Options(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete)
	return c.SendStatus(fiber.StatusOK)
}

func (h *TokensHandler) Get(c *fiber.Ctx) error {
	ts, ok, err := h.store.GetToken(c.UserContext(), partyKeyParams(c), domain.TokenID(c.Params("token_uid")))
	if err != nil {
		h.log.Warn("token lookup failed", zap.Error(err))
		return respond(c, ocpi.Failure(ocpi.StatusGenericServerError, "token lookup failed"))
	}
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownToken, "token not found"))
	}
	return respond(c, ocpi.Success(ts))
}

func (h *TokensHandler) Put(c *fiber.Ctx) error {
	var tok domain.Token
	if err := c.BodyParser(&tok); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed token body"))
	}
	key := partyKeyParams(c)
	tok.CountryCode = key.CountryCode
	tok.PartyID = key.PartyID
	tok.ID = domain.TokenID(c.Params("token_uid"))

	status := domain.AllowedTypeAllowed
	if !tok.Valid {
		status = domain.AllowedTypeNotAllowed
	}
	ts := &domain.TokenStatus{Token: tok, Status: status}
	res := h.store.AddOrUpdateToken(c.UserContext(), ts, allowDowngradesParam(c))
	return respond(c, mutationResponse("token", res))
}

func (h *TokensHandler) Patch(c *fiber.Ctx) error {
	res := h.store.PatchToken(c.UserContext(), partyKeyParams(c),
		domain.TokenID(c.Params("token_uid")), c.Body(), allowDowngradesParam(c))
	return respond(c, mutationResponse("token", res))
}

func (h *TokensHandler) Delete(c *fiber.Ctx) error {
	res := h.store.RemoveToken(c.UserContext(), partyKeyParams(c), domain.TokenID(c.Params("token_uid")))
	return respond(c, mutationResponse("token", res))
}
