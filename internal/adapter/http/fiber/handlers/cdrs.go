package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/store"
)

// CDRsHandler serves the CDRs receiver interface. CDRs are immutable: new
// records come in through POST on the collection URL and can only be fetched
// or deleted afterwards, never updated.
type CDRsHandler struct {
	store   *store.Store
	baseURL string
	log     *zap.Logger
}

func NewCDRsHandler(st *store.Store, baseURL string, log *zap.Logger) *CDRsHandler {
	return &CDRsHandler{store: st, baseURL: baseURL, log: log}
}

func (h *CDRsHandler) Register(router fiber.Router) {
	router.Options("/2.2.1/cdrs", h.OptionsCollection)
	router.Post("/2.2.1/cdrs", h.Post)

	keyed := "/2.2.1/cdrs/:country_code/:party_id/:cdr_id"
	router.Options(keyed, h.Options)
	router.Get(keyed, h.Get)
	router.Delete(keyed, h.Delete)
}

func (h *CDRsHandler) OptionsCollection(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodPost)
	return c.SendStatus(fiber.StatusOK)
}

func (h *CDRsHandler) Options(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet, fiber.MethodDelete)
	return c.SendStatus(fiber.StatusOK)
}

func (h *CDRsHandler) Post(c *fiber.Ctx) error {
	var cdr domain.CDR
	if err := c.BodyParser(&cdr); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed cdr body"))
	}
	if cdr.CountryCode == "" || cdr.PartyID == "" || cdr.ID == "" {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "cdr requires country_code, party_id and id"))
	}

	res := h.store.AddCDRIfNotExists(c.UserContext(), &cdr)
	if res.OK() {
		c.Set("Location", fmt.Sprintf("%s/2.2.1/cdrs/%s/%s/%s",
			h.baseURL, cdr.CountryCode, cdr.PartyID, cdr.ID))
	}
	return respond(c, mutationResponse("cdr", res))
}

func (h *CDRsHandler) Get(c *fiber.Ctx) error {
	cdr, ok, err := h.store.GetCDR(c.UserContext(), partyKeyParams(c), domain.CDRID(c.Params("cdr_id")))
	if err != nil {
		h.log.Warn("cdr lookup failed", zap.Error(err))
		return respond(c, ocpi.Failure(ocpi.StatusGenericServerError, "cdr lookup failed"))
	}
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownLocation, "cdr not found"))
	}
	return respond(c, ocpi.Success(cdr))
}

func (h *CDRsHandler) Delete(c *fiber.Ctx) error {
	res := h.store.RemoveCDR(c.UserContext(), partyKeyParams(c), domain.CDRID(c.Params("cdr_id")))
	return respond(c, mutationResponse("cdr", res))
}
