package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/store"
)

// TariffsHandler serves the tariffs receiver interface. GET returns the
// version in effect at the requested instant; DELETE drops the whole
// version series.
type TariffsHandler struct {
	store *store.Store
	log   *zap.Logger
}

func NewTariffsHandler(st *store.Store, log *zap.Logger) *TariffsHandler {
	return &TariffsHandler{store: st, log: log}
}

func (h *TariffsHandler) Register(router fiber.Router) {
	base := "/2.2.1/tariffs/:country_code/:party_id/:tariff_id"

	router.Options(base, h.Options)
	router.Get(base, h.Get)
	router.Put(base, h.Put)
	router.Patch(base, h.Patch)
	router.Delete(base, h.Delete)
}

func (h *TariffsHandler) Options(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete)
	return c.SendStatus(fiber.StatusOK)
}

func (h *TariffsHandler) Get(c *fiber.Ctx) error {
	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "invalid 'at' timestamp"))
		}
		at = parsed
	}

	t, ok := h.store.GetTariff(partyKeyParams(c), domain.TariffID(c.Params("tariff_id")), at)
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownLocation, "tariff not found"))
	}
	return respond(c, ocpi.Success(t))
}

func (h *TariffsHandler) Put(c *fiber.Ctx) error {
	var t domain.Tariff
	if err := c.BodyParser(&t); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed tariff body"))
	}
	key := partyKeyParams(c)
	t.CountryCode = key.CountryCode
	t.PartyID = key.PartyID
	t.ID = domain.TariffID(c.Params("tariff_id"))

	res := h.store.AddOrUpdateTariff(c.UserContext(), &t, allowDowngradesParam(c))
	return respond(c, mutationResponse("tariff", res))
}

func (h *TariffsHandler) Patch(c *fiber.Ctx) error {
	res := h.store.PatchTariff(c.UserContext(), partyKeyParams(c),
		domain.TariffID(c.Params("tariff_id")), c.Body(), allowDowngradesParam(c))
	return respond(c, mutationResponse("tariff", res))
}

func (h *TariffsHandler) Delete(c *fiber.Ctx) error {
	res := h.store.RemoveTariff(c.UserContext(), partyKeyParams(c), domain.TariffID(c.Params("tariff_id")))
	return respond(c, mutationResponse("tariff", res))
}
