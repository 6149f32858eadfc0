package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/store"
)

// LocationsHandler serves the locations receiver interface, including the
// EVSE and connector sub-resources.
type LocationsHandler struct {
	store *store.Store
	log   *zap.Logger
}

func NewLocationsHandler(st *store.Store, log *zap.Logger) *LocationsHandler {
	return &LocationsHandler{store: st, log: log}
}

func (h *LocationsHandler) Register(router fiber.Router) {
	base := "/2.2.1/locations/:country_code/:party_id/:location_id"

	router.Options(base, h.Options)
	router.Get(base, h.Get)
	router.Put(base, h.Put)
	router.Patch(base, h.Patch)
	router.Delete(base, h.Delete)

	evse := base + "/:evse_uid"
	router.Options(evse, h.Options)
	router.Get(evse, h.GetEVSE)
	router.Put(evse, h.PutEVSE)
	router.Patch(evse, h.PatchEVSE)
	router.Delete(evse, h.DeleteEVSE)

	conn := evse + "/:connector_id"
	router.Options(conn, h.Options)
	router.Get(conn, h.GetConnector)
	router.Put(conn, h.PutConnector)
	router.Patch(conn, h.PatchConnector)
	router.Delete(conn, h.DeleteConnector)
}

func (h *LocationsHandler) Options(c *fiber.Ctx) error {
	allow(c, fiber.MethodOptions, fiber.MethodGet, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete)
	return c.SendStatus(fiber.StatusOK)
}

func (h *LocationsHandler) Get(c *fiber.Ctx) error {
	loc, ok := h.store.GetLocation(partyKeyParams(c), domain.LocationID(c.Params("location_id")))
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownLocation, "location not found"))
	}
	return respond(c, ocpi.Success(loc))
}

func (h *LocationsHandler) Put(c *fiber.Ctx) error {
	var loc domain.Location
	if err := c.BodyParser(&loc); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed location body"))
	}
	key := partyKeyParams(c)
	loc.CountryCode = key.CountryCode
	loc.PartyID = key.PartyID
	loc.ID = domain.LocationID(c.Params("location_id"))

	res := h.store.AddOrUpdateLocation(c.UserContext(), &loc, allowDowngradesParam(c))
	return respond(c, mutationResponse("location", res))
}

func (h *LocationsHandler) Patch(c *fiber.Ctx) error {
	res := h.store.PatchLocation(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), c.Body(), allowDowngradesParam(c))
	return respond(c, mutationResponse("location", res))
}

func (h *LocationsHandler) Delete(c *fiber.Ctx) error {
	res := h.store.RemoveLocation(c.UserContext(), partyKeyParams(c), domain.LocationID(c.Params("location_id")))
	return respond(c, mutationResponse("location", res))
}

func (h *LocationsHandler) GetEVSE(c *fiber.Ctx) error {
	evse, ok := h.store.GetEVSE(partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")))
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownLocation, "evse not found"))
	}
	return respond(c, ocpi.Success(evse))
}

func (h *LocationsHandler) PutEVSE(c *fiber.Ctx) error {
	var evse domain.EVSE
	if err := c.BodyParser(&evse); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed evse body"))
	}
	evse.UID = domain.EVSEUID(c.Params("evse_uid"))

	res := h.store.AddOrUpdateEVSE(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), &evse, allowDowngradesParam(c))
	return respond(c, mutationResponse("evse", res))
}

func (h *LocationsHandler) PatchEVSE(c *fiber.Ctx) error {
	res := h.store.PatchEVSE(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")),
		c.Body(), allowDowngradesParam(c))
	return respond(c, mutationResponse("evse", res))
}

func (h *LocationsHandler) DeleteEVSE(c *fiber.Ctx) error {
	res := h.store.RemoveEVSE(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")))
	return respond(c, mutationResponse("evse", res))
}

func (h *LocationsHandler) GetConnector(c *fiber.Ctx) error {
	conn, ok := h.store.GetConnector(partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")),
		domain.ConnectorID(c.Params("connector_id")))
	if !ok {
		return respond(c, ocpi.Failure(ocpi.StatusUnknownLocation, "connector not found"))
	}
	return respond(c, ocpi.Success(conn))
}

func (h *LocationsHandler) PutConnector(c *fiber.Ctx) error {
	var conn domain.Connector
	if err := c.BodyParser(&conn); err != nil {
		return respond(c, ocpi.Failure(ocpi.StatusInvalidParameters, "malformed connector body"))
	}
	conn.ID = domain.ConnectorID(c.Params("connector_id"))

	res := h.store.AddOrUpdateConnector(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")),
		conn, allowDowngradesParam(c))
	return respond(c, mutationResponse("connector", res))
}

func (h *LocationsHandler) PatchConnector(c *fiber.Ctx) error {
	res := h.store.PatchConnector(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")),
		domain.ConnectorID(c.Params("connector_id")), c.Body(), allowDowngradesParam(c))
	return respond(c, mutationResponse("connector", res))
}

func (h *LocationsHandler) DeleteConnector(c *fiber.Ctx) error {
	res := h.store.RemoveConnector(c.UserContext(), partyKeyParams(c),
		domain.LocationID(c.Params("location_id")), domain.EVSEUID(c.Params("evse_uid")),
		domain.ConnectorID(c.Params("connector_id")))
	return respond(c, mutationResponse("connector", res))
}
