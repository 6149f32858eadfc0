package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/observability/telemetry"
	"github.com/emobix/ocpi-node/internal/ocpi"
)

// respond writes an OCPI envelope with the HTTP status derived from its
// status code.
func respond(c *fiber.Ctx, resp ocpi.Response) error {
	return c.Status(ocpi.HTTPStatus(resp.StatusCode)).JSON(resp)
}

// allow sets the verb advertisement headers. OCPI nodes enumerate the verbs
// valid for the current registration state on every response.
func allow(c *fiber.Ctx, methods ...string) {
	joined := strings.Join(methods, ", ")
	c.Set("Allow", joined)
	c.Set("Access-Control-Allow-Methods", joined)
	c.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
}

// partyKeyParams reads the {country_code}/{party_id} path segments.
func partyKeyParams(c *fiber.Ctx) domain.PartyKey {
	return domain.NewPartyKey(c.Params("country_code"), c.Params("party_id"))
}

// allowDowngradesParam reads the optional per-call downgrade override.
func allowDowngradesParam(c *fiber.Ctx) *bool {
	raw := c.Query("allow_downgrades")
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// mutationResponse translates a store result into an OCPI envelope and
// counts it.
func mutationResponse[T any](kind string, res domain.Result[T]) ocpi.Response {
	telemetry.EntityMutationsTotal.WithLabelValues(kind, string(res.Outcome)).Inc()
	if res.OK() {
		return ocpi.Success(res.Value)
	}
	code := ocpi.StatusGenericClientError
	if errors.Is(res.Err, domain.ErrNotFound) {
		code = ocpi.StatusUnknownLocation
	}
	return ocpi.Failure(code, res.Reason)
}
