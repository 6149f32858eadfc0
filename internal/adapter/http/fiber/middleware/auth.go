package middleware

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emobix/ocpi-node/internal/observability/telemetry"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/registry"
)

const authLocalsKey = "ocpi_auth"

// ExtractToken pulls the OCPI access token out of the Authorization header.
// OCPI 2.2.1 base64-encodes the token on the wire; older peers send it raw,
// so decoding falls back to the literal value.
func ExtractToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Token") {
		return ""
	}
	raw := strings.TrimSpace(parts[1])
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) > 0 {
		return string(decoded)
	}
	return raw
}

// Authenticate resolves the presented access token against the registry and
// stores the match in locals. Anonymous requests pass through with no match;
// handlers that require authentication use RequireAuth or read the match.
func Authenticate(reg *registry.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c)
		if token == "" {
			return c.Next()
		}
		matches := reg.TryGetRemoteParties(token)
		if len(matches) == 0 {
			telemetry.AuthFailuresTotal.Inc()
			return c.Status(fiber.StatusForbidden).
				JSON(ocpi.Failure(ocpi.StatusGenericClientError, "invalid or blocked access token"))
		}
		c.Locals(authLocalsKey, &matches[0])
		return c.Next()
	}
}

// RequireAuth rejects requests that did not authenticate.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Auth(c) == nil {
			telemetry.AuthFailuresTotal.Inc()
			return c.Status(fiber.StatusForbidden).
				JSON(ocpi.Failure(ocpi.StatusGenericClientError, "authentication required"))
		}
		return c.Next()
	}
}

// Auth returns the authenticated match, or nil for anonymous callers.
func Auth(c *fiber.Ctx) *registry.Match {
	match, _ := c.Locals(authLocalsKey).(*registry.Match)
	return match
}
