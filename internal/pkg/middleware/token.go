package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

// extractToken looks for the session token in the Authorization header, the
// x-auth-token header and the token cookie, in that order.
func extractToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if tok := strings.TrimSpace(c.Get(usercontext.KeyAuthHeader)); tok != "" {
		return tok
	}
	return strings.TrimSpace(c.Cookies(usercontext.KeyTokenCookie))
}
