package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/authtoken"
	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

// TokenParser verifies session tokens.
type TokenParser interface {
	Parse(raw string) (authtoken.Claims, error)
}

// UserContextMiddleware sets up the user context for every request. A missing
// or invalid token leaves the request anonymous; the Require* handlers decide
// what anonymous callers may do.
func UserContextMiddleware(tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractToken(c)
		if raw == "" {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     claims.UserID,
			Name:       claims.Name,
			Role:       claims.Role,
			IsLoggedIn: true,
			IsAdmin:    claims.Role == models.ROLE_ADMIN,
		})
		return c.Next()
	}
}
