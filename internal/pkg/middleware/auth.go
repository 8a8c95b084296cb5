package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/billing"
	"github.com/withmywomen/backend/internal/pkg/entitlements"
	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

// RequireAPIAuth rejects anonymous API calls with a JSON 401.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "No token, authorization denied",
		})
	}
	return c.Next()
}

// UserFinder loads the stored user for a request.
type UserFinder interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// RequireActiveEntitlement lets only members with a currently active paid
// tier through. Expiry is evaluated against the clock on every request.
func RequireActiveEntitlement(users UserFinder, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		if !uc.IsLoggedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "No token, authorization denied",
			})
		}

		user, err := users.GetUser(c.UserContext(), uc.UserID)
		if err != nil {
			if errors.Is(err, billing.ErrUserNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error":   "unauthorized",
					"message": "User not found",
				})
			}
			logger.Error("entitlement check failed", zap.Uint("user_id", uc.UserID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
		}

		if !user.Entitlement().Allows(entitlements.TierBasic, time.Now()) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "An active premium membership is required",
			})
		}
		return c.Next()
	}
}
