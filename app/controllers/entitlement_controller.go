package controllers

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

// TierChanger applies a manual tier change through the reconciler.
type TierChanger interface {
	ChangeTier(ctx context.Context, userID uint, tier entitlements.Tier, method string) (*models.User, error)
}

type UserFinder interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

type EntitlementController struct {
	users  UserFinder
	tiers  TierChanger
	logger *zap.Logger
	now    func() time.Time
}

func NewEntitlementController(users UserFinder, tiers TierChanger, logger *zap.Logger) *EntitlementController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitlementController{users: users, tiers: tiers, logger: logger, now: time.Now}
}

type upgradeRequest struct {
	Tier   string `json:"tier"`
	Method string `json:"method"`
}

// HandleStatus reports the caller's entitlement, evaluated lazily.
func (ec *EntitlementController) HandleStatus(c *fiber.Ctx) error {
	user, err := ec.users.GetUser(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return ec.handleError(c, err)
	}
	now := ec.now()
	ent := user.Entitlement()
	return c.JSON(fiber.Map{
		"tier":      ent.Tier,
		"state":     ent.State(now),
		"active":    ent.IsActive(now),
		"isPremium": ent.IsPremium(),
		"expiresAt": formatTimePtr(ent.ExpiresAt),
	})
}

// HandleUpgrade is the manual tier switch. It defaults to the premium tier
// paid by card.
func (ec *EntitlementController) HandleUpgrade(c *fiber.Ctx) error {
	req := upgradeRequest{Tier: string(entitlements.TierPremium), Method: billing.MethodCard}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	if req.Tier == "" {
		req.Tier = string(entitlements.TierPremium)
	}
	tier, ok := entitlements.ParseTier(req.Tier)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": billing.ErrInvalidTier.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 20*time.Second)
	defer cancel()

	user, err := ec.tiers.ChangeTier(ctx, usercontext.GetUserID(c), tier, req.Method)
	if err != nil {
		return ec.handleError(c, err)
	}
	return c.JSON(userResponse(user, ec.now()))
}

func (ec *EntitlementController) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrInvalidTier), errors.Is(err, billing.ErrInvalidMethod):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": billing.UserMessage(err, "Invalid request")})
	case errors.Is(err, billing.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	default:
		ec.logger.Error("entitlement request failed", zap.Uint("user_id", usercontext.GetUserID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
	}
}
