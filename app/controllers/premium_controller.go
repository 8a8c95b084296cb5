package controllers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
	"go.uber.org/zap"

	"github.com/withmywomen/backend/internal/pkg/billing"
	"github.com/withmywomen/backend/internal/pkg/paymentreturn"
	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

type ReturnHandler interface {
	Handle(ctx context.Context, userID uint, requestURL string) (paymentreturn.Result, error)
}

type PlanLister interface {
	Plans() []billing.Plan
}

// PremiumController serves the membership page the payment providers send
// the buyer back to.
type PremiumController struct {
	returns ReturnHandler
	users   UserFinder
	plans   PlanLister
	logger  *zap.Logger
	now     func() time.Time
}

func NewPremiumController(returns ReturnHandler, users UserFinder, plans PlanLister, logger *zap.Logger) *PremiumController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PremiumController{returns: returns, users: users, plans: plans, logger: logger, now: time.Now}
}

type premiumPlanView struct {
	Tier     string
	Name     string
	Price    string
	Features []string
	Current  bool
}

// HandlePremium finishes a provider return and redirects to the cleaned URL
// with 303, so reloading the page cannot submit the capture twice. Without
// return markers it renders the plans.
func (pc *PremiumController) HandlePremium(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	raw := c.OriginalURL()

	u, err := url.Parse(raw)
	if err != nil {
		return c.Redirect("/premium", fiber.StatusSeeOther)
	}
	if paymentreturn.HasMarkers(u.Query()) {
		ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
		defer cancel()

		res, err := pc.returns.Handle(ctx, uc.UserID, raw)
		if err != nil {
			pc.logger.Warn("payment return failed", zap.String("url", raw), zap.Error(err))
			return c.Redirect("/premium", fiber.StatusSeeOther)
		}
		switch {
		case res.Message == "":
		case res.Success:
			flash.WithSuccess(c, fiber.Map{"type": "success", "message": res.Message})
		default:
			flash.WithError(c, fiber.Map{"type": "error", "message": res.Message})
		}
		return c.Redirect(res.CleanURL, fiber.StatusSeeOther)
	}

	data := fiber.Map{
		"Title":    "Premium Membership",
		"LoggedIn": uc.IsLoggedIn,
		"Flash":    flash.Get(c),
		"Name":     uc.Name,
		"Tier":     "none",
		"State":    "inactive",
		"Active":   false,
	}

	current := ""
	if uc.IsLoggedIn {
		user, err := pc.users.GetUser(c.UserContext(), uc.UserID)
		switch {
		case err == nil:
			now := pc.now()
			ent := user.Entitlement()
			current = string(ent.Tier)
			data["Name"] = user.Name
			data["Tier"] = string(ent.Tier)
			data["State"] = string(ent.State(now))
			data["Active"] = ent.IsActive(now)
			if ent.ExpiresAt != nil {
				data["Expires"] = ent.ExpiresAt.UTC().Format("January 2, 2006")
			}
		case errors.Is(err, billing.ErrUserNotFound):
		default:
			pc.logger.Error("load user for premium page failed", zap.Uint("user_id", uc.UserID), zap.Error(err))
		}
	}

	plans := pc.plans.Plans()
	views := make([]premiumPlanView, 0, len(plans))
	for _, p := range plans {
		views = append(views, premiumPlanView{
			Tier:     string(p.Tier),
			Name:     p.DisplayName,
			Price:    p.MajorUnits(),
			Features: p.Features,
			Current:  string(p.Tier) == current,
		})
	}
	data["Plans"] = views

	return c.Render("premium", data)
}
