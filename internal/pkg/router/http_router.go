package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/withmywomen/backend/app/controllers"
	"github.com/withmywomen/backend/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(h.deps.Tokens))

	h.registerPublicRoutes(app)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	premium := controllers.NewPremiumController(h.deps.Returns, h.deps.Users, h.deps.Checkout, h.deps.Logger)

	// Stripe and PayPal send the buyer back here.
	app.Get("/premium", premium.HandlePremium)
}
