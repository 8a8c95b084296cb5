package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/withmywomen/backend/app/controllers"
	apiv1 "github.com/withmywomen/backend/internal/api/v1"
	"github.com/withmywomen/backend/internal/pkg/middleware"
	"github.com/withmywomen/backend/internal/pkg/ratelimit"
)

// webhookPrefix is exempt from rate limiting; providers retry on 429.
const webhookPrefix = "/api/payments/"

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	d := h.deps
	api := app.Group("/api",
		cors.New(cors.Config{AllowOrigins: corsOrigins(d.CORSOrigins), AllowCredentials: d.CORSOrigins != ""}),
		ratelimit.New(ratelimit.Config{
			Max:     d.RateLimit,
			Storage: d.LimiterStorage,
			SkipPrefixes: []string{
				webhookPrefix + "card-webhook",
				webhookPrefix + "wallet-webhook",
			},
		}),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	auth := controllers.NewAuthController(d.Users, d.Tokens, d.SecureCookie, d.Logger)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", auth.HandleRegister)
	authGroup.Post("/login", auth.HandleLogin)
	authGroup.Get("/me", middleware.RequireAPIAuth, auth.HandleMe)
	authGroup.Post("/logout", middleware.RequireAPIAuth, auth.HandleLogout)

	entitlement := controllers.NewEntitlementController(d.Users, d.Reconciler, d.Logger)
	api.Get("/entitlement", middleware.RequireAPIAuth, entitlement.HandleStatus)
	api.Put("/entitlement/upgrade", middleware.RequireAPIAuth, entitlement.HandleUpgrade)

	payments := controllers.NewPaymentController(d.Checkout, d.Reconciler, d.Webhooks, d.Logger)
	pay := api.Group("/payments")
	pay.Get("/plans", payments.HandlePlans)
	pay.Post("/checkout-session", middleware.RequireAPIAuth, payments.HandleCheckoutSession)
	pay.Post("/wallet-order", middleware.RequireAPIAuth, payments.HandleWalletOrder)
	pay.Post("/capture-wallet-order", payments.HandleCaptureWalletOrder)
	pay.Post("/card-webhook", payments.HandleCardWebhook)
	pay.Post("/wallet-webhook", payments.HandleWalletWebhook)

	posts := controllers.NewPostController(d.Posts, d.Comments, d.Logger)
	blogs := api.Group("/blogs")
	blogs.Get("/", posts.HandleList)
	blogs.Get("/:id", posts.HandleGet)
	blogs.Post("/", middleware.RequireAPIAuth, posts.HandleCreate)
	blogs.Put("/:id", middleware.RequireAPIAuth, posts.HandleUpdate)
	blogs.Delete("/:id", middleware.RequireAPIAuth, posts.HandleDelete)
	blogs.Put("/:id/like", middleware.RequireAPIAuth, posts.HandleToggleLike)
	blogs.Post("/:id/comments", middleware.RequireAPIAuth, posts.HandleCreateComment)
	api.Delete("/comments/:id", middleware.RequireAPIAuth, posts.HandleDeleteComment)

	chat := controllers.NewChatController()
	api.Post("/chat", middleware.RequireActiveEntitlement(d.Users, d.Logger), chat.HandleMessage)

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer(d.OpenAPI))
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func corsOrigins(origins string) string {
	if origins == "" {
		return "*"
	}
	return origins
}
