package router

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/withmywomen/backend/app/controllers"
	"github.com/withmywomen/backend/app/repository"
	"github.com/withmywomen/backend/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// TokenManager issues and verifies session tokens.
type TokenManager interface {
	controllers.TokenIssuer
	middleware.TokenParser
}

// Reconciler applies entitlement changes.
type Reconciler interface {
	controllers.OrderCapturer
	controllers.TierChanger
}

// UserStore is the user repository plus the context-aware lookup used by
// the billing layer.
type UserStore interface {
	repository.UserRepository
	controllers.UserFinder
}

// Deps are the services the routes are built from.
type Deps struct {
	Logger     *zap.Logger
	Tokens     TokenManager
	Users      UserStore
	Posts      repository.PostRepository
	Comments   repository.CommentRepository
	Checkout   controllers.SessionCreator
	Reconciler Reconciler
	Webhooks   controllers.WebhookHandler
	Returns    controllers.ReturnHandler
	OpenAPI    *openapi3.T

	// LimiterStorage is nil for in-memory rate limiting.
	LimiterStorage fiber.Storage
	RateLimit      int
	SecureCookie   bool
	CORSOrigins    string
}

func InstallRouter(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	// HttpRouter installs the user context middleware the API routes rely on,
	// so it has to come first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
