package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/withmywomen/backend/app/controllers"
	"github.com/withmywomen/backend/app/repository"
	"github.com/withmywomen/backend/docs"
	"github.com/withmywomen/backend/internal/pkg/authtoken"
	"github.com/withmywomen/backend/internal/pkg/billing"
	"github.com/withmywomen/backend/internal/pkg/cache"
	"github.com/withmywomen/backend/internal/pkg/config"
	"github.com/withmywomen/backend/internal/pkg/database"
	"github.com/withmywomen/backend/internal/pkg/env"
	"github.com/withmywomen/backend/internal/pkg/logging"
	"github.com/withmywomen/backend/internal/pkg/paymentreturn"
	"github.com/withmywomen/backend/internal/pkg/ratelimit"
	"github.com/withmywomen/backend/internal/pkg/router"
	"github.com/withmywomen/backend/views"
)

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logging.Setup(zl)()
	defer func() { _ = zl.Sync() }()

	app := NewApplication(cfg, zl)
	err = app.Listen(fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port))
	log.Fatal(err)
}

func NewApplication(cfg *config.Config, zl *zap.Logger) *fiber.App {
	for _, w := range cfg.Payments.Warnings {
		zl.Warn("payment configuration", zap.String("warning", w))
	}

	database.SetupDatabase(cfg.Database, cfg.IsDev())
	redisClient := cache.SetupCache(cfg.Cache)
	db := database.GetDB()

	repository.InitializeFactory(db)
	repos := repository.GetGlobalFactory().GetRepositories()

	// billing
	billingRepo := billing.NewRepository(db)
	card := billing.NewCardProvider(cfg.Payments.Stripe, cfg.Payments.ProviderTimeout, zl)
	wallet := billing.NewWalletProvider(cfg.Payments.PayPal, cfg.Payments.ProviderTimeout, zl)
	// The redis locker falls back to in-process locks on its own; the limiter
	// storage cannot be created without a reachable server.
	locker := billing.NewRedisLocker(redisClient, zl)
	limiterClient := redisClient
	if !cacheReachable(redisClient) {
		zl.Warn("redis unavailable, rate limits are per process")
		limiterClient = nil
	}
	reconciler := billing.NewReconciler(billingRepo, wallet, locker, zl)
	checkout := billing.NewCheckout(billing.DefaultCatalog(), billingRepo, card, wallet, cfg.Payments.PublicBaseURL)
	service := billing.NewService(billingRepo, card, wallet, reconciler, zl)
	zl.Info("payment providers",
		zap.Bool("stripe", card.Configured()),
		zap.Bool("paypal", wallet.Configured()))

	openAPI, err := docs.Load(context.Background())
	if err != nil {
		zl.Error("openapi document invalid", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		Views:     views.NewEngine(),
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), requestid.New(), logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// SWAGGER / OPENAPI
	if _, err := os.Stat(docs.Path); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: docs.Path,
			Path:     "v1",
		}))
	} else {
		zl.Warn("swagger ui disabled", zap.String("file", docs.Path), zap.Error(err))
	}

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Logger:         zl,
		Tokens:         authtoken.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Users:          userStore{UserRepository: repos.User, UserFinder: billingRepo},
		Posts:          repos.Post,
		Comments:       repos.Comment,
		Checkout:       checkout,
		Reconciler:     reconciler,
		Webhooks:       service,
		Returns:        paymentreturn.NewHandler(reconciler, billingRepo, zl),
		OpenAPI:        openAPI,
		LimiterStorage: ratelimit.NewStorage(limiterClient),
		RateLimit:      cfg.App.RateLimit,
		SecureCookie:   !cfg.IsDev(),
		CORSOrigins:    cfg.App.PublicBaseURL,
	})

	return app
}

// userStore joins the account repository with the billing user lookup.
type userStore struct {
	repository.UserRepository
	controllers.UserFinder
}

func cacheReachable(client *redis.Client) bool {
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}
