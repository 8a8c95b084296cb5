package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/withmywomen/backend/internal/pkg/env"
)

const (
	PayPalSandboxBase = "https://api-m.sandbox.paypal.com"
	PayPalLiveBase    = "https://api-m.paypal.com"

	// stripePlaceholderKey is what the old .env.example shipped with.
	stripePlaceholderKey = "sk_test_placeholder"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Payments PaymentsConfig
	LogLevel string
}

type AppConfig struct {
	Host          string
	Port          string
	Env           string
	PublicBaseURL string
	RateLimit     int
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN returns the go-sql-driver/mysql data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
}

func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// PaymentsConfig holds provider settings. A nil provider config means the
// provider is disabled; the rest of the application keeps working.
type PaymentsConfig struct {
	PublicBaseURL   string
	ProviderTimeout time.Duration
	Stripe          *StripeConfig
	PayPal          *PayPalConfig
	// Warnings lists half-configured providers that were disabled.
	Warnings []string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIBaseURL overrides the Stripe API endpoint; empty means the default.
	APIBaseURL string
}

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	// WebhookID enables webhook signature verification when set.
	WebhookID string
}

// Load reads the whole configuration from the environment and reports every
// invalid value at once.
func Load() (*Config, error) {
	var result *multierror.Error

	cfg := &Config{
		LogLevel: env.GetEnv("LOG_LEVEL", "info"),
		App: AppConfig{
			Host: env.GetEnv("APP_HOST", "localhost"),
			Port: env.GetEnv("APP_PORT", "4000"),
			Env:  env.GetEnv("APP_ENV", "prod"),
		},
		Database: LoadDatabase(),
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
	}

	baseURL := env.GetEnv("PUBLIC_BASE_URL", env.GetEnv("CLIENT_URL", "http://localhost:"+cfg.App.Port))
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("PUBLIC_BASE_URL %q is not an absolute URL", baseURL))
	}
	cfg.App.PublicBaseURL = baseURL

	var err error
	if cfg.App.RateLimit, err = strconv.Atoi(env.GetEnv("API_RATE_LIMIT", "120")); err != nil || cfg.App.RateLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("API_RATE_LIMIT must be a positive integer"))
	}
	if cfg.Cache.Port, err = strconv.Atoi(env.GetEnv("CACHE_PORT", "6379")); err != nil {
		result = multierror.Append(result, fmt.Errorf("CACHE_PORT: %w", err))
	}

	cfg.Auth.JWTSecret = env.GetEnv("JWT_SECRET", "")
	if cfg.Auth.JWTSecret == "" {
		if cfg.App.Env == "dev" {
			cfg.Auth.JWTSecret = "dev-only-insecure-secret"
		} else {
			result = multierror.Append(result, fmt.Errorf("JWT_SECRET is required outside dev"))
		}
	}
	if cfg.Auth.TokenTTL, err = time.ParseDuration(env.GetEnv("JWT_TTL", "168h")); err != nil || cfg.Auth.TokenTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("JWT_TTL must be a positive duration"))
	}

	payments, err := loadPayments(baseURL)
	if err != nil {
		result = multierror.Append(result, err)
	}
	cfg.Payments = payments

	return cfg, result.ErrorOrNil()
}

// LoadDatabase reads only the DB_* keys, for tools that do not need the rest.
func LoadDatabase() DatabaseConfig {
	return DatabaseConfig{
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", "3306"),
		Name:     env.GetEnv("DB_NAME", ""),
	}
}

func loadPayments(baseURL string) (PaymentsConfig, error) {
	var result *multierror.Error
	pc := PaymentsConfig{PublicBaseURL: baseURL}

	timeout, err := time.ParseDuration(env.GetEnv("PAYMENT_PROVIDER_TIMEOUT", "15s"))
	if err != nil || timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("PAYMENT_PROVIDER_TIMEOUT must be a positive duration"))
		timeout = 15 * time.Second
	}
	pc.ProviderTimeout = timeout

	stripeKey := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	stripeWebhook := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	switch {
	case stripeKey != "" && stripeKey != stripePlaceholderKey:
		pc.Stripe = &StripeConfig{
			SecretKey:     stripeKey,
			WebhookSecret: stripeWebhook,
			APIBaseURL:    strings.TrimRight(env.GetEnv("STRIPE_API_BASE", ""), "/"),
		}
		if stripeWebhook == "" {
			pc.Warnings = append(pc.Warnings, "STRIPE_WEBHOOK_SECRET is empty; card webhooks will be rejected")
		}
	case stripeWebhook != "":
		pc.Warnings = append(pc.Warnings, "STRIPE_WEBHOOK_SECRET set without STRIPE_SECRET_KEY; Stripe disabled")
	}

	clientID := strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", ""))
	clientSecret := strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", ""))
	switch {
	case clientID != "" && clientSecret != "":
		base, err := paypalBase(env.GetEnv("PAYPAL_MODE", "sandbox"), env.GetEnv("PAYPAL_API_BASE", ""))
		if err != nil {
			result = multierror.Append(result, err)
			break
		}
		pc.PayPal = &PayPalConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			BaseURL:      base,
			WebhookID:    strings.TrimSpace(env.GetEnv("PAYPAL_WEBHOOK_ID", "")),
		}
	case clientID != "" || clientSecret != "":
		pc.Warnings = append(pc.Warnings, "only one of PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET is set; PayPal disabled")
	}

	return pc, result.ErrorOrNil()
}

func paypalBase(mode, override string) (string, error) {
	if o := strings.TrimRight(strings.TrimSpace(override), "/"); o != "" {
		return o, nil
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "sandbox":
		return PayPalSandboxBase, nil
	case "live":
		return PayPalLiveBase, nil
	default:
		return "", fmt.Errorf("PAYPAL_MODE must be sandbox or live, got %q", mode)
	}
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}
