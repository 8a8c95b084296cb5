// Package ratelimit throttles the JSON API per user, or per IP for
// anonymous callers.
package ratelimit

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

// limiterDatabase keeps limiter counters apart from the cache (DB 0).
const limiterDatabase = 1

// NewStorage returns redis-backed limiter storage on the same server as
// client. A nil client yields nil, which makes the limiter count in memory.
func NewStorage(client *redis.Client) fiber.Storage {
	if client == nil {
		return nil
	}
	opts := client.Options()
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

// Config for New. Max defaults to 120 requests per Window (one minute).
type Config struct {
	Max     int
	Window  time.Duration
	Storage fiber.Storage
	// SkipPrefixes are path prefixes that are never limited.
	SkipPrefixes []string
}

// New returns the limiter middleware.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 120
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    cfg.Storage,
		Next: func(c *fiber.Ctx) bool {
			for _, p := range cfg.SkipPrefixes {
				if strings.HasPrefix(c.Path(), p) {
					return true
				}
			}
			return false
		},
		KeyGenerator: Key,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, please try again later",
			})
		},
	})
}

// Key identifies the caller: the user id when logged in, the IP otherwise.
func Key(c *fiber.Ctx) string {
	if id := usercontext.GetUserID(c); id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.IP()
}
