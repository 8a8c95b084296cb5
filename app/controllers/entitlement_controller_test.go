package controllers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/billing"
	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

type recordingTiers struct {
	users  *memUsers
	tier   entitlements.Tier
	method string
}

func (r *recordingTiers) ChangeTier(ctx context.Context, userID uint, tier entitlements.Tier, method string) (*models.User, error) {
	r.tier, r.method = tier, method
	if _, ok := billing.ParseMethod(method); !ok {
		return nil, billing.ErrInvalidMethod
	}
	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ent := entitlements.Entitlement{Tier: tier}
	if tier.IsPaid() {
		exp := time.Now().AddDate(0, 1, 0)
		ent.ExpiresAt = &exp
	}
	u.SetEntitlement(ent)
	return u, nil
}

func newEntitlementApp(users *memUsers, tiers TierChanger, userID uint) *fiber.App {
	ec := NewEntitlementController(users, tiers, nil)
	app := fiber.New()
	app.Use(asUser(userID))
	app.Get("/entitlement", ec.HandleStatus)
	app.Put("/entitlement/upgrade", ec.HandleUpgrade)
	return app
}

func TestUpgradeDefaults(t *testing.T) {
	users := newMemUsers(&models.User{ID: 1, Name: "Ada", PremiumTier: "none"})
	tiers := &recordingTiers{users: users}
	app := newEntitlementApp(users, tiers, 1)

	resp, body := doJSON(t, app, "PUT", "/entitlement/upgrade", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, entitlements.TierPremium, tiers.tier)
	assert.Equal(t, billing.MethodCard, tiers.method)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "premium", out["premiumTier"])
	assert.Equal(t, true, out["isPremium"])
}

func TestUpgradeRejectsBadInput(t *testing.T) {
	users := newMemUsers(&models.User{ID: 1, PremiumTier: "none"})
	app := newEntitlementApp(users, &recordingTiers{users: users}, 1)

	resp, body := doJSON(t, app, "PUT", "/entitlement/upgrade", `{"tier":"gold"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Invalid subscription tier")

	resp, body = doJSON(t, app, "PUT", "/entitlement/upgrade", `{"tier":"vip","method":"cash"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Invalid payment method")
}

func TestUpgradeToNoneRevokes(t *testing.T) {
	future := time.Now().Add(time.Hour)
	users := newMemUsers(&models.User{ID: 1, PremiumTier: "vip", IsPremium: true, PremiumExpires: &future})
	tiers := &recordingTiers{users: users}
	app := newEntitlementApp(users, tiers, 1)

	resp, body := doJSON(t, app, "PUT", "/entitlement/upgrade", `{"tier":"none","method":"paypal"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, entitlements.TierNone, tiers.tier)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, false, out["isPremium"])
	assert.Nil(t, out["premiumExpires"])
}

func TestEntitlementStatus(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)
	users := newMemUsers(&models.User{ID: 2, PremiumTier: "basic", IsPremium: true, PremiumExpires: &future})
	app := newEntitlementApp(users, nil, 2)

	resp, body := doJSON(t, app, "GET", "/entitlement", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "basic", out["tier"])
	assert.Equal(t, "active", out["state"])
	assert.Equal(t, true, out["active"])

	app = newEntitlementApp(users, nil, 99)
	resp, _ = doJSON(t, app, "GET", "/entitlement", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
