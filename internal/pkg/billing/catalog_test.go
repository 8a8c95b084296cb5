package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

func TestCatalogLookup(t *testing.T) {
	c := DefaultCatalog()

	p, err := c.Lookup("Premium")
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierPremium, p.Tier)
	assert.Equal(t, "Premium Membership", p.DisplayName)
	assert.Equal(t, int64(999), p.PriceMinorUnits)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, "9.99", p.MajorUnits())

	for _, tier := range []string{"", "none", "gold", "basic_vip"} {
		_, err := c.Lookup(tier)
		assert.ErrorIs(t, err, ErrInvalidTier, "tier %q", tier)
	}
}

func TestCatalogPlansAreCopies(t *testing.T) {
	c := DefaultCatalog()

	plans := c.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, []entitlements.Tier{entitlements.TierBasic, entitlements.TierPremium, entitlements.TierVIP},
		[]entitlements.Tier{plans[0].Tier, plans[1].Tier, plans[2].Tier})

	plans[0].Features[0] = "changed"
	again, err := c.Lookup("basic")
	require.NoError(t, err)
	assert.Equal(t, "Private chat room", again.Features[0])
}

func TestPlanMajorUnits(t *testing.T) {
	tests := map[int64]string{499: "4.99", 1999: "19.99", 100: "1.00", 5: "0.05"}
	for minor, want := range tests {
		assert.Equal(t, want, Plan{PriceMinorUnits: minor}.MajorUnits())
	}
}

func TestNewCatalogRejectsBadPlans(t *testing.T) {
	_, err := NewCatalog(Plan{Tier: entitlements.TierNone, PriceMinorUnits: 1})
	assert.Error(t, err)

	_, err = NewCatalog(
		Plan{Tier: entitlements.TierVIP, PriceMinorUnits: 1},
		Plan{Tier: entitlements.TierVIP, PriceMinorUnits: 2},
	)
	assert.Error(t, err)

	_, err = NewCatalog(Plan{Tier: entitlements.TierBasic})
	assert.Error(t, err)
}
