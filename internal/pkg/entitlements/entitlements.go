package entitlements

import (
	"strings"
	"time"
)

type Tier string

const (
	TierNone    Tier = "none"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// PaidTiers lists the purchasable tiers in ascending order.
var PaidTiers = []Tier{TierBasic, TierPremium, TierVIP}

// ParseTier normalizes a tier name. Empty input maps to TierNone.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TierNone:
		return TierNone, true
	case TierBasic, TierPremium, TierVIP:
		return t, true
	default:
		return TierNone, false
	}
}

// IsPaid reports whether the tier is one of the purchasable tiers.
func (t Tier) IsPaid() bool {
	switch t {
	case TierBasic, TierPremium, TierVIP:
		return true
	default:
		return false
	}
}

// Rank orders tiers for feature gating.
func (t Tier) Rank() int {
	switch t {
	case TierVIP:
		return 3
	case TierPremium:
		return 2
	case TierBasic:
		return 1
	default:
		return 0
	}
}

// Entitlement is the premium grant attached to a user. It is a value type;
// persisting it is the caller's job.
type Entitlement struct {
	Tier      Tier
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// IsPremium mirrors the stored is_premium flag: a paid tier is set,
// regardless of expiry.
func (e Entitlement) IsPremium() bool {
	return e.Tier.IsPaid()
}

// IsActive evaluates expiry lazily against now.
func (e Entitlement) IsActive(now time.Time) bool {
	return e.State(now) == StateActive
}

// Allows reports whether an active entitlement covers the given tier.
func (e Entitlement) Allows(min Tier, now time.Time) bool {
	return e.IsActive(now) && e.Tier.Rank() >= min.Rank()
}
