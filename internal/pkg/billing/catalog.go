package billing

import (
	"fmt"
	"strings"

	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

const catalogCurrency = "usd"

// Plan is a purchasable tier. Values returned by Catalog are copies.
type Plan struct {
	Tier            entitlements.Tier `json:"tier"`
	DisplayName     string            `json:"name"`
	PriceMinorUnits int64             `json:"price"`
	Currency        string            `json:"currency"`
	Features        []string          `json:"features"`
}

// MajorUnits renders the price with exactly two decimals ("9.99").
func (p Plan) MajorUnits() string {
	return fmt.Sprintf("%d.%02d", p.PriceMinorUnits/100, p.PriceMinorUnits%100)
}

// Description is the feature list as a single line.
func (p Plan) Description() string {
	return strings.Join(p.Features, ", ")
}

func (p Plan) clone() Plan {
	p.Features = append([]string(nil), p.Features...)
	return p
}

// Catalog is the static tier -> plan table.
type Catalog struct {
	plans map[entitlements.Tier]Plan
	order []entitlements.Tier
}

// NewCatalog builds a catalog from plans. Duplicate or unpaid tiers are rejected.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[entitlements.Tier]Plan, len(plans))}
	for _, p := range plans {
		if !p.Tier.IsPaid() {
			return nil, fmt.Errorf("plan %q: tier is not purchasable", p.Tier)
		}
		if _, dup := c.plans[p.Tier]; dup {
			return nil, fmt.Errorf("plan %q: duplicate tier", p.Tier)
		}
		if p.PriceMinorUnits <= 0 {
			return nil, fmt.Errorf("plan %q: price must be positive", p.Tier)
		}
		if p.Currency == "" {
			p.Currency = catalogCurrency
		}
		c.plans[p.Tier] = p.clone()
		c.order = append(c.order, p.Tier)
	}
	return c, nil
}

// DefaultCatalog returns the membership plans sold on the site.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Plan{
			Tier:            entitlements.TierBasic,
			DisplayName:     "Basic Membership",
			PriceMinorUnits: 499,
			Features:        []string{"Private chat room", "Premium badge", "Early access"},
		},
		Plan{
			Tier:            entitlements.TierPremium,
			DisplayName:     "Premium Membership",
			PriceMinorUnits: 999,
			Features:        []string{"All Basic features", "Priority support", "Exclusive content", "Analytics", "Custom themes", "Offline reading"},
		},
		Plan{
			Tier:            entitlements.TierVIP,
			DisplayName:     "VIP Membership",
			PriceMinorUnits: 1999,
			Features:        []string{"All Premium features", "Mentorship program", "Advanced search", "Book club", "Exclusive webinars"},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup resolves a tier name. Unknown names and "none" yield ErrInvalidTier.
func (c *Catalog) Lookup(tier string) (Plan, error) {
	t, ok := entitlements.ParseTier(tier)
	if !ok || !t.IsPaid() {
		return Plan{}, ErrInvalidTier
	}
	p, ok := c.plans[t]
	if !ok {
		return Plan{}, ErrInvalidTier
	}
	return p.clone(), nil
}

// Plans lists all plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, t := range c.order {
		out = append(out, c.plans[t].clone())
	}
	return out
}
