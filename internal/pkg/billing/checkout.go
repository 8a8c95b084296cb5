package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/withmywomen/backend/app/models"
)

const (
	MethodCard   = models.BillingProviderStripe
	MethodWallet = models.BillingProviderPayPal
)

// ParseMethod maps a request value to a payment method; empty means card.
func ParseMethod(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", MethodCard:
		return MethodCard, true
	case MethodWallet:
		return MethodWallet, true
	default:
		return "", false
	}
}

type CheckoutRequest struct {
	UserID uint
	Tier   string
	Method string
}

// CheckoutSession is where the browser has to go to pay.
type CheckoutSession struct {
	Method      string
	ExternalID  string
	RedirectURL string
}

// Checkout starts provider payments. It never writes entitlement state; that
// only happens once the Reconciler sees a confirmed payment.
type Checkout struct {
	catalog *Catalog
	users   Repository
	card    *CardProvider
	wallet  *WalletProvider
	baseURL string
}

func NewCheckout(catalog *Catalog, users Repository, card *CardProvider, wallet *WalletProvider, baseURL string) *Checkout {
	return &Checkout{
		catalog: catalog,
		users:   users,
		card:    card,
		wallet:  wallet,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CardReturnURLs are the Stripe success/cancel targets. Stripe substitutes
// {CHECKOUT_SESSION_ID} itself.
func (c *Checkout) CardReturnURLs() ReturnURLs {
	return ReturnURLs{
		Success: c.baseURL + "/premium?success=true&session_id={CHECKOUT_SESSION_ID}",
		Cancel:  c.baseURL + "/premium?canceled=true",
	}
}

// WalletReturnURLs are the PayPal targets. PayPal appends token=<orderId>
// and PayerID on return.
func (c *Checkout) WalletReturnURLs() ReturnURLs {
	return ReturnURLs{
		Success: c.baseURL + "/premium?success=true",
		Cancel:  c.baseURL + "/premium?canceled=true",
	}
}

func (c *Checkout) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	plan, err := c.catalog.Lookup(req.Tier)
	if err != nil {
		return nil, err
	}
	method, ok := ParseMethod(req.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, req.Method)
	}

	switch method {
	case MethodWallet:
		if !c.wallet.Configured() {
			return nil, paypalNotConfigured()
		}
		order, err := c.wallet.CreateOrder(ctx, Correlation{UserID: req.UserID, Tier: plan.Tier}, plan, c.WalletReturnURLs())
		if err != nil {
			return nil, err
		}
		return &CheckoutSession{Method: MethodWallet, ExternalID: order.ID, RedirectURL: order.ApprovalURL}, nil

	default:
		if !c.card.Configured() {
			return nil, stripeNotConfigured()
		}
		user, err := c.users.GetUser(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		sess, err := c.card.CreateSession(ctx, CardCustomer{UserID: user.ID, Email: user.Email}, plan, c.CardReturnURLs())
		if err != nil {
			return nil, err
		}
		return &CheckoutSession{Method: MethodCard, ExternalID: sess.ID, RedirectURL: sess.URL}, nil
	}
}

// Plans exposes the catalog for listing.
func (c *Checkout) Plans() []Plan {
	return c.catalog.Plans()
}
