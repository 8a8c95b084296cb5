package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/config"
)

const (
	stripeEventCheckoutCompleted   = "checkout.session.completed"
	stripeEventInvoicePaid         = "invoice.payment_succeeded"
	stripeEventSubscriptionDeleted = "customer.subscription.deleted"
)

// ReturnURLs are the browser destinations after a hosted checkout.
type ReturnURLs struct {
	Success string
	Cancel  string
}

// CardCustomer identifies the buyer towards the card provider.
type CardCustomer struct {
	UserID uint
	Email  string
}

// CardSession is a created hosted checkout session.
type CardSession struct {
	ID  string
	URL string
}

// CardProvider talks to Stripe Checkout. A nil *CardProvider or one built
// from a nil config reports itself as not configured.
type CardProvider struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewCardProvider returns nil when cfg is nil.
func NewCardProvider(cfg *config.StripeConfig, timeout time.Duration, logger *zap.Logger) *CardProvider {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     logger.Named("stripe").Sugar(),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(cfg.APIBaseURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	return &CardProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

func (p *CardProvider) Configured() bool {
	return p != nil && p.api != nil
}

// CreateSession opens a one-off card payment for plan. The correlation is
// stored as session metadata so the webhook can recover it.
func (p *CardProvider) CreateSession(ctx context.Context, customer CardCustomer, plan Plan, urls ReturnURLs) (*CardSession, error) {
	if !p.Configured() {
		return nil, stripeNotConfigured()
	}

	metadata, err := Correlation{UserID: customer.UserID, Tier: plan.Tier}.Metadata()
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{string(stripe.PaymentMethodTypeCard)}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(plan.Currency),
					UnitAmount: stripe.Int64(plan.PriceMinorUnits),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(plan.DisplayName),
						Description: stripe.String(plan.Description()),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(urls.Success),
		CancelURL:  stripe.String(urls.Cancel),
	}
	if email := strings.TrimSpace(customer.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, p.classify(err)
	}
	return &CardSession{ID: sess.ID, URL: sess.URL}, nil
}

// classify splits Stripe API rejections from transport failures.
func (p *CardProvider) classify(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		p.logger.Error("stripe api error",
			zap.String("type", string(stripeErr.Type)),
			zap.String("code", string(stripeErr.Code)),
			zap.Int("status", stripeErr.HTTPStatusCode),
			zap.String("message", stripeErr.Msg))
		return fmt.Errorf("%w: stripe: %s", ErrUpstream, stripeErr.Msg)
	}
	p.logger.Error("stripe unreachable", zap.Error(err))
	return providerUnreachable(models.BillingProviderStripe, "Stripe", err)
}

// ParseWebhook verifies and decodes a Stripe delivery into an Event.
func (p *CardProvider) ParseWebhook(payload []byte, signatureHeader string) (Event, error) {
	if !p.Configured() || strings.TrimSpace(p.webhookSecret) == "" {
		return nil, stripeWebhookNotConfigured()
	}

	ev, err := verifyCardEvent(payload, signatureHeader, p.webhookSecret)
	if err != nil {
		return nil, err
	}
	return decodeCardEvent(ev), nil
}

func decodeCardEvent(ev stripe.Event) Event {
	env := Envelope{Provider: models.BillingProviderStripe, ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return Malformed{Envelope: env, Reason: errors.New("event has no data object")}
	}

	switch env.Type {
	case stripeEventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return Malformed{Envelope: env, Reason: err}
		}
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return Unhandled{Envelope: env}
		}
		corr, err := CorrelationFromMetadata(sess.Metadata)
		if err != nil {
			return Malformed{Envelope: env, Reason: err}
		}
		out := PaymentCompleted{
			Envelope:      env,
			PaymentID:     sess.ID,
			Correlation:   corr,
			CustomerEmail: sess.CustomerEmail,
		}
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		if out.CustomerEmail == "" && sess.CustomerDetails != nil {
			out.CustomerEmail = sess.CustomerDetails.Email
		}
		return out

	case stripeEventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return Malformed{Envelope: env, Reason: err}
		}
		if inv.Customer == nil || inv.Customer.ID == "" {
			return Malformed{Envelope: env, Reason: errors.New("invoice without customer")}
		}
		return RenewalPaid{Envelope: env, InvoiceID: inv.ID, CustomerID: inv.Customer.ID}

	case stripeEventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return Malformed{Envelope: env, Reason: err}
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			return Malformed{Envelope: env, Reason: errors.New("subscription without customer")}
		}
		return SubscriptionCancelled{Envelope: env, CustomerID: sub.Customer.ID}

	default:
		return Unhandled{Envelope: env}
	}
}
