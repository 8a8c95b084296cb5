package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/config"
)

const (
	walletBrandName = "With My Women"

	walletEventCaptureCompleted      = "PAYMENT.CAPTURE.COMPLETED"
	walletEventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"

	walletStatusCompleted       = "COMPLETED"
	walletIssueAlreadyCaptured  = "ORDER_ALREADY_CAPTURED"
	walletVerificationSucceeded = "SUCCESS"
)

var walletOrderIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ValidateOrderID rejects anything that could not be a PayPal order id.
func ValidateOrderID(orderID string) error {
	if !walletOrderIDPattern.MatchString(orderID) {
		return ErrInvalidOrderID
	}
	return nil
}

// WalletOrder is a created PayPal order awaiting buyer approval.
type WalletOrder struct {
	ID          string
	ApprovalURL string
}

// WalletCapture is the outcome of capturing (or re-reading) an order.
type WalletCapture struct {
	OrderID   string
	Status    string
	CaptureID string
	CustomID  string
	PayerID   string
	PayerMail string
	// Raw is the provider response, returned to the client unchanged.
	Raw json.RawMessage
}

func (c *WalletCapture) Completed() bool {
	return c != nil && c.Status == walletStatusCompleted
}

// WalletProvider talks to PayPal Orders v2.
type WalletProvider struct {
	http      *resty.Client
	webhookID string
	logger    *zap.Logger
}

// NewWalletProvider returns nil when cfg is nil. The client authenticates with
// the client-credentials grant; tokens are cached and refreshed by oauth2.
func NewWalletProvider(cfg *config.PayPalConfig, timeout time.Duration, logger *zap.Logger) *WalletProvider {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})

	rc := resty.NewWithClient(cc.Client(tokenCtx)).
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &WalletProvider{http: rc, webhookID: cfg.WebhookID, logger: logger}
}

func (p *WalletProvider) Configured() bool {
	return p != nil && p.http != nil
}

type walletAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type walletPurchaseUnit struct {
	Amount      *walletAmount `json:"amount,omitempty"`
	Description string        `json:"description,omitempty"`
	CustomID    string        `json:"custom_id,omitempty"`
	Payments    *struct {
		Captures []walletCaptureResource `json:"captures"`
	} `json:"payments,omitempty"`
}

type walletApplicationContext struct {
	BrandName   string `json:"brand_name"`
	LandingPage string `json:"landing_page"`
	UserAction  string `json:"user_action"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
}

type walletCreateOrderRequest struct {
	Intent             string                   `json:"intent"`
	PurchaseUnits      []walletPurchaseUnit     `json:"purchase_units"`
	ApplicationContext walletApplicationContext `json:"application_context"`
}

type walletLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type walletOrderResponse struct {
	ID            string               `json:"id"`
	Status        string               `json:"status"`
	Links         []walletLink         `json:"links"`
	PurchaseUnits []walletPurchaseUnit `json:"purchase_units"`
	Payer         *struct {
		PayerID      string `json:"payer_id"`
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

type walletCaptureResource struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
}

type walletErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *walletErrorResponse) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// CreateOrder opens an order for plan. The correlation travels in custom_id.
func (p *WalletProvider) CreateOrder(ctx context.Context, corr Correlation, plan Plan, urls ReturnURLs) (*WalletOrder, error) {
	if !p.Configured() {
		return nil, paypalNotConfigured()
	}
	customID, err := corr.Encode()
	if err != nil {
		return nil, err
	}

	body := walletCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []walletPurchaseUnit{{
			Amount:      &walletAmount{CurrencyCode: strings.ToUpper(plan.Currency), Value: plan.MajorUnits()},
			Description: plan.DisplayName,
			CustomID:    customID,
		}},
		ApplicationContext: walletApplicationContext{
			BrandName:   walletBrandName,
			LandingPage: "LOGIN",
			UserAction:  "PAY_NOW",
			ReturnURL:   urls.Success,
			CancelURL:   urls.Cancel,
		},
	}

	var out walletOrderResponse
	var apiErr walletErrorResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/checkout/orders")
	if err != nil {
		return nil, p.transportError(err)
	}
	if resp.IsError() {
		return nil, p.apiError(resp.StatusCode(), &apiErr)
	}

	for _, l := range out.Links {
		if l.Rel == "approve" {
			return &WalletOrder{ID: out.ID, ApprovalURL: l.Href}, nil
		}
	}
	return nil, fmt.Errorf("%w: paypal order %s has no approve link", ErrUpstream, out.ID)
}

// CaptureOrder captures an approved order. Retries are deduplicated by PayPal
// through a request id derived from the order id; an order captured earlier
// is re-read instead.
func (p *WalletProvider) CaptureOrder(ctx context.Context, orderID string) (*WalletCapture, error) {
	if !p.Configured() {
		return nil, paypalNotConfigured()
	}
	if err := ValidateOrderID(orderID); err != nil {
		return nil, err
	}

	var out walletOrderResponse
	var apiErr walletErrorResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=representation").
		SetHeader("PayPal-Request-Id", captureRequestID(orderID)).
		SetPathParam("id", orderID).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/checkout/orders/{id}/capture")
	if err != nil {
		return nil, p.transportError(err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusUnprocessableEntity && apiErr.hasIssue(walletIssueAlreadyCaptured) {
			p.logger.Info("paypal order already captured, re-reading", zap.String("order_id", orderID))
			return p.GetOrder(ctx, orderID)
		}
		return nil, p.apiError(resp.StatusCode(), &apiErr)
	}
	return walletCaptureFrom(&out, resp.Body()), nil
}

// GetOrder reads the current order representation.
func (p *WalletProvider) GetOrder(ctx context.Context, orderID string) (*WalletCapture, error) {
	if !p.Configured() {
		return nil, paypalNotConfigured()
	}
	if err := ValidateOrderID(orderID); err != nil {
		return nil, err
	}

	var out walletOrderResponse
	var apiErr walletErrorResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetPathParam("id", orderID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v2/checkout/orders/{id}")
	if err != nil {
		return nil, p.transportError(err)
	}
	if resp.IsError() {
		return nil, p.apiError(resp.StatusCode(), &apiErr)
	}
	return walletCaptureFrom(&out, resp.Body()), nil
}

func walletCaptureFrom(o *walletOrderResponse, raw []byte) *WalletCapture {
	c := &WalletCapture{
		OrderID: o.ID,
		Status:  o.Status,
		Raw:     append(json.RawMessage(nil), raw...),
	}
	if o.Payer != nil {
		c.PayerID = o.Payer.PayerID
		c.PayerMail = o.Payer.EmailAddress
	}
	if len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		c.CustomID = pu.CustomID
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			capture := pu.Payments.Captures[0]
			c.CaptureID = capture.ID
			if capture.CustomID != "" {
				c.CustomID = capture.CustomID
			}
		}
	}
	return c
}

func captureRequestID(orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("capture:"+orderID)).String()
}

func (p *WalletProvider) transportError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		p.logger.Error("paypal token request rejected", zap.Int("status", status))
		return fmt.Errorf("%w: paypal authentication failed", ErrUpstream)
	}
	p.logger.Error("paypal unreachable", zap.Error(err))
	return providerUnreachable(models.BillingProviderPayPal, "PayPal", err)
}

func (p *WalletProvider) apiError(status int, e *walletErrorResponse) error {
	p.logger.Error("paypal api error",
		zap.Int("status", status),
		zap.String("name", e.Name),
		zap.String("debug_id", e.DebugID),
		zap.String("message", e.Message))
	return fmt.Errorf("%w: paypal %d %s", ErrUpstream, status, e.Name)
}

type walletWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
	} `json:"resource"`
}

// ParseWebhook decodes a PayPal delivery. When a webhook id is configured the
// delivery is first verified with PayPal.
func (p *WalletProvider) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (Event, error) {
	var raw walletWebhookEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Configured() && p.webhookID != "" {
		if err := p.verifyWebhook(ctx, payload, headers); err != nil {
			return nil, err
		}
	}
	return decodeWalletEvent(raw), nil
}

func decodeWalletEvent(raw walletWebhookEvent) Event {
	env := Envelope{Provider: models.BillingProviderPayPal, ID: raw.ID, Type: raw.EventType}

	switch raw.EventType {
	case walletEventCaptureCompleted:
		if raw.Resource.ID == "" {
			return Malformed{Envelope: env, Reason: errors.New("capture without id")}
		}
		corr, err := ParseCorrelation(raw.Resource.CustomID)
		if err != nil {
			return Malformed{Envelope: env, Reason: err}
		}
		return PaymentCompleted{Envelope: env, PaymentID: raw.Resource.ID, Correlation: corr}

	case walletEventSubscriptionCancelled:
		corr, err := ParseCorrelation(raw.Resource.CustomID)
		if err != nil {
			return Malformed{Envelope: env, Reason: err}
		}
		return SubscriptionCancelled{Envelope: env, Correlation: &corr}

	default:
		return Unhandled{Envelope: env}
	}
}

func (p *WalletProvider) verifyWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	t, err := walletTransmissionFromHeaders(headers)
	if err != nil {
		return err
	}

	var out walletVerifyResponse
	var apiErr walletErrorResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(walletVerifyRequest{
			walletTransmission: t,
			WebhookID:          p.webhookID,
			WebhookEvent:       json.RawMessage(payload),
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/notifications/verify-webhook-signature")
	if err != nil {
		return p.transportError(err)
	}
	if resp.IsError() {
		return p.apiError(resp.StatusCode(), &apiErr)
	}
	if out.VerificationStatus != walletVerificationSucceeded {
		return fmt.Errorf("%w: paypal verification status %q", ErrInvalidSignature, out.VerificationStatus)
	}
	return nil
}
