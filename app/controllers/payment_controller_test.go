package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withmywomen/backend/internal/pkg/billing"
)

type stubCheckout struct {
	got  billing.CheckoutRequest
	sess *billing.CheckoutSession
	err  error
}

func (s *stubCheckout) CreateSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	s.got = req
	return s.sess, s.err
}

func (s *stubCheckout) Plans() []billing.Plan {
	return billing.DefaultCatalog().Plans()
}

type stubCapture struct {
	res *billing.CaptureResult
	err error
}

func (s *stubCapture) CaptureWalletOrder(context.Context, string) (*billing.CaptureResult, error) {
	return s.res, s.err
}

type stubWebhooks struct {
	signature string
	headers   http.Header
	err       error
}

func (s *stubWebhooks) HandleCardWebhook(_ context.Context, _ []byte, sig string) (*billing.WebhookResult, error) {
	s.signature = sig
	if s.err != nil {
		return nil, s.err
	}
	return &billing.WebhookResult{EventID: "evt_1", Outcome: billing.Outcome{Action: billing.ActionGranted}}, nil
}

func (s *stubWebhooks) HandleWalletWebhook(_ context.Context, _ []byte, h http.Header) (*billing.WebhookResult, error) {
	s.headers = h
	if s.err != nil {
		return nil, s.err
	}
	return &billing.WebhookResult{EventID: "WH-1", Outcome: billing.Outcome{Action: billing.ActionIgnored}}, nil
}

func newPaymentApp(pc *PaymentController, userID uint) *fiber.App {
	app := fiber.New()
	app.Use(asUser(userID))
	app.Get("/payments/plans", pc.HandlePlans)
	app.Post("/payments/checkout-session", pc.HandleCheckoutSession)
	app.Post("/payments/wallet-order", pc.HandleWalletOrder)
	app.Post("/payments/capture-wallet-order", pc.HandleCaptureWalletOrder)
	app.Post("/payments/card-webhook", pc.HandleCardWebhook)
	app.Post("/payments/wallet-webhook", pc.HandleWalletWebhook)
	return app
}

func TestUnconfiguredProvidersAnswerWithMessage(t *testing.T) {
	checkout := billing.NewCheckout(billing.DefaultCatalog(), nil, nil, nil, "http://app.test")
	reconciler := billing.NewReconciler(nil, nil, nil, nil)
	service := billing.NewService(nil, nil, nil, reconciler, nil)
	app := newPaymentApp(NewPaymentController(checkout, reconciler, service, nil), 1)

	resp, body := doJSON(t, app, "POST", "/payments/checkout-session", `{"tier":"vip"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Stripe is not configured. Please add STRIPE_SECRET_KEY to your environment variables."}`, body)

	resp, body = doJSON(t, app, "POST", "/payments/wallet-order", `{"tier":"basic"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "PayPal is not configured")

	resp, body = doJSON(t, app, "POST", "/payments/capture-wallet-order", `{"orderId":"ORDER-1"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "PayPal is not configured")

	resp, _ = doJSON(t, app, "POST", "/payments/card-webhook", `{}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	resp, body = doJSON(t, app, "POST", "/payments/wallet-webhook",
		`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","custom_id":"1_vip"}}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "PayPal is not configured")
}

func TestCheckoutSessionResponses(t *testing.T) {
	checkout := &stubCheckout{sess: &billing.CheckoutSession{Method: billing.MethodCard, ExternalID: "cs_1", RedirectURL: "https://stripe.test/cs_1"}}
	app := newPaymentApp(NewPaymentController(checkout, nil, nil, nil), 5)

	resp, body := doJSON(t, app, "POST", "/payments/checkout-session", `{"tier":"premium"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"sessionId":"cs_1","url":"https://stripe.test/cs_1"}`, body)
	assert.Equal(t, billing.CheckoutRequest{UserID: 5, Tier: "premium", Method: billing.MethodCard}, checkout.got)

	checkout.sess = &billing.CheckoutSession{Method: billing.MethodWallet, ExternalID: "ORDER-9", RedirectURL: "https://paypal.test/approve"}
	resp, body = doJSON(t, app, "POST", "/payments/wallet-order", `{"tier":"basic"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"orderId":"ORDER-9","approvalUrl":"https://paypal.test/approve"}`, body)
	assert.Equal(t, billing.MethodWallet, checkout.got.Method)
}

func TestCheckoutErrorMapping(t *testing.T) {
	checkout := &stubCheckout{}
	app := newPaymentApp(NewPaymentController(checkout, nil, nil, nil), 5)

	checkout.err = fmt.Errorf("lookup: %w", billing.ErrInvalidTier)
	resp, body := doJSON(t, app, "POST", "/payments/checkout-session", `{"tier":"gold"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid subscription tier"}`, body)

	checkout.err = fmt.Errorf("%w: stripe said no", billing.ErrUpstream)
	resp, body = doJSON(t, app, "POST", "/payments/checkout-session", `{"tier":"vip"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to create checkout session"}`, body)

	resp, body = doJSON(t, app, "POST", "/payments/wallet-order", `{"tier":"vip"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to create PayPal order"}`, body)
}

func TestCaptureWalletOrder(t *testing.T) {
	capturer := &stubCapture{res: &billing.CaptureResult{
		Capture: &billing.WalletCapture{OrderID: "ORDER-1", Status: "COMPLETED", Raw: json.RawMessage(`{"id":"ORDER-1","status":"COMPLETED"}`)},
	}}
	app := newPaymentApp(NewPaymentController(nil, capturer, nil, nil), 0)

	resp, body := doJSON(t, app, "POST", "/payments/capture-wallet-order", `{"orderId":"ORDER-1"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"capture":{"id":"ORDER-1","status":"COMPLETED"}}`, body)

	capturer.err = fmt.Errorf("%w: order status APPROVED", billing.ErrPaymentNotCompleted)
	resp, body = doJSON(t, app, "POST", "/payments/capture-wallet-order", `{"orderId":"ORDER-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Payment not completed"}`, body)

	capturer.err = errors.New("connection reset")
	resp, body = doJSON(t, app, "POST", "/payments/capture-wallet-order", `{"orderId":"ORDER-1"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to capture payment"}`, body)
}

func TestWebhooks(t *testing.T) {
	hooks := &stubWebhooks{}
	app := newPaymentApp(NewPaymentController(nil, nil, hooks, nil), 0)

	req := `{"id":"evt_1"}`
	resp, body := doJSONWithHeaders(t, app, "/payments/card-webhook", req, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":true}`, body)
	assert.Equal(t, "t=1,v1=abc", hooks.signature)

	resp, _ = doJSONWithHeaders(t, app, "/payments/wallet-webhook", `{"id":"WH-1"}`, map[string]string{"PayPal-Transmission-Id": "tx-1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "tx-1", hooks.headers.Get("PayPal-Transmission-Id"))

	hooks.err = fmt.Errorf("%w: signature mismatch", billing.ErrInvalidSignature)
	resp, body = doJSONWithHeaders(t, app, "/payments/card-webhook", req, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Webhook Error: ")

	hooks.err = errors.New("database is down")
	resp, _ = doJSONWithHeaders(t, app, "/payments/card-webhook", req, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestPlans(t *testing.T) {
	app := newPaymentApp(NewPaymentController(&stubCheckout{}, nil, nil, nil), 0)

	resp, body := doJSON(t, app, "GET", "/payments/plans", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Plans []struct {
			Tier  string `json:"tier"`
			Price string `json:"price"`
		} `json:"plans"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out.Plans, 3)
	assert.Equal(t, "basic", out.Plans[0].Tier)
	assert.Equal(t, "4.99", out.Plans[0].Price)
	assert.Equal(t, "19.99", out.Plans[2].Price)
}
