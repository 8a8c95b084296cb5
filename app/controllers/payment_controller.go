package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/withmywomen/backend/internal/pkg/billing"
	"github.com/withmywomen/backend/internal/pkg/usercontext"
)

const (
	checkoutTimeout = 20 * time.Second
	webhookTimeout  = 15 * time.Second
)

type SessionCreator interface {
	CreateSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
	Plans() []billing.Plan
}

type OrderCapturer interface {
	CaptureWalletOrder(ctx context.Context, orderID string) (*billing.CaptureResult, error)
}

type WebhookHandler interface {
	HandleCardWebhook(ctx context.Context, payload []byte, signatureHeader string) (*billing.WebhookResult, error)
	HandleWalletWebhook(ctx context.Context, payload []byte, headers http.Header) (*billing.WebhookResult, error)
}

type PaymentController struct {
	checkout SessionCreator
	capturer OrderCapturer
	webhooks WebhookHandler
	logger   *zap.Logger
}

func NewPaymentController(checkout SessionCreator, capturer OrderCapturer, webhooks WebhookHandler, logger *zap.Logger) *PaymentController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentController{
		checkout: checkout,
		capturer: capturer,
		webhooks: webhooks,
		logger:   logger.Named("payments"),
	}
}

type tierRequest struct {
	Tier string `json:"tier"`
}

type captureRequest struct {
	OrderID string `json:"orderId"`
}

func (pc *PaymentController) HandlePlans(c *fiber.Ctx) error {
	plans := pc.checkout.Plans()
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"tier":     p.Tier,
			"name":     p.DisplayName,
			"price":    p.MajorUnits(),
			"currency": p.Currency,
			"features": p.Features,
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}

// HandleCheckoutSession starts a Stripe Checkout session.
func (pc *PaymentController) HandleCheckoutSession(c *fiber.Ctx) error {
	return pc.startCheckout(c, billing.MethodCard, "Failed to create checkout session", func(s *billing.CheckoutSession) fiber.Map {
		return fiber.Map{"sessionId": s.ExternalID, "url": s.RedirectURL}
	})
}

// HandleWalletOrder creates a PayPal order awaiting buyer approval.
func (pc *PaymentController) HandleWalletOrder(c *fiber.Ctx) error {
	return pc.startCheckout(c, billing.MethodWallet, "Failed to create PayPal order", func(s *billing.CheckoutSession) fiber.Map {
		return fiber.Map{"orderId": s.ExternalID, "approvalUrl": s.RedirectURL}
	})
}

func (pc *PaymentController) startCheckout(c *fiber.Ctx, method, fallback string, render func(*billing.CheckoutSession) fiber.Map) error {
	var req tierRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	sess, err := pc.checkout.CreateSession(ctx, billing.CheckoutRequest{
		UserID: usercontext.GetUserID(c),
		Tier:   req.Tier,
		Method: method,
	})
	if err != nil {
		return pc.handleError(c, err, fallback)
	}
	return c.JSON(render(sess))
}

// HandleCaptureWalletOrder captures an approved PayPal order. It is open to
// anonymous callers because the order itself names the user it pays for.
func (pc *PaymentController) HandleCaptureWalletOrder(c *fiber.Ctx) error {
	var req captureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	res, err := pc.capturer.CaptureWalletOrder(ctx, req.OrderID)
	if err != nil {
		return pc.handleError(c, err, "Failed to capture payment")
	}

	var capture interface{}
	if res.Capture != nil && len(res.Capture.Raw) > 0 {
		capture = res.Capture.Raw
	}
	return c.JSON(fiber.Map{"success": true, "capture": capture})
}

func (pc *PaymentController) HandleCardWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := pc.webhooks.HandleCardWebhook(ctx, payload, c.Get(billing.StripeSignatureHeader))
	if err != nil {
		return pc.handleError(c, err, "Webhook handler failed")
	}
	pc.logWebhook("stripe", res)
	return c.JSON(fiber.Map{"received": true})
}

func (pc *PaymentController) HandleWalletWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	headers := http.Header{}
	for k, vals := range c.GetReqHeaders() {
		for _, v := range vals {
			headers.Add(k, v)
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := pc.webhooks.HandleWalletWebhook(ctx, payload, headers)
	if err != nil {
		return pc.handleError(c, err, "Webhook handler failed")
	}
	pc.logWebhook("paypal", res)
	return c.JSON(fiber.Map{"received": true})
}

func (pc *PaymentController) logWebhook(provider string, res *billing.WebhookResult) {
	if res == nil {
		return
	}
	pc.logger.Info("webhook handled",
		zap.String("provider", provider),
		zap.String("event_id", res.EventID),
		zap.String("event_type", res.EventType),
		zap.Bool("duplicate", res.Duplicate),
		zap.String("action", string(res.Outcome.Action)))
}

// handleError maps billing errors onto status codes. Webhook callers rely on
// 5xx to trigger a redelivery.
func (pc *PaymentController) handleError(c *fiber.Ctx, err error, fallback string) error {
	var pu *billing.ProviderUnavailableError
	switch {
	case errors.As(err, &pu):
		pc.logger.Warn("payment provider unavailable", zap.String("provider", pu.Provider), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": pu.Message})
	case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrInvalidPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Webhook Error: " + err.Error()})
	case errors.Is(err, billing.ErrInvalidTier),
		errors.Is(err, billing.ErrInvalidMethod),
		errors.Is(err, billing.ErrInvalidOrderID),
		errors.Is(err, billing.ErrPaymentNotCompleted):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": billing.UserMessage(err, fallback)})
	case errors.Is(err, billing.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	default:
		pc.logger.Error(fallback, zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
	}
}
