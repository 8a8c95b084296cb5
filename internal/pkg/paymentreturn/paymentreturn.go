// Package paymentreturn finishes a checkout when the buyer's browser comes
// back from the payment provider.
package paymentreturn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/billing"
)

const (
	MessageActivated = "Payment successful! Your premium membership is now active."
	MessagePending   = "Payment received. Your membership will be activated shortly."
	MessageReceived  = "Payment received."
	messageCapture   = "Failed to capture payment"
)

// returnParams are stripped from the URL once the return has been handled.
var returnParams = []string{"success", "order_id", "session_id", "canceled", "token", "PayerID"}

type Kind string

const (
	KindNone          Kind = "none"
	KindWalletCapture Kind = "wallet_capture"
	KindCardSession   Kind = "card_session"
)

// Params are the return markers found on the request URL.
type Params struct {
	Success   bool
	Canceled  bool
	OrderID   string
	SessionID string
}

// Parse reads the return markers. PayPal appends the order id as "token", so
// that is used when no explicit order_id is present.
func Parse(q url.Values) Params {
	p := Params{
		Success:   q.Get("success") == "true",
		Canceled:  q.Get("canceled") == "true",
		OrderID:   strings.TrimSpace(q.Get("order_id")),
		SessionID: strings.TrimSpace(q.Get("session_id")),
	}
	if p.OrderID == "" {
		p.OrderID = strings.TrimSpace(q.Get("token"))
	}
	return p
}

func (p Params) Kind() Kind {
	switch {
	case !p.Success:
		return KindNone
	case p.OrderID != "":
		return KindWalletCapture
	case p.SessionID != "":
		return KindCardSession
	default:
		return KindNone
	}
}

// HasMarkers reports whether the URL needs cleaning.
func HasMarkers(q url.Values) bool {
	for _, k := range returnParams {
		if q.Has(k) {
			return true
		}
	}
	return false
}

// CleanURL drops the return markers and keeps everything else.
func CleanURL(u *url.URL) string {
	q := u.Query()
	for _, k := range returnParams {
		q.Del(k)
	}
	clean := url.URL{Path: u.Path, RawQuery: q.Encode()}
	if clean.Path == "" {
		clean.Path = "/"
	}
	return clean.String()
}

// Result is what the browser should see after the return was handled.
type Result struct {
	Kind Kind
	// Handled is false when the URL carried no return markers at all.
	Handled  bool
	Success  bool
	Message  string
	CleanURL string
}

type Capturer interface {
	CaptureWalletOrder(ctx context.Context, orderID string) (*billing.CaptureResult, error)
}

type UserReader interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

type Handler struct {
	capturer Capturer
	users    UserReader
	logger   *zap.Logger
	now      func() time.Time
}

func NewHandler(capturer Capturer, users UserReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		capturer: capturer,
		users:    users,
		logger:   logger.Named("paymentreturn"),
		now:      time.Now,
	}
}

// Handle processes a return URL for userID. Only an unparsable URL is an
// error; provider failures end up in Result.Message.
func (h *Handler) Handle(ctx context.Context, userID uint, requestURL string) (Result, error) {
	u, err := url.Parse(requestURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse return url: %w", err)
	}
	q := u.Query()
	res := Result{Kind: KindNone, Handled: HasMarkers(q), CleanURL: CleanURL(u)}

	p := Parse(q)
	res.Kind = p.Kind()
	switch res.Kind {
	case KindWalletCapture:
		captured, err := h.capturer.CaptureWalletOrder(ctx, p.OrderID)
		if err != nil {
			h.logger.Warn("wallet capture on return failed",
				zap.Uint("user_id", userID), zap.String("order_id", p.OrderID), zap.Error(err))
			res.Message = billing.UserMessage(err, messageCapture)
			return res, nil
		}
		res.Success = true
		res.Message = h.captureMessage(userID, p.OrderID, captured.Outcome)
	case KindCardSession:
		res.Success = true
		res.Message = MessagePending
		if userID == 0 {
			return res, nil
		}
		user, err := h.users.GetUser(ctx, userID)
		if err != nil {
			h.logger.Warn("reload user after card return failed", zap.Uint("user_id", userID), zap.Error(err))
			return res, nil
		}
		if user.Entitlement().IsActive(h.now()) {
			res.Message = MessageActivated
		}
	}
	return res, nil
}

// captureMessage only claims activation when the capture granted the tier to
// the user looking at the page.
func (h *Handler) captureMessage(userID uint, orderID string, out billing.Outcome) string {
	switch out.Action {
	case billing.ActionGranted, billing.ActionRenewed, billing.ActionDuplicate:
		if userID != 0 && out.UserID == userID {
			return MessageActivated
		}
		if userID != 0 {
			h.logger.Warn("captured order belongs to another user",
				zap.Uint("user_id", userID), zap.Uint("order_user_id", out.UserID), zap.String("order_id", orderID))
		}
	case billing.ActionSkipped:
		h.logger.Error("captured order has no matching user",
			zap.Uint("user_id", userID), zap.String("order_id", orderID), zap.String("reason", out.Reason))
	}
	return MessageReceived
}
