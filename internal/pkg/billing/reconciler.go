package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

type Action string

const (
	ActionGranted   Action = "granted"
	ActionRenewed   Action = "renewed"
	ActionRevoked   Action = "revoked"
	ActionDuplicate Action = "duplicate"
	ActionIgnored   Action = "ignored"
	// ActionSkipped means the event could not be matched to a user.
	ActionSkipped Action = "skipped"
)

// Outcome reports what reconciling one event did.
type Outcome struct {
	Action      Action
	UserID      uint
	Entitlement entitlements.Entitlement
	Reason      string
}

// captureTimeout bounds a shared capture, which outlives the caller that
// started it.
const captureTimeout = 30 * time.Second

// CaptureResult is returned to the browser after an explicit wallet capture.
type CaptureResult struct {
	Capture *WalletCapture
	Outcome Outcome
}

// Reconciler is the only writer of entitlement state. Every write for a user
// happens under that user's lock and is deduplicated by payment id.
type Reconciler struct {
	repo     Repository
	wallet   *WalletProvider
	locker   Locker
	logger   *zap.Logger
	now      func() time.Time
	captures singleflight.Group
}

func NewReconciler(repo Repository, wallet *WalletProvider, locker Locker, logger *zap.Logger) *Reconciler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		repo:   repo,
		wallet: wallet,
		locker: locker,
		logger: logger.Named("reconciler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply reconciles a decoded provider event. Events that cannot be matched
// to a user are reported as skipped, not as errors, so the provider stops
// redelivering them.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	meta := ev.Meta()
	log := r.logger.With(
		zap.String("provider", meta.Provider),
		zap.String("event_id", meta.ID),
		zap.String("event_type", meta.Type))

	switch e := ev.(type) {
	case PaymentCompleted:
		return r.applyPayment(ctx, log, e)

	case RenewalPaid:
		user, err := r.repo.FindUserByProviderAccount(ctx, e.Provider, e.CustomerID)
		if err != nil {
			return r.unmatched(log, err, zap.String("customer_id", e.CustomerID))
		}
		grant := &models.BillingPaymentGrant{
			Provider:   e.Provider,
			ExternalID: e.InvoiceID,
			UserID:     user.ID,
			Kind:       models.PaymentGrantKindRenewal,
		}
		return r.transition(ctx, log, user.ID, entitlements.TriggerRenew, entitlements.TierNone, grant, nil)

	case SubscriptionCancelled:
		var (
			user *models.User
			err  error
		)
		if e.Correlation != nil {
			user, err = r.repo.GetUser(ctx, e.Correlation.UserID)
		} else {
			user, err = r.repo.FindUserByProviderAccount(ctx, e.Provider, e.CustomerID)
		}
		if err != nil {
			return r.unmatched(log, err, zap.String("customer_id", e.CustomerID))
		}
		return r.transition(ctx, log, user.ID, entitlements.TriggerRevoke, entitlements.TierNone, nil, nil)

	case Malformed:
		log.Warn("webhook payload could not be correlated", zap.Error(e.Reason))
		return Outcome{Action: ActionIgnored, Reason: e.Reason.Error()}, nil

	default:
		log.Info("webhook event ignored")
		return Outcome{Action: ActionIgnored, Reason: "unhandled event type " + meta.Type}, nil
	}
}

func (r *Reconciler) applyPayment(ctx context.Context, log *zap.Logger, e PaymentCompleted) (Outcome, error) {
	if e.PaymentID == "" {
		log.Warn("payment without id ignored")
		return Outcome{Action: ActionIgnored, Reason: "payment without id"}, nil
	}
	userID := e.Correlation.UserID

	grant := &models.BillingPaymentGrant{
		Provider:   e.Provider,
		ExternalID: e.PaymentID,
		UserID:     userID,
		Tier:       string(e.Correlation.Tier),
		Kind:       models.PaymentGrantKindGrant,
	}
	var link *models.BillingAccount
	if e.CustomerID != "" {
		link = &models.BillingAccount{
			UserID:            userID,
			Provider:          e.Provider,
			ProviderAccountID: e.CustomerID,
			Email:             e.CustomerEmail,
		}
	}
	return r.transition(ctx, log, userID, entitlements.TriggerGrant, e.Correlation.Tier, grant, link)
}

func (r *Reconciler) unmatched(log *zap.Logger, err error, fields ...zap.Field) (Outcome, error) {
	if errors.Is(err, ErrUserNotFound) {
		log.Warn("no user for payment event, skipping", fields...)
		return Outcome{Action: ActionSkipped, Reason: err.Error()}, nil
	}
	return Outcome{}, err
}

// transition re-reads the user under its lock, runs the state machine and
// persists the result together with the ledger row.
func (r *Reconciler) transition(
	ctx context.Context,
	log *zap.Logger,
	userID uint,
	trigger entitlements.Trigger,
	tier entitlements.Tier,
	grant *models.BillingPaymentGrant,
	link *models.BillingAccount,
) (Outcome, error) {
	unlock, err := r.locker.Lock(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock user %d: %w", userID, err)
	}
	defer unlock()

	user, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return r.unmatched(log, err, zap.Uint("user_id", userID))
	}

	now := r.now()
	res, err := entitlements.Apply(ctx, user.Entitlement(), entitlements.Change{Trigger: trigger, Tier: tier, At: now})
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{UserID: userID, Entitlement: res.Next}
	if !res.Changed {
		log.Info("entitlement transition ignored",
			zap.Uint("user_id", userID),
			zap.String("trigger", string(trigger)),
			zap.String("state", string(res.From)))
		out.Action = ActionIgnored
		out.Reason = fmt.Sprintf("%s ignored in state %s", trigger, res.From)
		return out, nil
	}

	if grant != nil {
		grant.AppliedAt = now
		if grant.Tier == "" {
			grant.Tier = string(res.Next.Tier)
		}
	}
	applied, err := r.repo.SaveEntitlement(ctx, EntitlementWrite{
		UserID:      userID,
		Entitlement: res.Next,
		Grant:       grant,
		Link:        link,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("save entitlement for user %d: %w", userID, err)
	}
	if !applied {
		log.Info("payment already applied", zap.Uint("user_id", userID), zap.String("external_id", grant.ExternalID))
		return Outcome{Action: ActionDuplicate, UserID: userID, Entitlement: user.Entitlement()}, nil
	}

	switch trigger {
	case entitlements.TriggerGrant:
		out.Action = ActionGranted
	case entitlements.TriggerRenew:
		out.Action = ActionRenewed
	default:
		out.Action = ActionRevoked
	}
	log.Info("entitlement updated",
		zap.Uint("user_id", userID),
		zap.String("action", string(out.Action)),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.String("tier", string(res.Next.Tier)))
	return out, nil
}

// CaptureWalletOrder captures a PayPal order the buyer approved and grants the
// tier it was created for. Concurrent captures of the same order share one
// provider call.
func (r *Reconciler) CaptureWalletOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	if !r.wallet.Configured() {
		return nil, paypalNotConfigured()
	}
	if err := ValidateOrderID(orderID); err != nil {
		return nil, err
	}

	ch := r.captures.DoChan(orderID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
		defer cancel()
		return r.captureOnce(shared, orderID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CaptureResult), nil
	}
}

func (r *Reconciler) captureOnce(ctx context.Context, orderID string) (*CaptureResult, error) {
	log := r.logger.With(zap.String("provider", models.BillingProviderPayPal), zap.String("order_id", orderID))

	capture, err := r.wallet.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !capture.Completed() {
		log.Warn("paypal order not completed", zap.String("status", capture.Status))
		return nil, fmt.Errorf("%w: order status %s", ErrPaymentNotCompleted, capture.Status)
	}

	corr, err := ParseCorrelation(capture.CustomID)
	if err != nil {
		log.Error("captured order has no usable custom_id", zap.String("custom_id", capture.CustomID), zap.Error(err))
		return nil, err
	}

	paymentID := capture.CaptureID
	if paymentID == "" {
		paymentID = capture.OrderID
	}
	outcome, err := r.Apply(ctx, PaymentCompleted{
		Envelope:      Envelope{Provider: models.BillingProviderPayPal, ID: "capture:" + orderID, Type: walletEventCaptureCompleted},
		PaymentID:     paymentID,
		Correlation:   corr,
		CustomerID:    capture.PayerID,
		CustomerEmail: capture.PayerMail,
	})
	if err != nil {
		return nil, err
	}
	return &CaptureResult{Capture: capture, Outcome: outcome}, nil
}

// ChangeTier is the manual tier switch: a paid tier grants, "none" revokes.
// It returns the user as stored afterwards.
func (r *Reconciler) ChangeTier(ctx context.Context, userID uint, tier entitlements.Tier, method string) (*models.User, error) {
	if tier != entitlements.TierNone && !tier.IsPaid() {
		return nil, ErrInvalidTier
	}
	m, ok := ParseMethod(method)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	log := r.logger.With(zap.String("provider", m), zap.String("event_type", "manual_tier_change"))

	var outcome Outcome
	var err error
	if tier == entitlements.TierNone {
		outcome, err = r.transition(ctx, log, userID, entitlements.TriggerRevoke, entitlements.TierNone, nil, nil)
	} else {
		outcome, err = r.transition(ctx, log, userID, entitlements.TriggerGrant, tier, nil, nil)
	}
	if err != nil {
		return nil, err
	}
	if outcome.Action == ActionSkipped {
		return nil, ErrUserNotFound
	}
	return r.repo.GetUser(ctx, userID)
}
