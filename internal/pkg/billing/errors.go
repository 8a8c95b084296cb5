package billing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTier         = errors.New("Invalid subscription tier")
	ErrInvalidMethod       = errors.New("Invalid payment method")
	ErrInvalidOrderID      = errors.New("invalid order id")
	ErrInvalidCorrelation  = errors.New("invalid payment correlation")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrInvalidPayload      = errors.New("invalid webhook payload")
	ErrPaymentNotCompleted = errors.New("Payment not completed")
	ErrUpstream            = errors.New("payment provider error")
	ErrUserNotFound        = errors.New("user not found")

	// ErrProviderUnavailable matches every *ProviderUnavailableError.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// ProviderUnavailableError is returned when a provider is not configured or
// cannot be reached. Message is safe to show to the end user.
type ProviderUnavailableError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

func (e *ProviderUnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

func stripeNotConfigured() error {
	return &ProviderUnavailableError{
		Provider: "stripe",
		Message:  "Stripe is not configured. Please add STRIPE_SECRET_KEY to your environment variables.",
	}
}

func stripeWebhookNotConfigured() error {
	return &ProviderUnavailableError{
		Provider: "stripe",
		Message:  "Stripe webhook is not configured. Please add STRIPE_WEBHOOK_SECRET to your environment variables.",
	}
}

func paypalNotConfigured() error {
	return &ProviderUnavailableError{
		Provider: "paypal",
		Message:  "PayPal is not configured. Please add PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET to your environment variables.",
	}
}

func providerUnreachable(provider, name string, err error) error {
	return &ProviderUnavailableError{
		Provider: provider,
		Message:  name + " is currently unavailable. Please try again later.",
		Err:      err,
	}
}

// UserMessage returns the text an end user may see for err, or fallback when
// err carries nothing user-facing.
func UserMessage(err error, fallback string) string {
	var pu *ProviderUnavailableError
	switch {
	case errors.As(err, &pu):
		return pu.Message
	case errors.Is(err, ErrInvalidTier):
		return ErrInvalidTier.Error()
	case errors.Is(err, ErrInvalidMethod):
		return ErrInvalidMethod.Error()
	case errors.Is(err, ErrPaymentNotCompleted):
		return ErrPaymentNotCompleted.Error()
	case errors.Is(err, ErrInvalidOrderID):
		return "Invalid order id"
	default:
		return fallback
	}
}
