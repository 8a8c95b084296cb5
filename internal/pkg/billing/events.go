package billing

// Event is a decoded provider notification. The concrete types below are the
// only implementations; the reconciler switches over them.
type Event interface {
	Meta() Envelope
	isEvent()
}

// Envelope carries the delivery metadata shared by every event.
type Envelope struct {
	Provider string
	ID       string
	Type     string
}

func (e Envelope) Meta() Envelope { return e }
func (Envelope) isEvent()         {}

// PaymentCompleted confirms a one-off payment for a tier.
type PaymentCompleted struct {
	Envelope
	// PaymentID is the provider id the grant is deduplicated on
	// (Stripe checkout session id, PayPal capture id).
	PaymentID   string
	Correlation Correlation
	// CustomerID is the provider customer/payer id, if any.
	CustomerID    string
	CustomerEmail string
}

// RenewalPaid confirms a recurring payment identified only by customer.
type RenewalPaid struct {
	Envelope
	InvoiceID  string
	CustomerID string
}

// SubscriptionCancelled ends an entitlement immediately. Exactly one of
// CustomerID or Correlation identifies the user.
type SubscriptionCancelled struct {
	Envelope
	CustomerID  string
	Correlation *Correlation
}

// Malformed is a handled event kind whose payload could not be correlated.
type Malformed struct {
	Envelope
	Reason error
}

// Unhandled is any event kind the reconciler does not act on.
type Unhandled struct {
	Envelope
}
