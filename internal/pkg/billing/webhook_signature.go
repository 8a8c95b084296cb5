package billing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

const StripeSignatureHeader = "Stripe-Signature"

// verifyCardEvent checks the Stripe-Signature header against the raw body and
// decodes the event. Every failure is reported as ErrInvalidSignature.
func verifyCardEvent(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, StripeSignatureHeader)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// walletTransmission holds the PayPal-Transmission-* headers needed by the
// verify-webhook-signature API.
type walletTransmission struct {
	AuthAlgo         string `json:"auth_algo"`
	CertURL          string `json:"cert_url"`
	TransmissionID   string `json:"transmission_id"`
	TransmissionSig  string `json:"transmission_sig"`
	TransmissionTime string `json:"transmission_time"`
}

func walletTransmissionFromHeaders(h http.Header) (walletTransmission, error) {
	t := walletTransmission{
		AuthAlgo:         strings.TrimSpace(h.Get("PayPal-Auth-Algo")),
		CertURL:          strings.TrimSpace(h.Get("PayPal-Cert-Url")),
		TransmissionID:   strings.TrimSpace(h.Get("PayPal-Transmission-Id")),
		TransmissionSig:  strings.TrimSpace(h.Get("PayPal-Transmission-Sig")),
		TransmissionTime: strings.TrimSpace(h.Get("PayPal-Transmission-Time")),
	}
	if t.AuthAlgo == "" || t.CertURL == "" || t.TransmissionID == "" || t.TransmissionSig == "" || t.TransmissionTime == "" {
		return walletTransmission{}, fmt.Errorf("%w: missing PayPal transmission headers", ErrInvalidSignature)
	}
	return t, nil
}

type walletVerifyRequest struct {
	walletTransmission
	WebhookID    string          `json:"webhook_id"`
	WebhookEvent json.RawMessage `json:"webhook_event"`
}

type walletVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}
