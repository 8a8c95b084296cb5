package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/withmywomen/backend/app/models"
)

// Service receives provider webhooks: it logs every delivery once, skips
// deliveries that were already settled and hands the event to the Reconciler.
type Service struct {
	repo       Repository
	card       *CardProvider
	wallet     *WalletProvider
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewService creates a billing service from injected collaborators. card and
// wallet may be nil when the provider is not configured.
func NewService(repo Repository, card *CardProvider, wallet *WalletProvider, reconciler *Reconciler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		card:       card,
		wallet:     wallet,
		reconciler: reconciler,
		logger:     logger.Named("billing"),
	}
}

// HandleCardWebhook verifies and applies a Stripe delivery. Signature
// failures are returned before anything is stored.
func (s *Service) HandleCardWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	ev, err := s.card.ParseWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			s.logger.Warn("stripe webhook rejected", zap.Error(err))
		}
		return nil, err
	}
	return s.process(ctx, ev, payload, true)
}

// HandleWalletWebhook applies a PayPal delivery. It is only signature-checked
// when a PayPal webhook id is configured; without PayPal credentials nothing
// is parsed or stored.
func (s *Service) HandleWalletWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookResult, error) {
	if !s.wallet.Configured() {
		s.logger.Warn("paypal webhook received but paypal is not configured")
		return nil, paypalNotConfigured()
	}
	ev, err := s.wallet.ParseWebhook(ctx, payload, headers)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrInvalidPayload) {
			s.logger.Warn("paypal webhook rejected", zap.Error(err))
		}
		return nil, err
	}
	verified := s.wallet.webhookID != ""
	return s.process(ctx, ev, payload, verified)
}

func (s *Service) process(ctx context.Context, ev Event, payload []byte, signatureValid bool) (*WebhookResult, error) {
	meta := ev.Meta()
	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        meta.Provider,
		ProviderEventID: meta.ID,
		EventType:       meta.Type,
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{EventID: stored.ProviderEventID, EventType: meta.Type}
	if !created && stored.Settled() {
		s.logger.Info("webhook redelivery ignored",
			zap.String("provider", meta.Provider),
			zap.String("event_id", stored.ProviderEventID))
		result.Duplicate = true
		return result, nil
	}

	outcome, applyErr := s.reconciler.Apply(ctx, ev)
	if err := s.MarkWebhookProcessed(ctx, stored.ID, applyErr); err != nil {
		s.logger.Error("mark webhook processed failed", zap.Uint("webhook_event_id", stored.ID), zap.Error(err))
		if applyErr == nil {
			applyErr = err
		}
	}
	if applyErr != nil {
		return nil, applyErr
	}
	result.Outcome = outcome
	return result, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
