package billing

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// WebhookResult is what a webhook delivery amounted to. Duplicate is set when
// the event had already been processed successfully and was not applied again.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Outcome   Outcome
}
