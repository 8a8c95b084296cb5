package models

import "time"

const (
	PaymentGrantKindGrant   = "grant"
	PaymentGrantKindRenewal = "renewal"
)

// BillingPaymentGrant records every provider payment that has been applied to
// an entitlement. The unique (provider, external_id) pair makes re-delivery of
// the same payment a no-op.
type BillingPaymentGrant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"type:varchar(20);not null;index:ux_billing_payment_grants_provider_external,unique,priority:1" json:"provider"`
	ExternalID string    `gorm:"type:varchar(191);not null;index:ux_billing_payment_grants_provider_external,unique,priority:2" json:"external_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Tier       string    `gorm:"type:varchar(20);not null" json:"tier"`
	Kind       string    `gorm:"type:varchar(20);not null" json:"kind"`
	AppliedAt  time.Time `gorm:"type:timestamp;not null" json:"applied_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
