package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

// EntitlementWrite is one atomic entitlement change. Grant, when set, is the
// ledger row the change is deduplicated on. Link, when set, records the
// provider customer identity of the user.
type EntitlementWrite struct {
	UserID      uint
	Entitlement entitlements.Entitlement
	Grant       *models.BillingPaymentGrant
	Link        *models.BillingAccount
}

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
	FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.User, error)
	// SaveEntitlement applies w in one transaction. It returns false without
	// writing anything when w.Grant was already recorded.
	SaveEntitlement(ctx context.Context, w EntitlementWrite) (bool, error)
	UpsertBillingAccount(ctx context.Context, account *models.BillingAccount) error
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

var (
	grantKeyColumns        = []string{"provider", "external_id"}
	webhookEventKeyColumns = []string{"provider", "provider_event_id"}
)

// insertOrSkip creates value unless a row with the same key already exists,
// in which case RowsAffected is 0.
func insertOrSkip(db *gorm.DB, value interface{}, keys ...string) *gorm.DB {
	columns := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, clause.Column{Name: k})
	}
	return db.Clauses(clause.OnConflict{Columns: columns, DoNothing: true}).Create(value)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.User, error) {
	var account models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return r.GetUser(ctx, account.UserID)
}

func (r *gormRepository) SaveEntitlement(ctx context.Context, w EntitlementWrite) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if w.Grant != nil {
			res := insertOrSkip(tx, w.Grant, grantKeyColumns...)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", w.UserID).
			Updates(models.EntitlementColumns(w.Entitlement)).Error; err != nil {
			return err
		}

		if w.Link != nil {
			if err := upsertBillingAccount(tx, w.Link); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *gormRepository) UpsertBillingAccount(ctx context.Context, account *models.BillingAccount) error {
	return upsertBillingAccount(r.db.WithContext(ctx), account)
}

// upsertBillingAccount keeps one row per (user, provider); a user whose
// provider customer id changed gets the row rewritten.
func upsertBillingAccount(db *gorm.DB, account *models.BillingAccount) error {
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_account_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_account_id",
			"email",
			"updated_at",
		}),
	}).Create(account).Error; err != nil {
		return err
	}

	return db.Where("provider = ? AND provider_account_id = ?", account.Provider, account.ProviderAccountID).
		First(account).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := insertOrSkip(db, event, webhookEventKeyColumns...)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
