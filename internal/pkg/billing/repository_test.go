package billing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/withmywomen/backend/app/models"
)

// newDryRunDB builds statements with the MySQL dialect without connecting.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "app:secret@tcp(127.0.0.1:3306)/withmywomen?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)
	return db
}

func uniqueIndexColumns(t *testing.T, model interface{}, name string) []string {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	idx := s.LookIndex(name)
	require.NotNil(t, idx, name)
	assert.Equal(t, "UNIQUE", idx.Class)
	cols := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		cols = append(cols, f.DBName)
	}
	return cols
}

func TestGrantInsertSkipsDuplicates(t *testing.T) {
	db := newDryRunDB(t)

	stmt := insertOrSkip(db, &models.BillingPaymentGrant{
		Provider:   "stripe",
		ExternalID: "cs_1",
		UserID:     1,
		Tier:       "vip",
		Kind:       models.PaymentGrantKindGrant,
		AppliedAt:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}, grantKeyColumns...)
	require.NoError(t, stmt.Error)

	sql := stmt.Statement.SQL.String()
	assert.Contains(t, sql, "INSERT INTO `billing_payment_grants`")
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE `id`=`id`")

	assert.Equal(t, grantKeyColumns,
		uniqueIndexColumns(t, &models.BillingPaymentGrant{}, "ux_billing_payment_grants_provider_external"))
}

func TestWebhookEventInsertSkipsDuplicates(t *testing.T) {
	db := newDryRunDB(t)

	stmt := insertOrSkip(db, &models.BillingWebhookEvent{
		Provider:        "paypal",
		ProviderEventID: "WH-1",
		EventType:       "PAYMENT.CAPTURE.COMPLETED",
		PayloadJSON:     `{}`,
	}, webhookEventKeyColumns...)
	require.NoError(t, stmt.Error)

	sql := stmt.Statement.SQL.String()
	assert.Contains(t, sql, "INSERT INTO `billing_webhook_events`")
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE `id`=`id`")

	assert.Equal(t, webhookEventKeyColumns,
		uniqueIndexColumns(t, &models.BillingWebhookEvent{}, "ux_billing_webhook_events_provider_event"))
}
