package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/withmywomen/backend/app/models"
	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

// memRepo is an in-memory Repository with the same dedup semantics as the
// gorm implementation.
type memRepo struct {
	mu       sync.Mutex
	users    map[uint]*models.User
	accounts map[string]models.BillingAccount
	grants   map[string]models.BillingPaymentGrant
	events   map[string]*models.BillingWebhookEvent
	nextID   uint

	saves     int
	failSaves int
}

func newMemRepo(users ...*models.User) *memRepo {
	r := &memRepo{
		users:    make(map[uint]*models.User),
		accounts: make(map[string]models.BillingAccount),
		grants:   make(map[string]models.BillingPaymentGrant),
		events:   make(map[string]*models.BillingWebhookEvent),
	}
	for _, u := range users {
		if u.PremiumTier == "" {
			u.PremiumTier = string(entitlements.TierNone)
		}
		r.users[u.ID] = u
	}
	return r
}

func (r *memRepo) GetUser(_ context.Context, userID uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*models.User, error) {
	r.mu.Lock()
	acc, ok := r.accounts[provider+"|"+providerAccountID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.GetUser(ctx, acc.UserID)
}

func (r *memRepo) SaveEntitlement(_ context.Context, w EntitlementWrite) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failSaves > 0 {
		r.failSaves--
		return false, fmt.Errorf("database is gone")
	}
	if w.Grant != nil {
		key := w.Grant.Provider + "|" + w.Grant.ExternalID
		if _, dup := r.grants[key]; dup {
			return false, nil
		}
		r.grants[key] = *w.Grant
	}
	u, ok := r.users[w.UserID]
	if !ok {
		return false, ErrUserNotFound
	}
	u.SetEntitlement(w.Entitlement)
	if w.Link != nil {
		r.accounts[w.Link.Provider+"|"+w.Link.ProviderAccountID] = *w.Link
	}
	return true, nil
}

func (r *memRepo) UpsertBillingAccount(_ context.Context, account *models.BillingAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.Provider+"|"+account.ProviderAccountID] = *account
	return nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	r.nextID++
	event.ID = r.nextID
	stored := *event
	r.events[key] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *memRepo) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return fmt.Errorf("webhook event %d not found", id)
}

func (r *memRepo) user(id uint) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func (r *memRepo) event(provider, id string) *models.BillingWebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[provider+"|"+id]
}

func testUser(id uint) *models.User {
	return &models.User{
		ID:          id,
		Name:        fmt.Sprintf("user%d", id),
		Email:       fmt.Sprintf("user%d@example.com", id),
		PremiumTier: string(entitlements.TierNone),
	}
}

// signStripe builds a Stripe-Signature header for payload.
func signStripe(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
