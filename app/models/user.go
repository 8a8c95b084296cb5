package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/withmywomen/backend/internal/pkg/entitlements"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email    string `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password string `gorm:"type:text" json:"-" validate:"required"`
	Role     string `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`

	// Entitlement record. Written only through billing.Repository.SaveEntitlement.
	IsPremium        bool       `gorm:"default:false;index" json:"isPremium"`
	PremiumTier      string     `gorm:"type:varchar(20);not null;default:'none'" json:"premiumTier"`
	PremiumExpires   *time.Time `gorm:"type:timestamp;default:null" json:"premiumExpires"`
	PremiumRevokedAt *time.Time `gorm:"type:timestamp;default:null" json:"-"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// CreateUser builds a validated user with a hashed password and no entitlement.
func CreateUser(name string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:        strings.TrimSpace(name),
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Password:    pw,
		Role:        ROLE_USER,
		PremiumTier: string(entitlements.TierNone),
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// Entitlement returns the stored entitlement fields as a value.
func (u *User) Entitlement() entitlements.Entitlement {
	tier, ok := entitlements.ParseTier(u.PremiumTier)
	if !ok {
		tier = entitlements.TierNone
	}
	return entitlements.Entitlement{
		Tier:      tier,
		ExpiresAt: u.PremiumExpires,
		RevokedAt: u.PremiumRevokedAt,
	}
}

// EntitlementColumns maps an entitlement onto the user columns. is_premium is
// always derived from the tier so the three public fields cannot drift.
func EntitlementColumns(e entitlements.Entitlement) map[string]interface{} {
	return map[string]interface{}{
		"is_premium":         e.IsPremium(),
		"premium_tier":       string(e.Tier),
		"premium_expires":    e.ExpiresAt,
		"premium_revoked_at": e.RevokedAt,
	}
}

// SetEntitlement copies e onto the in-memory user after a successful write.
func (u *User) SetEntitlement(e entitlements.Entitlement) {
	u.IsPremium = e.IsPremium()
	u.PremiumTier = string(e.Tier)
	u.PremiumExpires = e.ExpiresAt
	u.PremiumRevokedAt = e.RevokedAt
}
