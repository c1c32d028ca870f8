package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_CLIENT = "client"
	ROLE_ADMIN  = "admin"
)

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password         string         `gorm:"type:text" json:"-"`
	Role             string         `gorm:"type:varchar(50);default:'client';index" json:"role" validate:"oneof=client admin"`
	StripeCustomerID *string        `gorm:"type:varchar(191);uniqueIndex" json:"stripe_customer_id,omitempty"`
	ProvisionedBy    string         `gorm:"type:varchar(50);default:''" json:"provisioned_by"` // provider that created the account, empty for regular signups
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewProvisionedUser builds a client account for a provider checkout. The
// password is a random secret nobody knows, so the account must go through a
// reset before anyone can log in with it.
func NewProvisionedUser(email, name, provider string) (*User, error) {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	pw, err := HashPassword(hex.EncodeToString(secret))
	if err != nil {
		return nil, err
	}

	email = NormalizeEmail(email)
	if strings.TrimSpace(name) == "" {
		name = email
		if at := strings.IndexByte(email, '@'); at > 0 {
			name = email[:at]
		}
	}

	u := &User{
		Name:          strings.TrimSpace(name),
		Email:         email,
		Password:      pw,
		Role:          ROLE_CLIENT,
		ProvisionedBy: provider,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
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

func (u *User) IsAdmin() bool {
	return u.Role == ROLE_ADMIN
}
