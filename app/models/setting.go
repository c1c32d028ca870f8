package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTenant is used when a request carries no tenant.
const DefaultTenant = "default"

// Setting keys holding provider secrets.
const (
	SettingStripeSecretKey       = "stripe_secret_key"
	SettingStripeWebhookSecret   = "stripe_webhook_secret"
	SettingDocuSignConnectSecret = "docusign_connect_secret"
)

// Setting is a per-tenant key/value entry.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Tenant    string    `gorm:"type:varchar(100);not null;default:'default';index:ux_settings_tenant_key,unique,priority:1" json:"tenant" validate:"required,max=100"`
	Key       string    `gorm:"column:setting_key;type:varchar(255);not null;index:ux_settings_tenant_key,unique,priority:2" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Setting) Validate() error {
	return validator.New().Struct(s)
}
