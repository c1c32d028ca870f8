package models

import "time"

// Provider constants used across webhook-related models.
const (
	ProviderStripe   = "stripe"
	ProviderDocuSign = "docusign"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPaused     SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled  SubscriptionStatus = "CANCELLED"
	SubscriptionStatusPastDue    SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusIncomplete SubscriptionStatus = "INCOMPLETE"
	SubscriptionStatusTrialing   SubscriptionStatus = "TRIALING"
)

// SubscriptionStatuses lists every internal subscription status.
var SubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPaused,
	SubscriptionStatusCancelled,
	SubscriptionStatusPastDue,
	SubscriptionStatusIncomplete,
	SubscriptionStatusTrialing,
}

// Subscription mirrors a provider subscription for one user account. Rows are
// never deleted; a cancelled subscription keeps its row with status CANCELLED.
type Subscription struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	UserID                 uint               `gorm:"not null;index" json:"user_id"`
	Provider               string             `gorm:"type:varchar(20);not null;index:ux_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string             `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderCustomerID     string             `gorm:"type:varchar(191);not null;default:'';index" json:"provider_customer_id"`
	Status                 SubscriptionStatus `gorm:"type:varchar(32);not null;default:'INCOMPLETE';index" json:"status"`
	CurrentPeriodStart     *time.Time         `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time         `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool               `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt             *time.Time         `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	TrialStart             *time.Time         `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd               *time.Time         `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	RawPayloadJSON         string             `gorm:"type:longtext" json:"-"`
	CreatedAt              time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}
