package models

import (
	"math"
	"time"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is the provider-agnostic billing record operators create as DRAFT.
// Money is stored in the smallest currency unit.
type Invoice struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	Number            string        `gorm:"type:varchar(50);not null;uniqueIndex" json:"number"`
	ClientID          uint          `gorm:"not null;index" json:"client_id"`
	Client            *User         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Currency          string        `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	TotalCents        int64         `gorm:"not null;default:0" json:"total_cents"`
	Status            InvoiceStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	ExternalInvoiceID *string       `gorm:"type:varchar(191);uniqueIndex" json:"external_invoice_id,omitempty"`
	DueAt             *time.Time    `gorm:"type:timestamp;default:null" json:"due_at,omitempty"`
	SentAt            *time.Time    `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	PaidAt            *time.Time    `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	Items             []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	InvoiceID   uint      `gorm:"not null;index" json:"invoice_id"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	Description string    `gorm:"type:varchar(500);not null" json:"description" validate:"required,max=500"`
	Quantity    float64   `gorm:"not null;default:1" json:"quantity" validate:"gt=0"`
	RateCents   int64     `gorm:"not null;default:0" json:"rate_cents" validate:"gte=0"`
	AmountCents int64     `gorm:"not null;default:0" json:"amount_cents"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ComputeAmount sets AmountCents to quantity * rate, rounded half away from zero.
func (i *InvoiceItem) ComputeAmount() int64 {
	i.AmountCents = int64(math.Round(i.Quantity * float64(i.RateCents)))
	return i.AmountCents
}

// IsEditable reports whether line items may still be replaced.
func (inv *Invoice) IsEditable() bool {
	return inv.Status == InvoiceStatusDraft
}
