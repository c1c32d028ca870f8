package models

import "time"

type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "DRAFT"
	ContractStatusSent      ContractStatus = "SENT"
	ContractStatusSigned    ContractStatus = "SIGNED"
	ContractStatusCancelled ContractStatus = "CANCELLED"
	ContractStatusExpired   ContractStatus = "EXPIRED"
)

// IsTerminal reports whether no transition leads out of the status.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusSigned, ContractStatusCancelled, ContractStatusExpired:
		return true
	default:
		return false
	}
}

// Contract is a document sent for e-signature. One contract maps to at most
// one envelope.
type Contract struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	ClientID    uint           `gorm:"not null;index" json:"client_id"`
	Client      *User          `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Status      ContractStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	EnvelopeID  *string        `gorm:"type:varchar(191);uniqueIndex" json:"envelope_id,omitempty"`
	SentAt      *time.Time     `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	SignedAt    *time.Time     `gorm:"type:timestamp;default:null" json:"signed_at,omitempty"`
	CancelledAt *time.Time     `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time     `gorm:"type:timestamp;default:null" json:"expired_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Signature is written once per signed contract. The unique contract_id index
// is what keeps replayed completion events from creating a second row.
type Signature struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ContractID     uint      `gorm:"not null;uniqueIndex" json:"contract_id"`
	EnvelopeID     string    `gorm:"type:varchar(191);not null;index" json:"envelope_id"`
	Provider       string    `gorm:"type:varchar(20);not null" json:"provider"`
	SignerName     string    `gorm:"type:varchar(150)" json:"signer_name"`
	SignerEmail    string    `gorm:"type:varchar(200)" json:"signer_email"`
	SignedAt       time.Time `gorm:"type:timestamp;not null" json:"signed_at"`
	PayloadSHA256  string    `gorm:"type:varchar(64)" json:"payload_sha256"`
	ProvenanceJSON string    `gorm:"type:text" json:"provenance_json"`
	ArchiveURI     string    `gorm:"type:varchar(500);default:''" json:"archive_uri"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
