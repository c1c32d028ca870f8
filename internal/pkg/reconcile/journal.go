package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ClientHub/app/models"
)

// Journal records verified webhook deliveries keyed by (provider, event id).
type Journal struct {
	db *gorm.DB
}

func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// EventKey returns the journal key for a delivery. Deliveries without a
// provider event id are keyed by a hash of the payload.
func EventKey(eventID string, payload []byte) string {
	if id := strings.TrimSpace(eventID); id != "" {
		return id
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

// Begin records a delivery. duplicate is true when the same event was already
// processed without error; failed deliveries are handed back for another try.
func (j *Journal) Begin(ctx context.Context, provider, eventID, eventType string, payload []byte) (event *models.WebhookEvent, duplicate bool, err error) {
	const op = "journal.begin"

	candidate := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: EventKey(eventID, payload),
		EventType:       eventType,
		PayloadJSON:     string(payload),
		Attempts:        1,
	}
	tx := j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(candidate)
	if tx.Error != nil {
		return nil, false, Transient(op, tx.Error)
	}
	if tx.RowsAffected > 0 {
		return candidate, false, nil
	}

	var stored models.WebhookEvent
	if err := j.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", candidate.Provider, candidate.ProviderEventID).
		First(&stored).Error; err != nil {
		return nil, false, Transient(op, err)
	}
	if stored.Succeeded() {
		return &stored, true, nil
	}

	if err := j.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", stored.ID).
		Updates(map[string]interface{}{
			"attempts":         gorm.Expr("attempts + 1"),
			"processing_error": "",
			"processed_at":     nil,
		}).Error; err != nil {
		return nil, false, Transient(op, err)
	}
	stored.Attempts++
	stored.ProcessingError = ""
	stored.ProcessedAt = nil
	return &stored, false, nil
}

// Finish marks a delivery processed, storing the processing error if any.
func (j *Journal) Finish(ctx context.Context, id uint, procErr error) error {
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": msg,
	}
	// The request context may already be expired when processing timed out.
	ctx = context.WithoutCancel(ctx)
	if err := j.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return Transient("journal.finish", err)
	}
	return nil
}
