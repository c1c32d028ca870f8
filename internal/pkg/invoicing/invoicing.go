package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
)

var (
	ErrNotEditable = errors.New("invoice is not a draft")
	ErrNoItems     = errors.New("invoice needs at least one item")
)

// ItemInput is one line item as entered by an operator.
type ItemInput struct {
	Description string  `json:"description" validate:"required,max=500"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	RateCents   int64   `json:"rate_cents" validate:"gte=0"`
}

// DecodeItems reads a JSON array of line items.
func DecodeItems(r io.Reader) ([]ItemInput, error) {
	var items []ItemInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	validate *validator.Validate
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: logger.OrNop(log).Named("invoicing"), validate: validator.New()}
}

// ReplaceItems deletes all items of a draft invoice and recreates them from
// items, recomputing every amount and the invoice total in one transaction.
func (s *Service) ReplaceItems(ctx context.Context, invoiceID uint, input []ItemInput) (*models.Invoice, error) {
	if len(input) == 0 {
		return nil, ErrNoItems
	}
	items := append([]ItemInput(nil), input...)
	for i := range items {
		items[i].Description = strings.TrimSpace(items[i].Description)
		if err := s.validate.Struct(items[i]); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	var inv models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&inv, invoiceID).Error; err != nil {
			return err
		}
		if !inv.IsEditable() {
			return fmt.Errorf("%w: %s is %s", ErrNotEditable, inv.Number, inv.Status)
		}

		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}

		rows := make([]models.InvoiceItem, len(items))
		var total int64
		for i, in := range items {
			rows[i] = models.InvoiceItem{
				InvoiceID:   inv.ID,
				Position:    i + 1,
				Description: in.Description,
				Quantity:    in.Quantity,
				RateCents:   in.RateCents,
			}
			total += rows[i].ComputeAmount()
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		// Guard against a concurrent send between the read and this write.
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, models.InvoiceStatusDraft).
			Update("total_cents", total)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotEditable
		}

		inv.TotalCents = total
		inv.Items = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice items replaced",
		zap.Uint("invoice_id", inv.ID), zap.Int("items", len(items)), zap.Int64("total_cents", inv.TotalCents))
	return &inv, nil
}
