package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/app/repository"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	Users() repository.UserRepository
	FindSubscription(ctx context.Context, provider, providerSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	CreateSubscriptionIfAbsent(ctx context.Context, sub *models.Subscription) (bool, error)
	FindInvoiceByExternalID(ctx context.Context, externalID string) (*models.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id uint, from, to models.InvoiceStatus, at time.Time) (bool, error)
	CreateActivity(ctx context.Context, activity *models.Activity) error
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Users() repository.UserRepository {
	return repository.NewUserRepository(r.db)
}

func (r *gormRepository) FindSubscription(ctx context.Context, provider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_customer_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"trial_start",
			"trial_end",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

// CreateSubscriptionIfAbsent inserts sub unless a row with the same provider
// subscription id exists. An existing row is left untouched.
func (r *gormRepository) CreateSubscriptionIfAbsent(ctx context.Context, sub *models.Subscription) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sub)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) FindInvoiceByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).Preload("Client").Where("external_invoice_id = ?", externalID).First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) UpdateInvoiceStatus(ctx context.Context, id uint, from, to models.InvoiceStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.InvoiceStatusSent:
		updates["sent_at"] = at
	case models.InvoiceStatusPaid:
		updates["paid_at"] = at
	}
	tx := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return repository.NewActivityRepository(r.db).Create(ctx, activity)
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
