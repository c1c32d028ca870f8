package repository

import (
	"context"

	"github.com/ManuelReschke/ClientHub/app/models"
)

// UserRepository defines the user lookups the reconcilers need.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	LinkStripeCustomer(ctx context.Context, userID uint, customerID string) error
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// SettingRepository is a per-tenant key/value store.
type SettingRepository interface {
	GetValue(ctx context.Context, tenant, key string) (string, error)
	SetValue(ctx context.Context, tenant, key, value string) error
}

// ActivityRepository appends audit records.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.Activity, error)
}
