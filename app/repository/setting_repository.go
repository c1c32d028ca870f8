package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ClientHub/app/models"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// GetValue returns an empty string for settings that do not exist.
func (r *settingRepository) GetValue(ctx context.Context, tenant, key string) (string, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND setting_key = ?", normalizeTenant(tenant), key).
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

func (r *settingRepository) SetValue(ctx context.Context, tenant, key, value string) error {
	setting := models.Setting{
		Tenant: normalizeTenant(tenant),
		Key:    key,
		Value:  value,
	}
	if err := setting.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant"}, {Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func normalizeTenant(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return models.DefaultTenant
	}
	return tenant
}
