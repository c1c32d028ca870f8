package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ClientHub/app/models"
)

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

// ListByEntity returns the entity's activity, oldest first.
func (r *activityRepository) ListByEntity(ctx context.Context, entityType string, entityID uint) ([]models.Activity, error) {
	var out []models.Activity
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id").
		Find(&out).Error
	return out, err
}
