package esign

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ClientHub/app/models"
	"github.com/ManuelReschke/ClientHub/app/repository"
)

// Repository provides DB operations used by the e-signature service.
type Repository interface {
	FindContractByEnvelopeID(ctx context.Context, envelopeID string) (*models.Contract, error)
	// UpdateContractStatus moves a contract out of status from. It reports
	// false when the contract was no longer in that status.
	UpdateContractStatus(ctx context.Context, id uint, from, to models.ContractStatus, at time.Time) (bool, error)
	CreateSignatureIfAbsent(ctx context.Context, sig *models.Signature) (bool, error)
	SetSignatureArchiveURI(ctx context.Context, id uint, uri string) error
	CreateActivity(ctx context.Context, activity *models.Activity) error
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an e-signature repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindContractByEnvelopeID(ctx context.Context, envelopeID string) (*models.Contract, error) {
	var c models.Contract
	err := r.db.WithContext(ctx).Preload("Client").Where("envelope_id = ?", envelopeID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) UpdateContractStatus(ctx context.Context, id uint, from, to models.ContractStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.ContractStatusSent:
		updates["sent_at"] = at
	case models.ContractStatusSigned:
		updates["signed_at"] = at
	case models.ContractStatusCancelled:
		updates["cancelled_at"] = at
	case models.ContractStatusExpired:
		updates["expired_at"] = at
	}
	tx := r.db.WithContext(ctx).Model(&models.Contract{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) CreateSignatureIfAbsent(ctx context.Context, sig *models.Signature) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_id"}},
		DoNothing: true,
	}).Create(sig)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) SetSignatureArchiveURI(ctx context.Context, id uint, uri string) error {
	return r.db.WithContext(ctx).Model(&models.Signature{}).Where("id = ?", id).Update("archive_uri", uri).Error
}

func (r *gormRepository) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return repository.NewActivityRepository(r.db).Create(ctx, activity)
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
