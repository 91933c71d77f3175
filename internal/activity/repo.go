package activity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
)

// Repository persists activity entries. There is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.ActivityEntry) error
	ListForItem(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an activity repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.ActivityEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListForItem(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error) {
	var rows []models.ActivityEntry
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
