package activity

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
)

type fakeRepo struct {
	create func(ctx context.Context, entry *models.ActivityEntry) error
	list   func(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error)
}

func (f *fakeRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, entry *models.ActivityEntry) error {
	if f.create != nil {
		return f.create(ctx, entry)
	}
	return nil
}

func (f *fakeRepo) ListForItem(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error) {
	if f.list != nil {
		return f.list(ctx, itemID, limit)
	}
	return nil, nil
}
