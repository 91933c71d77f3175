package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// Repository defines persistence operations for supplier orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	ListForClientQuote(ctx context.Context, clientQuoteID uuid.UUID) ([]models.Order, error)
	CoveredItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]struct{}, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) error
	FindClientQuoteForUpdate(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error)
	ListClientQuoteLines(ctx context.Context, clientQuoteID uuid.UUID) ([]models.ClientQuoteLineItem, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

type statusAdvancer interface {
	AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input status.AdvanceInput) (*status.AdvanceResult, error)
	AdvanceManyTx(ctx context.Context, tx *gorm.DB, input status.AdvanceManyInput) ([]status.AdvanceResult, error)
}
