package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its Items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var rows []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListForClientQuote(ctx context.Context, clientQuoteID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("item_id ASC") }).
		Where("client_quote_id = ?", clientQuoteID).
		Order("placed_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// CoveredItemIDs returns the subset of itemIDs that already have an item-level order line.
func (r *repository) CoveredItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	covered := make(map[uuid.UUID]struct{})
	if len(itemIDs) == 0 {
		return covered, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.OrderItem{}).
		Where("item_id IN ? AND component_id IS NULL", itemIDs).
		Distinct().
		Pluck("item_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		covered[id] = struct{}{}
	}
	return covered, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order was modified concurrently").
			WithDetails(map[string]any{"order_id": id, "expected_status": string(from)})
	}
	return nil
}

func (r *repository) FindClientQuoteForUpdate(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	var quote models.ClientQuote
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) ListClientQuoteLines(ctx context.Context, clientQuoteID uuid.UUID) ([]models.ClientQuoteLineItem, error) {
	var rows []models.ClientQuoteLineItem
	err := r.db.WithContext(ctx).
		Where("client_quote_id = ?", clientQuoteID).
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}
