package quotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

// Repository defines persistence operations for supplier quotes. Commercial terms are
// written once; only the latest and accepted flags change afterwards.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, quote *models.QuoteLineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error)
	FindLatestForSupplier(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID, supplierID uuid.UUID) (*models.QuoteLineItem, error)
	FindAccepted(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID) (*models.QuoteLineItem, error)
	ListLatest(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID) ([]models.QuoteLineItem, error)
	ListChain(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID, supplierID uuid.UUID) ([]models.QuoteLineItem, error)
	MarkSuperseded(ctx context.Context, id uuid.UUID) error
	ClearAccepted(ctx context.Context, id uuid.UUID) error
	MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time, actorID *uuid.UUID) error
	TouchAccepted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a quotes repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, quote *models.QuoteLineItem) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error) {
	var quote models.QuoteLineItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.QuoteLineItem, error) {
	var quote models.QuoteLineItem
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// FindLatestForSupplier returns nil without error when the supplier has not quoted the
// target yet.
func (r *repository) FindLatestForSupplier(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID, supplierID uuid.UUID) (*models.QuoteLineItem, error) {
	var rows []models.QuoteLineItem
	err := targetScope(dbpkg.ForUpdate(r.db.WithContext(ctx)), itemID, componentID).
		Where("supplier_id = ? AND is_latest_version = ?", supplierID, true).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// FindAccepted returns nil without error when nothing is accepted for the target.
func (r *repository) FindAccepted(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID) (*models.QuoteLineItem, error) {
	var rows []models.QuoteLineItem
	err := targetScope(r.db.WithContext(ctx), itemID, componentID).
		Where("is_accepted = ?", true).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) ListLatest(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID) ([]models.QuoteLineItem, error) {
	var rows []models.QuoteLineItem
	err := targetScope(r.db.WithContext(ctx), itemID, componentID).
		Where("is_latest_version = ?", true).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListChain(ctx context.Context, itemID uuid.UUID, componentID *uuid.UUID, supplierID uuid.UUID) ([]models.QuoteLineItem, error) {
	var rows []models.QuoteLineItem
	err := targetScope(r.db.WithContext(ctx), itemID, componentID).
		Where("supplier_id = ?", supplierID).
		Order("version DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkSuperseded(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.QuoteLineItem{}).
		Where("id = ? AND is_latest_version = ?", id, true).
		Update("is_latest_version", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "quote was superseded concurrently").
			WithDetails(map[string]any{"quote_id": id})
	}
	return nil
}

func (r *repository) ClearAccepted(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.QuoteLineItem{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_accepted": false}).Error
}

func (r *repository) MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time, actorID *uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.QuoteLineItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_accepted":    true,
			"accepted_at":    at,
			"accepted_by_id": actorID,
		}).Error
}

func targetScope(q *gorm.DB, itemID uuid.UUID, componentID *uuid.UUID) *gorm.DB {
	q = q.Where("item_id = ?", itemID)
	if componentID == nil {
		return q.Where("component_id IS NULL")
	}
	return q.Where("component_id = ?", *componentID)
}

// TouchAccepted refreshes accepted_at on an already accepted quote.
func (r *repository) TouchAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.QuoteLineItem{}).
		Where("id = ? AND is_accepted = ?", id, true).
		Update("accepted_at", at).Error
}
