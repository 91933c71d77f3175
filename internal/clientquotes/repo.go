package clientquotes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

// Repository defines persistence operations for client quotes and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, quote *models.ClientQuote) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error)
	ListLines(ctx context.Context, clientQuoteID uuid.UUID) ([]models.ClientQuoteLineItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ClientQuoteStatus, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a client quote repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the quote together with its LineItems.
func (r *repository) Create(ctx context.Context, quote *models.ClientQuote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	var quote models.ClientQuote
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("item_id ASC") }).
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	var quote models.ClientQuote
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repository) ListLines(ctx context.Context, clientQuoteID uuid.UUID) ([]models.ClientQuoteLineItem, error) {
	var rows []models.ClientQuoteLineItem
	err := r.db.WithContext(ctx).
		Where("client_quote_id = ?", clientQuoteID).
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateStatus moves the quote from one status to the next and stamps the matching
// timestamp column.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ClientQuoteStatus, at time.Time) error {
	updates := map[string]any{"status": to}
	switch to {
	case enums.ClientQuoteStatusSent:
		updates["sent_at"] = at
	case enums.ClientQuoteStatusApproved:
		updates["approved_at"] = at
	case enums.ClientQuoteStatusInvoiced:
		updates["invoiced_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.ClientQuote{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update client quote status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "client quote was modified concurrently").
			WithDetails(map[string]any{"client_quote_id": id, "expected_status": string(from)})
	}
	return nil
}
