package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
)

// Repository defines persistence operations for payments and their allocations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindPaymentForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	MarkAllocated(ctx context.Context, id uuid.UUID, at time.Time) error
	ListUnallocatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	CreateAllocations(ctx context.Context, allocations []models.PaymentAllocation) error
	ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAllocation, error)
	FindClientQuote(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error)
	ListClientQuoteLines(ctx context.Context, clientQuoteID uuid.UUID) ([]models.ClientQuoteLineItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPaymentForUpdate(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) MarkAllocated(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND allocated_at IS NULL", id).
		Update("allocated_at", at).Error
}

// ListUnallocatedBefore returns payments recorded before cutoff that were never allocated,
// oldest first.
func (r *repository) ListUnallocatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	q := r.db.WithContext(ctx).
		Where("allocated_at IS NULL AND created_at < ?", cutoff).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *repository) CreateAllocations(ctx context.Context, allocations []models.PaymentAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&allocations).Error
}

func (r *repository) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAllocation, error) {
	var rows []models.PaymentAllocation
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("item_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindClientQuote(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	var quote models.ClientQuote
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&quote).Error; err != nil {
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
