package items

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

// Repository defines persistence operations for items and components.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.Item) error
	CreateComponent(ctx context.Context, component *models.Component) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error)
	FindManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Item, error)
	FindComponent(ctx context.Context, id uuid.UUID) (*models.Component, error)
	FindComponentForUpdate(ctx context.Context, id uuid.UUID) (*models.Component, error)
	ListComponents(ctx context.Context, itemID uuid.UUID) ([]models.Component, error)
	ListAcceptedQuotes(ctx context.Context, itemID uuid.UUID) ([]models.QuoteLineItem, error)
	UpdateVersioned(ctx context.Context, item *models.Item, updates map[string]any) error
	UpdateComponentVersioned(ctx context.Context, component *models.Component, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an items repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) CreateComponent(ctx context.Context, component *models.Component) error {
	return r.db.WithContext(ctx).Create(component).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindManyForUpdate locks the rows in ascending id order. Missing ids are simply absent
// from the result.
func (r *repository) FindManyForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ordered := SortIDs(ids)
	var rows []models.Item
	err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("id IN ?", ordered).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows, nil
}

func (r *repository) FindComponent(ctx context.Context, id uuid.UUID) (*models.Component, error) {
	var component models.Component
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&component).Error; err != nil {
		return nil, err
	}
	return &component, nil
}

func (r *repository) FindComponentForUpdate(ctx context.Context, id uuid.UUID) (*models.Component, error) {
	var component models.Component
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&component).Error; err != nil {
		return nil, err
	}
	return &component, nil
}

func (r *repository) ListComponents(ctx context.Context, itemID uuid.UUID) ([]models.Component, error) {
	var rows []models.Component
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListAcceptedQuotes(ctx context.Context, itemID uuid.UUID) ([]models.QuoteLineItem, error) {
	var rows []models.QuoteLineItem
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND is_accepted = ?", itemID, true).
		Order("accepted_at ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateVersioned applies updates guarded by item.Version and bumps the in-memory copy.
func (r *repository) UpdateVersioned(ctx context.Context, item *models.Item, updates map[string]any) error {
	affected, err := dbpkg.VersionedUpdate(r.db.WithContext(ctx), &models.Item{}, item.ID, item.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "item was modified concurrently").
			WithDetails(map[string]any{"item_id": item.ID, "expected_version": item.Version})
	}
	item.Version++
	return nil
}

func (r *repository) UpdateComponentVersioned(ctx context.Context, component *models.Component, updates map[string]any) error {
	affected, err := dbpkg.VersionedUpdate(r.db.WithContext(ctx), &models.Component{}, component.ID, component.Version, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update component")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "component was modified concurrently").
			WithDetails(map[string]any{"component_id": component.ID, "expected_version": component.Version})
	}
	component.Version++
	return nil
}

// SortIDs returns a de-duplicated copy of ids in ascending order, the order every
// multi-row lock is taken in.
func SortIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
