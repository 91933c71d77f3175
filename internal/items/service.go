package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/activity"
	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

// Service registers procurable items and exposes their consolidated state.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Item, error)
	RegisterComponent(ctx context.Context, input RegisterComponentInput) (*models.Component, error)
	Summary(ctx context.Context, itemID uuid.UUID) (*Summary, error)
}

// RegisterInput carries a new item from the project module.
type RegisterInput struct {
	ProjectID uuid.UUID
	Name      string
	Quantity  int
	Currency  enums.Currency
	ActorID   *uuid.UUID
}

// RegisterComponentInput carries a new sub-part of an existing item.
type RegisterComponentInput struct {
	ItemID   uuid.UUID
	Name     string
	Quantity int
	ActorID  *uuid.UUID
}

// ComponentSummary pairs a component with its accepted quote, if any.
type ComponentSummary struct {
	Component     models.Component
	AcceptedQuote *models.QuoteLineItem
}

// Summary is the read model of one item.
type Summary struct {
	Item          models.Item
	AcceptedQuote *models.QuoteLineItem
	Components    []ComponentSummary
}

type service struct {
	repo     Repository
	tx       txRunner
	activity activityAppender
	currency enums.Currency
}

// NewService builds the item catalog service. defaultCurrency applies when a registration
// omits the currency.
func NewService(repo Repository, tx txRunner, activity activityAppender, defaultCurrency enums.Currency) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("items repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if activity == nil {
		return nil, fmt.Errorf("activity log required")
	}
	if !defaultCurrency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", defaultCurrency)
	}
	return &service{repo: repo, tx: tx, activity: activity, currency: defaultCurrency}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Item, error) {
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	currency := input.Currency
	if currency == "" {
		currency = s.currency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}

	item := &models.Item{
		ProjectID:     input.ProjectID,
		Name:          name,
		Quantity:      input.Quantity,
		CurrentStatus: enums.ItemStatusNotRequested,
		PaymentStatus: enums.PaymentStatusNotInvoiced,
		Currency:      currency,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create item")
		}
		return s.activity.Append(ctx, tx, activity.Entry{
			EntityType: enums.ActivityEntityItem,
			EntityID:   item.ID,
			ItemID:     &item.ID,
			Action:     enums.ActivityItemRegistered,
			ActorID:    input.ActorID,
			ToStatus:   string(item.CurrentStatus),
			Details:    map[string]any{"name": item.Name, "quantity": item.Quantity},
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) RegisterComponent(ctx context.Context, input RegisterComponentInput) (*models.Component, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var component *models.Component
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindByID(ctx, input.ItemID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
		}
		component = &models.Component{
			ItemID:   item.ID,
			Name:     name,
			Quantity: input.Quantity,
			Currency: item.Currency,
		}
		if err := repo.CreateComponent(ctx, component); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create component")
		}
		return s.activity.Append(ctx, tx, activity.Entry{
			EntityType: enums.ActivityEntityComponent,
			EntityID:   component.ID,
			ItemID:     &item.ID,
			Action:     enums.ActivityItemRegistered,
			ActorID:    input.ActorID,
			Details:    map[string]any{"name": component.Name, "quantity": component.Quantity},
		})
	})
	if err != nil {
		return nil, err
	}
	return component, nil
}

func (s *service) Summary(ctx context.Context, itemID uuid.UUID) (*Summary, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	components, err := s.repo.ListComponents(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list components")
	}
	accepted, err := s.repo.ListAcceptedQuotes(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accepted quotes")
	}

	summary := &Summary{Item: *item, Components: make([]ComponentSummary, 0, len(components))}
	byComponent := make(map[uuid.UUID]*models.QuoteLineItem, len(accepted))
	for i := range accepted {
		quote := &accepted[i]
		if quote.TargetsComponent() {
			byComponent[*quote.ComponentID] = quote
			continue
		}
		summary.AcceptedQuote = quote
	}
	for _, component := range components {
		summary.Components = append(summary.Components, ComponentSummary{
			Component:     component,
			AcceptedQuote: byComponent[component.ID],
		})
	}
	return summary, nil
}
