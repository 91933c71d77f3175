package acceptance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/quotes"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/payloads"
)

const eventSource = "acceptance"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

type statusAdvancer interface {
	AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input status.AdvanceInput) (*status.AdvanceResult, error)
}

// Service makes one supplier quote the accepted quote of its item or component.
type Service interface {
	Accept(ctx context.Context, input AcceptInput) (*AcceptResult, error)
}

// AcceptInput targets the item itself unless ComponentID is set.
type AcceptInput struct {
	ItemID          uuid.UUID
	ComponentID     *uuid.UUID
	QuoteLineItemID uuid.UUID
	ActorID         *uuid.UUID
}

// AcceptResult reports the target after acceptance. Changed is false when the quote was
// already accepted and only its timestamp was refreshed.
type AcceptResult struct {
	Item      models.Item
	Component *models.Component
	Quote     models.QuoteLineItem
	Previous  *models.QuoteLineItem
	Changed   bool
	Status    *status.AdvanceResult
}

type service struct {
	quotes  quotes.Repository
	items   items.Repository
	tx      txRunner
	log     activityAppender
	outbox  outbox.Emitter
	status  statusAdvancer
	logg    *logger.Logger
	ops     *metrics.OperationMetrics
	nowFunc func() time.Time
}

// NewService builds the acceptance service. ops may be nil.
func NewService(quotesRepo quotes.Repository, itemsRepo items.Repository, tx txRunner, log activityAppender, emitter outbox.Emitter, engine statusAdvancer, logg *logger.Logger, ops *metrics.OperationMetrics) (Service, error) {
	if quotesRepo == nil {
		return nil, fmt.Errorf("quotes repository required")
	}
	if itemsRepo == nil {
		return nil, fmt.Errorf("items repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("activity log required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if engine == nil {
		return nil, fmt.Errorf("status engine required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		quotes:  quotesRepo,
		items:   itemsRepo,
		tx:      tx,
		log:     log,
		outbox:  emitter,
		status:  engine,
		logg:    logg,
		ops:     ops,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) (result *AcceptResult, err error) {
	defer s.ops.Observe("quotes.accept", time.Now(), &err)
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.QuoteLineItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	if input.ComponentID != nil && *input.ComponentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "component id must not be empty")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.acceptTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		fields := map[string]any{
			"item_id":     result.Item.ID.String(),
			"quote_id":    result.Quote.ID.String(),
			"supplier_id": result.Quote.SupplierID.String(),
		}
		if result.Component != nil {
			fields["component_id"] = result.Component.ID.String()
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "quote accepted")
	}
	return result, nil
}

func (s *service) acceptTx(ctx context.Context, tx *gorm.DB, input AcceptInput) (*AcceptResult, error) {
	itemsRepo := s.items.WithTx(tx)
	quotesRepo := s.quotes.WithTx(tx)

	item, err := itemsRepo.FindForUpdate(ctx, input.ItemID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
				WithDetails(map[string]any{"item_id": input.ItemID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock item")
	}

	var component *models.Component
	if input.ComponentID != nil {
		component, err = itemsRepo.FindComponentForUpdate(ctx, *input.ComponentID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "component not found").
					WithDetails(map[string]any{"component_id": *input.ComponentID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock component")
		}
		if component.ItemID != item.ID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "component does not belong to item").
				WithDetails(map[string]any{"item_id": item.ID, "component_id": component.ID})
		}
	}

	quote, err := quotesRepo.FindForUpdate(ctx, input.QuoteLineItemID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found").
				WithDetails(map[string]any{"quote_id": input.QuoteLineItemID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock quote")
	}
	if err := checkTarget(quote, item, component); err != nil {
		return nil, err
	}
	if !quote.IsLatestVersion {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote has been superseded by a newer version").
			WithDetails(map[string]any{"quote_id": quote.ID, "version": quote.Version})
	}

	now := s.nowFunc()
	if quote.IsAccepted {
		if err := quotesRepo.TouchAccepted(ctx, quote.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh accepted quote")
		}
		quote.AcceptedAt = &now
		return &AcceptResult{Item: *item, Component: component, Quote: *quote}, nil
	}

	previous, err := quotesRepo.FindAccepted(ctx, item.ID, input.ComponentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load accepted quote")
	}
	if previous != nil {
		if err := quotesRepo.ClearAccepted(ctx, previous.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear accepted quote")
		}
		previous.IsAccepted = false
	}
	if err := quotesRepo.MarkAccepted(ctx, quote.ID, now, input.ActorID); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "concurrent acceptance")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept quote")
	}
	quote.IsAccepted = true
	quote.AcceptedAt = &now
	quote.AcceptedByID = input.ActorID

	updates := map[string]any{
		"accepted_quote_id": quote.ID,
		"supplier_id":       quote.SupplierID,
		"trade_price":       quote.UnitPrice,
		"currency":          quote.Currency,
	}
	result := &AcceptResult{Quote: *quote, Previous: previous, Changed: true}
	if component != nil {
		if err := itemsRepo.UpdateComponentVersioned(ctx, component, updates); err != nil {
			return nil, err
		}
		component.AcceptedQuoteID = &quote.ID
		component.SupplierID = &quote.SupplierID
		component.TradePrice = quote.UnitPrice
		component.Currency = quote.Currency
		result.Component = component
	} else {
		if err := itemsRepo.UpdateVersioned(ctx, item, updates); err != nil {
			return nil, err
		}
		item.AcceptedQuoteID = &quote.ID
		item.SupplierID = &quote.SupplierID
		item.TradePrice = quote.UnitPrice
		item.Currency = quote.Currency

		advanced, err := s.status.AdvanceLockedTx(ctx, tx, item, status.AdvanceInput{
			ItemID:  item.ID,
			Trigger: enums.TriggerQuoteAccepted,
			ActorID: input.ActorID,
			Details: map[string]any{"quote_id": quote.ID},
		})
		if err != nil {
			return nil, err
		}
		result.Status = advanced
		*item = advanced.Item
	}
	result.Item = *item

	details := map[string]any{
		"supplier_id": quote.SupplierID,
		"unit_price":  quote.UnitPrice.StringFixed(quote.Currency.MinorUnits()),
		"version":     quote.Version,
	}
	if previous != nil {
		details["previous_quote_id"] = previous.ID
	}
	entityType, entityID := enums.ActivityEntityItem, item.ID
	if component != nil {
		entityType, entityID = enums.ActivityEntityComponent, component.ID
	}
	if err := s.log.Append(ctx, tx, activity.Entry{
		EntityType: entityType,
		EntityID:   entityID,
		ItemID:     &item.ID,
		Action:     enums.ActivityQuoteAccepted,
		ActorID:    input.ActorID,
		Details:    details,
	}); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventQuoteAccepted,
		AggregateType: enums.AggregateItem,
		AggregateID:   item.ID,
		Actor:         outbox.Actor(input.ActorID, eventSource),
		OccurredAt:    now,
		Data: payloads.QuoteAcceptedEvent{
			QuoteID:      quote.ID,
			ItemID:       item.ID,
			ComponentID:  quote.ComponentID,
			SupplierID:   quote.SupplierID,
			UnitPrice:    quote.UnitPrice,
			TotalPrice:   quote.TotalPrice,
			Currency:     quote.Currency,
			ItemStatus:   item.CurrentStatus,
			AcceptedAt:   now,
			AcceptedByID: input.ActorID,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit quote accepted")
	}
	return result, nil
}

func checkTarget(quote *models.QuoteLineItem, item *models.Item, component *models.Component) error {
	if quote.ItemID != item.ID {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote belongs to another item").
			WithDetails(map[string]any{"quote_id": quote.ID, "item_id": item.ID})
	}
	if component == nil {
		if quote.TargetsComponent() {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote targets a component, not the item").
				WithDetails(map[string]any{"quote_id": quote.ID, "component_id": *quote.ComponentID})
		}
		return nil
	}
	if !quote.TargetsComponent() || *quote.ComponentID != component.ID {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "quote belongs to another component").
			WithDetails(map[string]any{"quote_id": quote.ID, "component_id": component.ID})
	}
	return nil
}
