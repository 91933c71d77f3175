package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	"github.com/angelmondragon/ffe-procurement/pkg/money"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/payloads"
)

const eventSource = "orders"

// statusTriggers maps an order status to the item trigger it fires.
var statusTriggers = map[enums.OrderStatus]enums.TriggerEvent{
	enums.OrderStatusShipped:   enums.TriggerOrderShipped,
	enums.OrderStatusReceived:  enums.TriggerOrderReceived,
	enums.OrderStatusInstalled: enums.TriggerItemInstalled,
	enums.OrderStatusClosed:    enums.TriggerItemClosed,
}

// Service turns paid client quote lines into supplier orders and tracks their fulfilment.
type Service interface {
	CreateOrders(ctx context.Context, clientQuoteID uuid.UUID, actorID *uuid.UUID) ([]OrderResult, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actorID *uuid.UUID) (*OrderResult, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListForClientQuote(ctx context.Context, clientQuoteID uuid.UUID) ([]models.Order, error)
}

type service struct {
	repo    Repository
	items   items.Repository
	tx      txRunner
	log     activityAppender
	outbox  outbox.Emitter
	status  statusAdvancer
	logg    *logger.Logger
	ops     *metrics.OperationMetrics
	nowFunc func() time.Time
}

// NewService builds the order orchestrator. ops may be nil.
func NewService(repo Repository, itemsRepo items.Repository, tx txRunner, log activityAppender, emitter outbox.Emitter, engine statusAdvancer, logg *logger.Logger, ops *metrics.OperationMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
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
		repo:    repo,
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

func (s *service) CreateOrders(ctx context.Context, clientQuoteID uuid.UUID, actorID *uuid.UUID) (results []OrderResult, err error) {
	defer s.ops.Observe("orders.create", time.Now(), &err)
	if clientQuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		results, txErr = s.createOrdersTx(ctx, tx, clientQuoteID, actorID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	for _, res := range results {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":    res.Order.ID.String(),
			"supplier_id": res.Order.SupplierID.String(),
			"lines":       len(res.Order.Items),
		})
		s.logg.Info(logCtx, "order placed")
	}
	return results, nil
}

func (s *service) createOrdersTx(ctx context.Context, tx *gorm.DB, clientQuoteID uuid.UUID, actorID *uuid.UUID) ([]OrderResult, error) {
	repo := s.repo.WithTx(tx)
	itemsRepo := s.items.WithTx(tx)

	cq, err := repo.FindClientQuoteForUpdate(ctx, clientQuoteID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client quote not found").
				WithDetails(map[string]any{"client_quote_id": clientQuoteID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock client quote")
	}
	lines, err := repo.ListClientQuoteLines(ctx, cq.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list client quote lines")
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	locked, err := itemsRepo.FindManyForUpdate(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock items")
	}
	covered, err := repo.CoveredItemIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ordered items")
	}

	now := s.nowFunc()
	bySupplier := make(map[uuid.UUID]*models.Order)
	var eligible []*models.Item
	for i := range locked {
		item := &locked[i]
		if item.AcceptedQuoteID == nil || !item.PaymentStatus.HasPayment() {
			continue
		}
		if _, done := covered[item.ID]; done {
			continue
		}
		itemLines, err := s.orderLines(ctx, itemsRepo, item)
		if err != nil {
			return nil, err
		}
		for _, line := range itemLines {
			order, ok := bySupplier[line.supplierID]
			if !ok {
				order = &models.Order{
					ClientQuoteID: cq.ID,
					ProjectID:     cq.ProjectID,
					SupplierID:    line.supplierID,
					Status:        enums.OrderStatusPlaced,
					Currency:      cq.Currency,
					Total:         decimal.Zero,
					PlacedAt:      now,
				}
				bySupplier[line.supplierID] = order
			}
			order.Items = append(order.Items, line.item)
			order.Total = order.Total.Add(money.Round(line.item.UnitPrice.Mul(decimal.NewFromInt(int64(line.item.Quantity))), cq.Currency))
		}
		eligible = append(eligible, item)
	}
	if len(eligible) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no eligible lines to order").
			WithDetails(map[string]any{"client_quote_id": cq.ID})
	}

	suppliers := make([]uuid.UUID, 0, len(bySupplier))
	for id := range bySupplier {
		suppliers = append(suppliers, id)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].String() < suppliers[j].String() })

	advanced := make(map[uuid.UUID]status.AdvanceResult, len(eligible))
	for _, item := range eligible {
		res, err := s.status.AdvanceLockedTx(ctx, tx, item, status.AdvanceInput{
			ItemID:  item.ID,
			Trigger: enums.TriggerOrderPlaced,
			ActorID: actorID,
			Details: map[string]any{"client_quote_id": cq.ID},
		})
		if err != nil {
			return nil, err
		}
		advanced[item.ID] = *res
	}

	results := make([]OrderResult, 0, len(suppliers))
	for _, supplierID := range suppliers {
		order := bySupplier[supplierID]
		if err := repo.Create(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "lines were ordered concurrently")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		itemIDs := orderItemIDs(order.Items, false)
		for _, itemID := range itemIDs {
			id := itemID
			if err := s.log.Append(ctx, tx, activity.Entry{
				EntityType: enums.ActivityEntityOrder,
				EntityID:   order.ID,
				ItemID:     &id,
				Action:     enums.ActivityOrderCreated,
				ActorID:    actorID,
				ToStatus:   string(order.Status),
				Details:    map[string]any{"supplier_id": order.SupplierID},
			}); err != nil {
				return nil, err
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.Actor(actorID, eventSource),
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				ClientQuoteID: cq.ID,
				ProjectID:     cq.ProjectID,
				SupplierID:    order.SupplierID,
				Total:         order.Total,
				Currency:      order.Currency,
				ItemIDs:       itemIDs,
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		result := OrderResult{Order: *order, Changed: true}
		for _, itemID := range orderItemIDs(order.Items, true) {
			result.Items = append(result.Items, advanced[itemID])
		}
		results = append(results, result)
	}
	return results, nil
}

type supplierLine struct {
	supplierID uuid.UUID
	item       models.OrderItem
}

// orderLines returns the item-level line and one line per accepted component quote.
func (s *service) orderLines(ctx context.Context, itemsRepo items.Repository, item *models.Item) ([]supplierLine, error) {
	accepted, err := itemsRepo.ListAcceptedQuotes(ctx, item.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accepted quotes")
	}
	components, err := itemsRepo.ListComponents(ctx, item.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list components")
	}
	quantities := make(map[uuid.UUID]int, len(components))
	for _, component := range components {
		quantities[component.ID] = component.Quantity
	}

	var out []supplierLine
	var itemLine *supplierLine
	for _, quote := range accepted {
		if quote.TargetsComponent() {
			componentID := *quote.ComponentID
			out = append(out, supplierLine{
				supplierID: quote.SupplierID,
				item: models.OrderItem{
					ItemID:          item.ID,
					ComponentID:     &componentID,
					QuoteLineItemID: quote.ID,
					Quantity:        quantities[componentID],
					UnitPrice:       quote.UnitPrice,
				},
			})
			continue
		}
		if quote.ID == *item.AcceptedQuoteID {
			itemLine = &supplierLine{
				supplierID: quote.SupplierID,
				item: models.OrderItem{
					ItemID:          item.ID,
					QuoteLineItemID: quote.ID,
					Quantity:        item.Quantity,
					UnitPrice:       quote.UnitPrice,
				},
			}
		}
	}
	if itemLine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "accepted quote of item is missing").
			WithDetails(map[string]any{"item_id": item.ID, "quote_id": *item.AcceptedQuoteID})
	}
	return append([]supplierLine{*itemLine}, out...), nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actorID *uuid.UUID) (result *OrderResult, err error) {
	defer s.ops.Observe("orders.update_status", time.Now(), &err)
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", next)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
					WithDetails(map[string]any{"order_id": orderID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		lines, err := repo.ListItems(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order items")
		}
		order.Items = lines

		from := order.Status
		if next.Rank() <= from.Rank() {
			result = &OrderResult{Order: *order}
			return nil
		}
		if err := repo.UpdateStatus(ctx, order.ID, from, next); err != nil {
			return err
		}
		order.Status = next

		itemIDs := orderItemIDs(lines, true)
		var advanced []status.AdvanceResult
		if len(itemIDs) > 0 {
			advanced, err = s.status.AdvanceManyTx(ctx, tx, status.AdvanceManyInput{
				ItemIDs: itemIDs,
				Trigger: statusTriggers[next],
				ActorID: actorID,
				Details: map[string]any{"order_id": order.ID},
			})
			if err != nil {
				return err
			}
		}

		for _, itemID := range orderItemIDs(lines, false) {
			id := itemID
			if err := s.log.Append(ctx, tx, activity.Entry{
				EntityType: enums.ActivityEntityOrder,
				EntityID:   order.ID,
				ItemID:     &id,
				Action:     enums.ActivityOrderStatusChanged,
				ActorID:    actorID,
				FromStatus: string(from),
				ToStatus:   string(next),
			}); err != nil {
				return err
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.Actor(actorID, eventSource),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				SupplierID: order.SupplierID,
				FromStatus: from,
				ToStatus:   next,
				ItemIDs:    itemIDs,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
		}
		result = &OrderResult{Order: *order, Changed: true, Items: advanced}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": result.Order.ID.String(),
			"status":   string(result.Order.Status),
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"order_id": orderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListForClientQuote(ctx context.Context, clientQuoteID uuid.UUID) ([]models.Order, error) {
	if clientQuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}
	rows, err := s.repo.ListForClientQuote(ctx, clientQuoteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// orderItemIDs returns the distinct item ids of the lines, sorted. With itemLevelOnly, lines
// that buy a component are skipped.
func orderItemIDs(lines []models.OrderItem, itemLevelOnly bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if itemLevelOnly && line.ComponentID != nil {
			continue
		}
		ids = append(ids, line.ItemID)
	}
	return items.SortIDs(ids)
}
