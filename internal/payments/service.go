package payments

import (
	"context"
	"fmt"
	"strings"
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

const eventSource = "payments"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

type statusAdvancer interface {
	AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input status.AdvanceInput) (*status.AdvanceResult, error)
}

// Service records client payments and allocates them across the invoiced items.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.Payment, error)
	Allocate(ctx context.Context, paymentID uuid.UUID, actorID *uuid.UUID) (*AllocateResult, error)
	RecordAndAllocate(ctx context.Context, input RecordInput) (*AllocateResult, error)
}

// RecordInput is a payment received against an invoiced client quote.
type RecordInput struct {
	ClientQuoteID uuid.UUID
	Amount        decimal.Decimal
	Currency      enums.Currency
	PaidAt        *time.Time
	Reference     *string
	ActorID       *uuid.UUID
}

// AllocateResult lists the stored allocations and the items they touched. Changed is false
// when the payment had already been allocated.
type AllocateResult struct {
	Payment      models.Payment
	Allocations  []models.PaymentAllocation
	UpdatedItems []models.Item
	Changed      bool
}

type service struct {
	repo      Repository
	items     items.Repository
	tx        txRunner
	log       activityAppender
	outbox    outbox.Emitter
	status    statusAdvancer
	logg      *logger.Logger
	ops       *metrics.OperationMetrics
	tolerance decimal.Decimal
	nowFunc   func() time.Time
}

// NewService builds the payment allocator. tolerance bounds both the overpayment check and
// the FULLY_PAID threshold. ops may be nil.
func NewService(repo Repository, itemsRepo items.Repository, tx txRunner, log activityAppender, emitter outbox.Emitter, engine statusAdvancer, logg *logger.Logger, ops *metrics.OperationMetrics, tolerance decimal.Decimal) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
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
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("payment tolerance must not be negative")
	}
	return &service{
		repo:      repo,
		items:     itemsRepo,
		tx:        tx,
		log:       log,
		outbox:    emitter,
		status:    engine,
		logg:      logg,
		ops:       ops,
		tolerance: tolerance,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (payment *models.Payment, err error) {
	defer s.ops.Observe("payments.record", time.Now(), &err)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		payment, txErr = s.recordTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) Allocate(ctx context.Context, paymentID uuid.UUID, actorID *uuid.UUID) (result *AllocateResult, err error) {
	defer s.ops.Observe("payments.allocate", time.Now(), &err)
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.allocateTx(ctx, tx, paymentID, actorID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.logAllocation(ctx, result)
	return result, nil
}

// RecordAndAllocate stores and allocates a payment in one transaction, so an overpayment
// leaves no payment row behind.
func (s *service) RecordAndAllocate(ctx context.Context, input RecordInput) (result *AllocateResult, err error) {
	defer s.ops.Observe("payments.record_and_allocate", time.Now(), &err)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payment, txErr := s.recordTx(ctx, tx, input)
		if txErr != nil {
			return txErr
		}
		result, txErr = s.allocateTx(ctx, tx, payment.ID, input.ActorID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.logAllocation(ctx, result)
	return result, nil
}

func (s *service) recordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Payment, error) {
	if input.ClientQuoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !money.IsWholeMinorUnits(input.Amount, input.Currency) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount has more precision than the currency allows")
	}

	repo := s.repo.WithTx(tx)
	quote, err := repo.FindClientQuote(ctx, input.ClientQuoteID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client quote not found").
				WithDetails(map[string]any{"client_quote_id": input.ClientQuoteID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client quote")
	}
	if quote.Status != enums.ClientQuoteStatusInvoiced {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "client quote is %s, payments require INVOICED", quote.Status).
			WithDetails(map[string]any{"client_quote_id": quote.ID, "status": string(quote.Status)})
	}
	if quote.Currency != input.Currency {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment currency %s does not match client quote currency %s", input.Currency, quote.Currency)
	}

	paidAt := s.nowFunc()
	if input.PaidAt != nil && !input.PaidAt.IsZero() {
		paidAt = input.PaidAt.UTC()
	}
	var reference *string
	if input.Reference != nil {
		if trimmed := strings.TrimSpace(*input.Reference); trimmed != "" {
			reference = &trimmed
		}
	}
	payment := &models.Payment{
		ClientQuoteID: quote.ID,
		Amount:        input.Amount,
		Currency:      input.Currency,
		PaidAt:        paidAt,
		Reference:     reference,
		RecordedByID:  input.ActorID,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	if err := s.log.Append(ctx, tx, activity.Entry{
		EntityType: enums.ActivityEntityPayment,
		EntityID:   payment.ID,
		Action:     enums.ActivityPaymentRecorded,
		ActorID:    input.ActorID,
		Details: map[string]any{
			"client_quote_id": quote.ID,
			"amount":          payment.Amount.StringFixed(input.Currency.MinorUnits()),
			"currency":        string(payment.Currency),
		},
	}); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) allocateTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, actorID *uuid.UUID) (*AllocateResult, error) {
	repo := s.repo.WithTx(tx)
	itemsRepo := s.items.WithTx(tx)

	payment, err := repo.FindPaymentForUpdate(ctx, paymentID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found").
				WithDetails(map[string]any{"payment_id": paymentID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
	}
	if payment.AllocatedAt != nil {
		return s.storedResult(ctx, repo, itemsRepo, payment)
	}

	lines, err := repo.ListClientQuoteLines(ctx, payment.ClientQuoteID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list client quote lines")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote has no line items").
			WithDetails(map[string]any{"client_quote_id": payment.ClientQuoteID})
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	locked, err := itemsRepo.FindManyForUpdate(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock items")
	}
	byID := make(map[uuid.UUID]*models.Item, len(locked))
	for i := range locked {
		byID[locked[i].ID] = &locked[i]
	}

	shares := make([]Share, 0, len(lines))
	for _, line := range lines {
		if _, ok := byID[line.ItemID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		shares = append(shares, Share{Key: line.ItemID, Weight: line.ClientPrice})
	}
	parts, err := Split(payment.Amount, shares, payment.Currency)
	if err != nil {
		return nil, err
	}

	if err := s.checkOverpayment(lines, parts, byID, payment.Currency); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	allocations := make([]models.PaymentAllocation, 0, len(lines))
	updated := make([]models.Item, 0, len(lines))
	for i, line := range lines {
		amount := parts[i]
		if amount.IsZero() {
			continue
		}
		item := byID[line.ItemID]
		fromPayment := item.PaymentStatus
		paid := item.PaidAmount.Add(amount)
		toPayment := s.paymentStatusFor(paid, item.ClientPrice)

		if err := itemsRepo.UpdateVersioned(ctx, item, map[string]any{
			"paid_amount":    paid,
			"payment_status": toPayment,
		}); err != nil {
			return nil, err
		}
		item.PaidAmount = paid
		item.PaymentStatus = toPayment

		allocations = append(allocations, models.PaymentAllocation{
			PaymentID:             payment.ID,
			ItemID:                item.ID,
			ClientQuoteLineItemID: line.ID,
			Amount:                amount,
		})

		if err := s.log.Append(ctx, tx, activity.Entry{
			EntityType: enums.ActivityEntityPayment,
			EntityID:   payment.ID,
			ItemID:     &item.ID,
			Action:     enums.ActivityPaymentAllocated,
			ActorID:    actorID,
			FromStatus: string(fromPayment),
			ToStatus:   string(toPayment),
			Details: map[string]any{
				"amount":      amount.StringFixed(payment.Currency.MinorUnits()),
				"paid_amount": paid.StringFixed(payment.Currency.MinorUnits()),
			},
		}); err != nil {
			return nil, err
		}

		if trigger, ok := paymentTrigger(fromPayment, toPayment); ok {
			if _, err := s.status.AdvanceLockedTx(ctx, tx, item, status.AdvanceInput{
				ItemID:  item.ID,
				Trigger: trigger,
				ActorID: actorID,
				Details: map[string]any{"payment_id": payment.ID},
			}); err != nil {
				return nil, err
			}
			if err := s.emitReceived(ctx, tx, payment, actorID, now, payloads.PaymentAllocationLine{
				ItemID:        item.ID,
				Amount:        amount,
				PaidAmount:    paid,
				PaymentStatus: toPayment,
				ItemStatus:    item.CurrentStatus,
			}); err != nil {
				return nil, err
			}
		}
		updated = append(updated, *item)
	}

	if err := repo.CreateAllocations(ctx, allocations); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create allocations")
	}
	if err := repo.MarkAllocated(ctx, payment.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment allocated")
	}
	payment.AllocatedAt = &now

	return &AllocateResult{Payment: *payment, Allocations: allocations, UpdatedItems: updated, Changed: true}, nil
}

func (s *service) storedResult(ctx context.Context, repo Repository, itemsRepo items.Repository, payment *models.Payment) (*AllocateResult, error) {
	allocations, err := repo.ListAllocations(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list allocations")
	}
	updated := make([]models.Item, 0, len(allocations))
	for _, allocation := range allocations {
		item, err := itemsRepo.FindByID(ctx, allocation.ItemID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
		}
		updated = append(updated, *item)
	}
	return &AllocateResult{Payment: *payment, Allocations: allocations, UpdatedItems: updated}, nil
}

func (s *service) checkOverpayment(lines []models.ClientQuoteLineItem, parts []decimal.Decimal, byID map[uuid.UUID]*models.Item, currency enums.Currency) error {
	var over []map[string]any
	for i, line := range lines {
		item := byID[line.ItemID]
		paid := item.PaidAmount.Add(parts[i])
		limit := item.ClientPrice.Add(s.tolerance)
		if paid.GreaterThan(limit) {
			over = append(over, map[string]any{
				"item_id":      item.ID,
				"client_price": item.ClientPrice.StringFixed(currency.MinorUnits()),
				"paid_amount":  paid.StringFixed(currency.MinorUnits()),
				"excess":       paid.Sub(item.ClientPrice).StringFixed(currency.MinorUnits()),
			})
		}
	}
	if len(over) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeOverpayment, "payment exceeds the outstanding balance of at least one item").
		WithDetails(map[string]any{"items": over})
}

func (s *service) paymentStatusFor(paid, clientPrice decimal.Decimal) enums.PaymentStatus {
	switch {
	case !paid.IsPositive():
		return enums.PaymentStatusInvoiced
	case paid.GreaterThanOrEqual(clientPrice.Sub(s.tolerance)):
		return enums.PaymentStatusFullyPaid
	default:
		return enums.PaymentStatusDepositPaid
	}
}

// paymentTrigger reports the status trigger for the first arrival at DEPOSIT_PAID or FULLY_PAID.
func paymentTrigger(from, to enums.PaymentStatus) (enums.TriggerEvent, bool) {
	if from == to {
		return "", false
	}
	switch to {
	case enums.PaymentStatusDepositPaid:
		return enums.TriggerPaymentReceived, true
	case enums.PaymentStatusFullyPaid:
		return enums.TriggerPaymentCompleted, true
	}
	return "", false
}

func (s *service) emitReceived(ctx context.Context, tx *gorm.DB, payment *models.Payment, actorID *uuid.UUID, at time.Time, line payloads.PaymentAllocationLine) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentReceived,
		AggregateType: enums.AggregateClientQuote,
		AggregateID:   payment.ClientQuoteID,
		Actor:         outbox.Actor(actorID, eventSource),
		OccurredAt:    at,
		Data: payloads.PaymentReceivedEvent{
			PaymentID:     payment.ID,
			ClientQuoteID: payment.ClientQuoteID,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			PaidAt:        payment.PaidAt,
			Allocations:   []payloads.PaymentAllocationLine{line},
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment received")
	}
	return nil
}

func (s *service) logAllocation(ctx context.Context, result *AllocateResult) {
	if result == nil || !result.Changed {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id":      result.Payment.ID.String(),
		"client_quote_id": result.Payment.ClientQuoteID.String(),
		"allocations":     len(result.Allocations),
	})
	s.logg.Info(logCtx, "payment allocated")
}
