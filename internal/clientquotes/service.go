package clientquotes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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
	"github.com/angelmondragon/ffe-procurement/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

type statusAdvancer interface {
	AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input status.AdvanceInput) (*status.AdvanceResult, error)
}

// Service builds client budgets from accepted quotes and moves them toward invoicing.
type Service interface {
	Build(ctx context.Context, input BuildInput) (*models.ClientQuote, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error)
	Send(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error)
	Approve(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error)
	Invoice(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error)
}

// BuildInput selects the items to price for the client.
type BuildInput struct {
	ProjectID     uuid.UUID
	ItemIDs       []uuid.UUID
	MarkupPercent decimal.Decimal
	Currency      enums.Currency
	ActorID       *uuid.UUID
}

// TransitionResult reports the client quote after a stage change. Changed is false when the
// quote was already in the requested stage.
type TransitionResult struct {
	ClientQuote models.ClientQuote
	Changed     bool
	Items       []status.AdvanceResult
}

type stage struct {
	to      enums.ClientQuoteStatus
	trigger enums.TriggerEvent
	op      string
}

var (
	stageSend    = stage{to: enums.ClientQuoteStatusSent, trigger: enums.TriggerBudgetSent, op: "clientquotes.send"}
	stageApprove = stage{to: enums.ClientQuoteStatusApproved, trigger: enums.TriggerBudgetApproved, op: "clientquotes.approve"}
	stageInvoice = stage{to: enums.ClientQuoteStatusInvoiced, trigger: enums.TriggerInvoiceSent, op: "clientquotes.invoice"}
)

type service struct {
	repo    Repository
	items   items.Repository
	quotes  quotes.Repository
	tx      txRunner
	log     activityAppender
	status  statusAdvancer
	logg    *logger.Logger
	ops     *metrics.OperationMetrics
	nowFunc func() time.Time
}

// NewService builds the client quote service. ops may be nil.
func NewService(repo Repository, itemsRepo items.Repository, quotesRepo quotes.Repository, tx txRunner, log activityAppender, engine statusAdvancer, logg *logger.Logger, ops *metrics.OperationMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("client quotes repository required")
	}
	if itemsRepo == nil {
		return nil, fmt.Errorf("items repository required")
	}
	if quotesRepo == nil {
		return nil, fmt.Errorf("quotes repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("activity log required")
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
		quotes:  quotesRepo,
		tx:      tx,
		log:     log,
		status:  engine,
		logg:    logg,
		ops:     ops,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Build(ctx context.Context, input BuildInput) (quote *models.ClientQuote, err error) {
	defer s.ops.Observe("clientquotes.build", time.Now(), &err)
	if input.ProjectID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "project id required")
	}
	ids := items.SortIDs(input.ItemIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item id required")
	}
	if input.MarkupPercent.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "markup must not be negative")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		itemsRepo := s.items.WithTx(tx)
		quotesRepo := s.quotes.WithTx(tx)

		locked, err := itemsRepo.FindManyForUpdate(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock items")
		}
		if len(locked) != len(ids) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "one or more items not found").
				WithDetails(map[string]any{"item_ids": missing(ids, locked)})
		}

		cq := &models.ClientQuote{
			ProjectID:     input.ProjectID,
			Status:        enums.ClientQuoteStatusDraft,
			Currency:      input.Currency,
			MarkupPercent: input.MarkupPercent,
		}
		total := decimal.Zero
		for i := range locked {
			item := &locked[i]
			if item.ProjectID != input.ProjectID {
				return pkgerrors.New(pkgerrors.CodeValidation, "item belongs to another project").
					WithDetails(map[string]any{"item_id": item.ID})
			}
			if item.AcceptedQuoteID == nil {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "item has no accepted quote").
					WithDetails(map[string]any{"item_id": item.ID})
			}
			if item.Currency != input.Currency {
				return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "item currency %s does not match %s", item.Currency, input.Currency).
					WithDetails(map[string]any{"item_id": item.ID})
			}
			if item.PaymentStatus != enums.PaymentStatusNotInvoiced || item.PaidAmount.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition, "item is already invoiced or paid; its client price is fixed").
					WithDetails(map[string]any{
						"item_id":        item.ID,
						"payment_status": item.PaymentStatus,
						"paid_amount":    item.PaidAmount.StringFixed(item.Currency.MinorUnits()),
					})
			}
			accepted, err := quotesRepo.FindByID(ctx, *item.AcceptedQuoteID)
			if err != nil {
				if dbpkg.IsNotFound(err) {
					return pkgerrors.New(pkgerrors.CodeInvalidTransition, "accepted quote no longer exists").
						WithDetails(map[string]any{"item_id": item.ID, "quote_id": *item.AcceptedQuoteID})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load accepted quote")
			}

			unit := money.ApplyMarkup(item.TradePrice, input.MarkupPercent, input.Currency)
			clientPrice := money.Round(unit.Mul(decimal.NewFromInt(int64(item.Quantity))), input.Currency)
			if err := itemsRepo.UpdateVersioned(ctx, item, map[string]any{"client_price": clientPrice}); err != nil {
				return err
			}
			item.ClientPrice = clientPrice

			cq.LineItems = append(cq.LineItems, models.ClientQuoteLineItem{
				ItemID:          item.ID,
				QuoteLineItemID: accepted.ID,
				Quantity:        item.Quantity,
				UnitPrice:       unit,
				ClientPrice:     clientPrice,
			})
			total = total.Add(clientPrice)
		}
		cq.Total = total

		if err := s.repo.WithTx(tx).Create(ctx, cq); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create client quote")
		}
		for _, line := range cq.LineItems {
			itemID := line.ItemID
			if err := s.log.Append(ctx, tx, activity.Entry{
				EntityType: enums.ActivityEntityClientQuote,
				EntityID:   cq.ID,
				ItemID:     &itemID,
				Action:     enums.ActivityClientQuoteCreated,
				ActorID:    input.ActorID,
				ToStatus:   string(cq.Status),
				Details: map[string]any{
					"unit_price":   line.UnitPrice.StringFixed(input.Currency.MinorUnits()),
					"client_price": line.ClientPrice.StringFixed(input.Currency.MinorUnits()),
				},
			}); err != nil {
				return err
			}
		}
		quote = cq
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ClientQuote, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}
	quote, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client quote not found").
				WithDetails(map[string]any{"client_quote_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load client quote")
	}
	return quote, nil
}

func (s *service) Send(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error) {
	return s.transition(ctx, id, actorID, stageSend)
}

func (s *service) Approve(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error) {
	return s.transition(ctx, id, actorID, stageApprove)
}

func (s *service) Invoice(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error) {
	return s.transition(ctx, id, actorID, stageInvoice)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, next stage) (result *TransitionResult, err error) {
	defer s.ops.Observe(next.op, time.Now(), &err)
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client quote id required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cq, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "client quote not found").
					WithDetails(map[string]any{"client_quote_id": id})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock client quote")
		}
		lines, err := repo.ListLines(ctx, cq.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list client quote lines")
		}
		cq.LineItems = lines

		from := cq.Status
		switch {
		case from == next.to:
			result = &TransitionResult{ClientQuote: *cq}
			return nil
		case next.to.Rank() != from.Rank()+1:
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "client quote cannot move from %s to %s", from, next.to).
				WithDetails(map[string]any{"client_quote_id": cq.ID, "status": string(from)})
		}

		now := s.nowFunc()
		if err := repo.UpdateStatus(ctx, cq.ID, from, next.to, now); err != nil {
			return err
		}
		cq.Status = next.to
		switch next.to {
		case enums.ClientQuoteStatusSent:
			cq.SentAt = &now
		case enums.ClientQuoteStatusApproved:
			cq.ApprovedAt = &now
		case enums.ClientQuoteStatusInvoiced:
			cq.InvoicedAt = &now
		}

		ids := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ItemID)
		}
		itemsRepo := s.items.WithTx(tx)
		locked, err := itemsRepo.FindManyForUpdate(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock items")
		}

		advanced := make([]status.AdvanceResult, 0, len(locked))
		for i := range locked {
			item := &locked[i]
			if next.to == enums.ClientQuoteStatusInvoiced && item.PaymentStatus == enums.PaymentStatusNotInvoiced {
				if err := itemsRepo.UpdateVersioned(ctx, item, map[string]any{"payment_status": enums.PaymentStatusInvoiced}); err != nil {
					return err
				}
				item.PaymentStatus = enums.PaymentStatusInvoiced
			}
			res, err := s.status.AdvanceLockedTx(ctx, tx, item, status.AdvanceInput{
				ItemID:  item.ID,
				Trigger: next.trigger,
				ActorID: actorID,
				Details: map[string]any{"client_quote_id": cq.ID},
			})
			if err != nil {
				return err
			}
			advanced = append(advanced, *res)

			itemID := item.ID
			if err := s.log.Append(ctx, tx, activity.Entry{
				EntityType: enums.ActivityEntityClientQuote,
				EntityID:   cq.ID,
				ItemID:     &itemID,
				Action:     enums.ActivityClientQuoteAdvanced,
				ActorID:    actorID,
				FromStatus: string(from),
				ToStatus:   string(next.to),
			}); err != nil {
				return err
			}
		}
		result = &TransitionResult{ClientQuote: *cq, Changed: true, Items: advanced}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"client_quote_id": result.ClientQuote.ID.String(),
			"status":          string(result.ClientQuote.Status),
			"items":           len(result.Items),
		})
		s.logg.Info(logCtx, "client quote advanced")
	}
	return result, nil
}

func missing(want []uuid.UUID, got []models.Item) []uuid.UUID {
	found := make(map[uuid.UUID]struct{}, len(got))
	for _, item := range got {
		found[item.ID] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range want {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
