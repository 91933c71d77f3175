package quotes

import (
	"context"
	"fmt"
	"iter"
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
)

// maxChainLength bounds History walks over previous_version_id.
const maxChainLength = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

type statusAdvancer interface {
	AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input status.AdvanceInput) (*status.AdvanceResult, error)
}

// Registry ingests supplier quotes and serves comparisons over their latest versions.
type Registry interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	Comparison(ctx context.Context, itemID uuid.UUID) iter.Seq2[QuoteSummary, error]
	ComponentComparison(ctx context.Context, itemID, componentID uuid.UUID) iter.Seq2[QuoteSummary, error]
	History(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error)
	Get(ctx context.Context, quoteID uuid.UUID) (*models.QuoteLineItem, error)
}

// IngestInput is one supplier offer for an item, or for one of its components when
// ComponentID is set. TotalPrice defaults to UnitPrice times the target quantity.
type IngestInput struct {
	ItemID       uuid.UUID
	ComponentID  *uuid.UUID
	SupplierID   uuid.UUID
	UnitPrice    decimal.Decimal
	TotalPrice   *decimal.Decimal
	Currency     enums.Currency
	LeadTimeDays int
	DocumentRef  *string
	ValidUntil   *time.Time
	Notes        *string
	ActorID      *uuid.UUID
}

// IngestResult carries the new quote. ReviewRequired is set when the superseded version is
// still the accepted one; it stays accepted until a newer version is accepted explicitly.
type IngestResult struct {
	Quote          models.QuoteLineItem
	Superseded     *models.QuoteLineItem
	ReviewRequired bool
	Status         *status.AdvanceResult
}

// QuoteSummary annotates a latest-version quote for side-by-side comparison. DeltaToAccepted
// is nil while the target has no accepted quote.
type QuoteSummary struct {
	Quote           models.QuoteLineItem
	DeltaToMinimum  decimal.Decimal
	DeltaToAccepted *decimal.Decimal
	IsMinimum       bool
	IsAccepted      bool
}

type registry struct {
	repo   Repository
	items  items.Repository
	tx     txRunner
	log    activityAppender
	status statusAdvancer
	logg   *logger.Logger
	ops    *metrics.OperationMetrics
}

// NewRegistry builds the quote registry. ops may be nil.
func NewRegistry(repo Repository, itemsRepo items.Repository, tx txRunner, log activityAppender, engine statusAdvancer, logg *logger.Logger, ops *metrics.OperationMetrics) (Registry, error) {
	if repo == nil {
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
	if engine == nil {
		return nil, fmt.Errorf("status engine required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &registry{repo: repo, items: itemsRepo, tx: tx, log: log, status: engine, logg: logg, ops: ops}, nil
}

func (r *registry) Ingest(ctx context.Context, input IngestInput) (result *IngestResult, err error) {
	defer r.ops.Observe("quotes.ingest", time.Now(), &err)
	if err := validateIngest(input); err != nil {
		return nil, err
	}

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		itemsRepo := r.items.WithTx(tx)
		quotesRepo := r.repo.WithTx(tx)

		item, err := itemsRepo.FindForUpdate(ctx, input.ItemID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
					WithDetails(map[string]any{"item_id": input.ItemID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock item")
		}
		quantity := item.Quantity
		if input.ComponentID != nil {
			component, err := itemsRepo.FindComponentForUpdate(ctx, *input.ComponentID)
			if err != nil {
				if dbpkg.IsNotFound(err) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "component not found").
						WithDetails(map[string]any{"component_id": *input.ComponentID})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock component")
			}
			if component.ItemID != item.ID {
				return pkgerrors.New(pkgerrors.CodeValidation, "component does not belong to item").
					WithDetails(map[string]any{"item_id": item.ID, "component_id": component.ID})
			}
			quantity = component.Quantity
		}
		if input.Currency != item.Currency {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "quote currency %s does not match item currency %s", input.Currency, item.Currency)
		}

		total := money.Round(input.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))), input.Currency)
		if input.TotalPrice != nil {
			total = *input.TotalPrice
		}

		quote := models.QuoteLineItem{
			ItemID:          item.ID,
			ComponentID:     input.ComponentID,
			SupplierID:      input.SupplierID,
			UnitPrice:       input.UnitPrice,
			TotalPrice:      total,
			Currency:        input.Currency,
			LeadTimeDays:    input.LeadTimeDays,
			DocumentRef:     input.DocumentRef,
			ValidUntil:      input.ValidUntil,
			Notes:           input.Notes,
			Version:         1,
			IsLatestVersion: true,
		}
		res := &IngestResult{}

		prev, err := quotesRepo.FindLatestForSupplier(ctx, item.ID, input.ComponentID, input.SupplierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest quote")
		}
		if prev != nil {
			if err := quotesRepo.MarkSuperseded(ctx, prev.ID); err != nil {
				return err
			}
			prev.IsLatestVersion = false
			quote.Version = prev.Version + 1
			quote.PreviousVersionID = &prev.ID
			res.Superseded = prev
			res.ReviewRequired = prev.IsAccepted
		}
		if err := quotesRepo.Create(ctx, &quote); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "concurrent quote version")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create quote")
		}
		res.Quote = quote

		action := enums.ActivityQuoteIngested
		if prev != nil {
			action = enums.ActivityQuoteSuperseded
		}
		details := map[string]any{
			"supplier_id":     quote.SupplierID,
			"unit_price":      quote.UnitPrice.StringFixed(quote.Currency.MinorUnits()),
			"version":         quote.Version,
			"review_required": res.ReviewRequired,
		}
		if quote.ComponentID != nil {
			details["component_id"] = *quote.ComponentID
		}
		if prev != nil {
			details["previous_version_id"] = prev.ID
		}
		if err := r.log.Append(ctx, tx, activity.Entry{
			EntityType: enums.ActivityEntityQuote,
			EntityID:   quote.ID,
			ItemID:     &item.ID,
			Action:     action,
			ActorID:    input.ActorID,
			Details:    details,
		}); err != nil {
			return err
		}

		if !quote.TargetsComponent() {
			advanced, err := r.status.AdvanceLockedTx(ctx, tx, item, status.AdvanceInput{
				ItemID:  item.ID,
				Trigger: enums.TriggerQuoteReceived,
				ActorID: input.ActorID,
				Details: map[string]any{"quote_id": quote.ID},
			})
			if err != nil {
				return err
			}
			res.Status = advanced
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.ReviewRequired {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"item_id":  result.Quote.ItemID.String(),
			"quote_id": result.Quote.ID.String(),
		})
		r.logg.Warn(logCtx, "accepted quote superseded; review required")
	}
	return result, nil
}

func (r *registry) Comparison(ctx context.Context, itemID uuid.UUID) iter.Seq2[QuoteSummary, error] {
	return r.comparison(ctx, func() (uuid.UUID, *uuid.UUID, error) {
		if itemID == uuid.Nil {
			return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
		}
		if _, err := r.items.FindByID(ctx, itemID); err != nil {
			if dbpkg.IsNotFound(err) {
				return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
					WithDetails(map[string]any{"item_id": itemID})
			}
			return uuid.Nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
		}
		return itemID, nil, nil
	})
}

// ComponentComparison ranks the quotes of one component. The component must belong to itemID.
func (r *registry) ComponentComparison(ctx context.Context, itemID, componentID uuid.UUID) iter.Seq2[QuoteSummary, error] {
	return r.comparison(ctx, func() (uuid.UUID, *uuid.UUID, error) {
		if componentID == uuid.Nil {
			return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "component id required")
		}
		component, err := r.items.FindComponent(ctx, componentID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "component not found").
					WithDetails(map[string]any{"component_id": componentID})
			}
			return uuid.Nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load component")
		}
		if component.ItemID != itemID {
			return uuid.Nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "component does not belong to item").
				WithDetails(map[string]any{"item_id": itemID, "component_id": component.ID})
		}
		return component.ItemID, &component.ID, nil
	})
}

// comparison defers all reads until the sequence is ranged over, so every iteration sees
// current data.
func (r *registry) comparison(ctx context.Context, resolve func() (uuid.UUID, *uuid.UUID, error)) iter.Seq2[QuoteSummary, error] {
	return func(yield func(QuoteSummary, error) bool) {
		itemID, componentID, err := resolve()
		if err != nil {
			yield(QuoteSummary{}, err)
			return
		}
		latest, err := r.repo.ListLatest(ctx, itemID, componentID)
		if err != nil {
			yield(QuoteSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list latest quotes"))
			return
		}
		accepted, err := r.repo.FindAccepted(ctx, itemID, componentID)
		if err != nil {
			yield(QuoteSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load accepted quote"))
			return
		}
		for _, summary := range summarize(latest, accepted) {
			if !yield(summary, nil) {
				return
			}
		}
	}
}

// summarize orders quotes by unit price, then supplier id, and annotates deltas.
func summarize(latest []models.QuoteLineItem, accepted *models.QuoteLineItem) []QuoteSummary {
	if len(latest) == 0 {
		return nil
	}
	sorted := make([]models.QuoteLineItem, len(latest))
	copy(sorted, latest)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].UnitPrice.Cmp(sorted[j].UnitPrice); c != 0 {
			return c < 0
		}
		return sorted[i].SupplierID.String() < sorted[j].SupplierID.String()
	})

	minimum := sorted[0].UnitPrice
	out := make([]QuoteSummary, 0, len(sorted))
	for _, quote := range sorted {
		summary := QuoteSummary{
			Quote:          quote,
			DeltaToMinimum: quote.UnitPrice.Sub(minimum),
			IsMinimum:      quote.UnitPrice.Equal(minimum),
		}
		if accepted != nil {
			delta := quote.UnitPrice.Sub(accepted.UnitPrice)
			summary.DeltaToAccepted = &delta
			summary.IsAccepted = quote.ID == accepted.ID
		}
		out = append(out, summary)
	}
	return out
}

// History returns the version chain that contains quoteID, newest first.
func (r *registry) History(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error) {
	quote, err := r.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	rows, err := r.repo.ListChain(ctx, quote.ItemID, quote.ComponentID, quote.SupplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quote chain")
	}
	byID := make(map[uuid.UUID]models.QuoteLineItem, len(rows))
	var head *models.QuoteLineItem
	for i := range rows {
		byID[rows[i].ID] = rows[i]
		if rows[i].IsLatestVersion && head == nil {
			head = &rows[i]
		}
	}
	if head == nil {
		head = quote
	}

	chain := make([]models.QuoteLineItem, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	cur, ok := *head, true
	for ok && len(chain) < maxChainLength {
		if _, dup := seen[cur.ID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "quote version chain has a cycle").
				WithDetails(map[string]any{"quote_id": cur.ID})
		}
		seen[cur.ID] = struct{}{}
		chain = append(chain, cur)
		if cur.PreviousVersionID == nil {
			break
		}
		cur, ok = byID[*cur.PreviousVersionID]
	}
	return chain, nil
}

func (r *registry) Get(ctx context.Context, quoteID uuid.UUID) (*models.QuoteLineItem, error) {
	if quoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote id required")
	}
	quote, err := r.repo.FindByID(ctx, quoteID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found").
				WithDetails(map[string]any{"quote_id": quoteID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
	}
	return quote, nil
}

func validateIngest(input IngestInput) error {
	if input.ItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.ComponentID != nil && *input.ComponentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "component id must not be empty")
	}
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	if !input.UnitPrice.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must be positive")
	}
	if !money.IsWholeMinorUnits(input.UnitPrice, input.Currency) {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price has more precision than the currency allows")
	}
	if input.TotalPrice != nil {
		if !input.TotalPrice.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "total price must be positive")
		}
		if !money.IsWholeMinorUnits(*input.TotalPrice, input.Currency) {
			return pkgerrors.New(pkgerrors.CodeValidation, "total price has more precision than the currency allows")
		}
	}
	if input.LeadTimeDays < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "lead time must not be negative")
	}
	return nil
}
