package status

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/internal/activity"
	"github.com/angelmondragon/ffe-procurement/internal/items"
	dbpkg "github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type activityAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry activity.Entry) error
}

// Engine is the single writer of Item.current_status.
type Engine interface {
	Advance(ctx context.Context, input AdvanceInput) (*AdvanceResult, error)
	AdvanceMany(ctx context.Context, input AdvanceManyInput) ([]AdvanceResult, error)
	AdvanceTx(ctx context.Context, tx *gorm.DB, input AdvanceInput) (*AdvanceResult, error)
	AdvanceManyTx(ctx context.Context, tx *gorm.DB, input AdvanceManyInput) ([]AdvanceResult, error)
	AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input AdvanceInput) (*AdvanceResult, error)
}

// AdvanceInput asks the engine to apply one trigger to one item.
type AdvanceInput struct {
	ItemID  uuid.UUID
	Trigger enums.TriggerEvent
	ActorID *uuid.UUID
	Details any
}

// AdvanceManyInput applies one trigger to a batch of items.
type AdvanceManyInput struct {
	ItemIDs []uuid.UUID
	Trigger enums.TriggerEvent
	ActorID *uuid.UUID
	Details any
}

// AdvanceResult reports the item after the trigger. Changed is false for stale or
// repeated triggers, which are not errors.
type AdvanceResult struct {
	Item    models.Item
	Changed bool
	From    enums.ItemStatus
	To      enums.ItemStatus
}

type engine struct {
	items    items.Repository
	tx       txRunner
	activity activityAppender
	logg     *logger.Logger
	ops      *metrics.OperationMetrics
}

// NewEngine builds the status engine. ops may be nil.
func NewEngine(repo items.Repository, tx txRunner, log activityAppender, logg *logger.Logger, ops *metrics.OperationMetrics) (Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("items repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if log == nil {
		return nil, fmt.Errorf("activity log required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &engine{items: repo, tx: tx, activity: log, logg: logg, ops: ops}, nil
}

func (e *engine) Advance(ctx context.Context, input AdvanceInput) (result *AdvanceResult, err error) {
	defer e.ops.Observe("status.advance", time.Now(), &err)
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = e.AdvanceTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *engine) AdvanceMany(ctx context.Context, input AdvanceManyInput) (results []AdvanceResult, err error) {
	defer e.ops.Observe("status.advance_many", time.Now(), &err)
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		results, txErr = e.AdvanceManyTx(ctx, tx, input)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *engine) AdvanceTx(ctx context.Context, tx *gorm.DB, input AdvanceInput) (*AdvanceResult, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if _, err := targetOf(input.Trigger); err != nil {
		return nil, err
	}
	item, err := e.items.WithTx(tx).FindForUpdate(ctx, input.ItemID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
				WithDetails(map[string]any{"item_id": input.ItemID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock item")
	}
	return e.AdvanceLockedTx(ctx, tx, item, input)
}

func (e *engine) AdvanceManyTx(ctx context.Context, tx *gorm.DB, input AdvanceManyInput) ([]AdvanceResult, error) {
	if _, err := targetOf(input.Trigger); err != nil {
		return nil, err
	}
	ids := items.SortIDs(input.ItemIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item id required")
	}

	rows, err := e.items.WithTx(tx).FindManyForUpdate(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock items")
	}
	if len(rows) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found").
			WithDetails(map[string]any{"missing_item_ids": missingIDs(ids, rows)})
	}

	results := make([]AdvanceResult, 0, len(rows))
	for i := range rows {
		res, err := e.AdvanceLockedTx(ctx, tx, &rows[i], AdvanceInput{
			ItemID:  rows[i].ID,
			Trigger: input.Trigger,
			ActorID: input.ActorID,
			Details: input.Details,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// AdvanceLockedTx applies the trigger to an item the caller already holds the row lock
// for. The item is updated in place, including its version.
func (e *engine) AdvanceLockedTx(ctx context.Context, tx *gorm.DB, item *models.Item, input AdvanceInput) (*AdvanceResult, error) {
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item required")
	}
	target, err := targetOf(input.Trigger)
	if err != nil {
		return nil, err
	}

	from := item.CurrentStatus
	if target.Rank() <= from.Rank() {
		return &AdvanceResult{Item: *item, Changed: false, From: from, To: from}, nil
	}

	if err := e.items.WithTx(tx).UpdateVersioned(ctx, item, map[string]any{"current_status": target}); err != nil {
		return nil, err
	}
	item.CurrentStatus = target

	trigger := input.Trigger
	if err := e.activity.Append(ctx, tx, activity.Entry{
		EntityType: enums.ActivityEntityItem,
		EntityID:   item.ID,
		ItemID:     &item.ID,
		Action:     enums.ActivityStatusAdvanced,
		Trigger:    &trigger,
		ActorID:    input.ActorID,
		FromStatus: string(from),
		ToStatus:   string(target),
		Details:    input.Details,
	}); err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"item_id": item.ID.String(),
		"trigger": string(trigger),
		"from":    string(from),
		"to":      string(target),
	})
	e.logg.Info(logCtx, "item status advanced")

	return &AdvanceResult{Item: *item, Changed: true, From: from, To: target}, nil
}

func targetOf(trigger enums.TriggerEvent) (enums.ItemStatus, error) {
	target, ok := TargetFor(trigger)
	if !ok {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown trigger %q", trigger).
			WithDetails(map[string]any{"trigger": string(trigger)})
	}
	return target, nil
}

func missingIDs(want []uuid.UUID, got []models.Item) []uuid.UUID {
	found := make(map[uuid.UUID]struct{}, len(got))
	for _, item := range got {
		found[item.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range want {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
