package items

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/api/controllers/dto"
	"github.com/angelmondragon/ffe-procurement/api/middleware"
	"github.com/angelmondragon/ffe-procurement/api/responses"
	"github.com/angelmondragon/ffe-procurement/api/validators"
	"github.com/angelmondragon/ffe-procurement/internal/activity"
	internalitems "github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

type activityLister interface {
	ListForItem(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error)
}

type advancer interface {
	Advance(ctx context.Context, input status.AdvanceInput) (*status.AdvanceResult, error)
	AdvanceMany(ctx context.Context, input status.AdvanceManyInput) ([]status.AdvanceResult, error)
}

type registerRequest struct {
	ProjectID string `json:"project_id" validate:"required,uuid"`
	Name      string `json:"name" validate:"required,max=255"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Currency  string `json:"currency" validate:"omitempty,currency"`
}

type registerComponentRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type advanceRequest struct {
	Trigger string `json:"trigger" validate:"required"`
}

type advanceManyRequest struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1,dive,uuid"`
	Trigger string   `json:"trigger" validate:"required"`
}

// Register creates an item on a project's FFE schedule.
func Register(svc internalitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Register(r.Context(), internalitems.RegisterInput{
			ProjectID: uuid.MustParse(req.ProjectID),
			Name:      validators.SanitizeString(req.Name, 255),
			Quantity:  req.Quantity,
			Currency:  enums.Currency(req.Currency),
			ActorID:   middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.FromItem(*item))
	}
}

// RegisterComponent adds a component under an item.
func RegisterComponent(svc internalitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req registerComponentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		component, err := svc.RegisterComponent(r.Context(), internalitems.RegisterComponentInput{
			ItemID:   itemID,
			Name:     validators.SanitizeString(req.Name, 255),
			Quantity: req.Quantity,
			ActorID:  middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.FromComponent(*component))
	}
}

// Summary returns the item with its components and accepted quotes.
func Summary(svc internalitems.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromSummary(*summary))
	}
}

// Activity lists the item's activity entries, newest first.
func Activity(log activityLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", activity.DefaultListLimit, 1, activity.MaxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := log.ListForItem(r.Context(), itemID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromActivity(entries))
	}
}

// Advance applies a trigger to one item. Stale triggers answer 200 with changed=false.
func Advance(engine advancer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req advanceRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		trigger, err := parseTrigger(req.Trigger)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.Advance(r.Context(), status.AdvanceInput{
			ItemID:  itemID,
			Trigger: trigger,
			ActorID: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromAdvance(*result))
	}
}

// AdvanceMany applies one trigger to a batch of items in a single transaction.
func AdvanceMany(engine advancer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req advanceManyRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		trigger, err := parseTrigger(req.Trigger)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(req.ItemIDs))
		for _, raw := range req.ItemIDs {
			ids = append(ids, uuid.MustParse(raw))
		}
		results, err := engine.AdvanceMany(r.Context(), status.AdvanceManyInput{
			ItemIDs: ids,
			Trigger: trigger,
			ActorID: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromAdvances(results))
	}
}

func parseTrigger(raw string) (enums.TriggerEvent, error) {
	trigger, err := enums.ParseTriggerEvent(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown trigger").WithDetails(map[string]string{"trigger": raw})
	}
	return trigger, nil
}
