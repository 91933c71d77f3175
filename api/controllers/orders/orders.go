package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/api/controllers/dto"
	"github.com/angelmondragon/ffe-procurement/api/middleware"
	"github.com/angelmondragon/ffe-procurement/api/responses"
	"github.com/angelmondragon/ffe-procurement/api/validators"
	internalorders "github.com/angelmondragon/ffe-procurement/internal/orders"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

type orderService interface {
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actorID *uuid.UUID) (*internalorders.OrderResult, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=PLACED SHIPPED RECEIVED INSTALLED CLOSED"`
}

type statusResponse struct {
	Order   dto.OrderView     `json:"order"`
	Changed bool              `json:"changed"`
	Items   []dto.AdvanceView `json:"items"`
}

// UpdateStatus moves a supplier order forward and advances only that order's items.
func UpdateStatus(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}
		result, err := svc.UpdateOrderStatus(r.Context(), orderID, next, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusResponse{
			Order:   dto.FromOrder(result.Order),
			Changed: result.Changed,
			Items:   dto.FromAdvances(result.Items),
		})
	}
}

func Get(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromOrder(*order))
	}
}
