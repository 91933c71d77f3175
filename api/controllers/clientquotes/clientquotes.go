package clientquotes

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/api/controllers/dto"
	"github.com/angelmondragon/ffe-procurement/api/middleware"
	"github.com/angelmondragon/ffe-procurement/api/responses"
	"github.com/angelmondragon/ffe-procurement/api/validators"
	internalcq "github.com/angelmondragon/ffe-procurement/internal/clientquotes"
	"github.com/angelmondragon/ffe-procurement/internal/orders"
	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

type paymentRecorder interface {
	RecordAndAllocate(ctx context.Context, input payments.RecordInput) (*payments.AllocateResult, error)
}

type orderCreator interface {
	CreateOrders(ctx context.Context, clientQuoteID uuid.UUID, actorID *uuid.UUID) ([]orders.OrderResult, error)
	ListForClientQuote(ctx context.Context, clientQuoteID uuid.UUID) ([]models.Order, error)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*internalcq.TransitionResult, error)

type buildRequest struct {
	ProjectID     string   `json:"project_id" validate:"required,uuid"`
	ItemIDs       []string `json:"item_ids" validate:"required,min=1,dive,uuid"`
	MarkupPercent string   `json:"markup_percent" validate:"required,decimal"`
	Currency      string   `json:"currency" validate:"required,currency"`
}

type transitionResponse struct {
	ClientQuote dto.ClientQuoteView `json:"client_quote"`
	Changed     bool                `json:"changed"`
	Items       []dto.AdvanceView   `json:"items"`
}

type paymentRequest struct {
	Amount    string     `json:"amount" validate:"required,decimal"`
	Currency  string     `json:"currency" validate:"required,currency"`
	PaidAt    *time.Time `json:"paid_at"`
	Reference *string    `json:"reference" validate:"omitempty,max=255"`
}

type orderResponse struct {
	Order   dto.OrderView     `json:"order"`
	Changed bool              `json:"changed"`
	Items   []dto.AdvanceView `json:"items"`
}

// Build prices a client quote from the items' accepted quotes.
func Build(svc internalcq.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req buildRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		markup, err := validators.ParseDecimal("markup_percent", req.MarkupPercent)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(req.ItemIDs))
		for _, raw := range req.ItemIDs {
			ids = append(ids, uuid.MustParse(raw))
		}
		cq, err := svc.Build(r.Context(), internalcq.BuildInput{
			ProjectID:     uuid.MustParse(req.ProjectID),
			ItemIDs:       ids,
			MarkupPercent: markup,
			Currency:      enums.Currency(req.Currency),
			ActorID:       middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.FromClientQuote(*cq))
	}
}

func Get(svc internalcq.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "clientQuoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cq, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromClientQuote(*cq))
	}
}

// Send, Approve and Invoice move the client quote one stage forward.
func Send(svc internalcq.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc.Send, logg)
}

func Approve(svc internalcq.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc.Approve, logg)
}

func Invoice(svc internalcq.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc.Invoice, logg)
}

func transition(fn transitionFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "clientQuoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transitionResponse{
			ClientQuote: dto.FromClientQuote(result.ClientQuote),
			Changed:     result.Changed,
			Items:       dto.FromAdvances(result.Items),
		})
	}
}

// RecordPayment records a client payment and allocates it across the quote's lines.
// The route sits behind the Idempotency-Key middleware.
func RecordPayment(svc paymentRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "clientQuoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req paymentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseDecimal("amount", req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RecordAndAllocate(r.Context(), payments.RecordInput{
			ClientQuoteID: id,
			Amount:        amount,
			Currency:      enums.Currency(req.Currency),
			PaidAt:        req.PaidAt,
			Reference:     req.Reference,
			ActorID:       middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.FromPaymentResult(result.Payment, result.Allocations, result.UpdatedItems, result.Changed))
	}
}

// CreateOrders places one supplier order per supplier for the paid, unordered lines.
func CreateOrders(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "clientQuoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		results, err := svc.CreateOrders(r.Context(), id, middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]orderResponse, 0, len(results))
		for _, res := range results {
			out = append(out, orderResponse{
				Order:   dto.FromOrder(res.Order),
				Changed: res.Changed,
				Items:   dto.FromAdvances(res.Items),
			})
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

func ListOrders(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "clientQuoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForClientQuote(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromOrders(list))
	}
}
