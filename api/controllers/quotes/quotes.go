package quotes

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/api/controllers/dto"
	"github.com/angelmondragon/ffe-procurement/api/middleware"
	"github.com/angelmondragon/ffe-procurement/api/responses"
	"github.com/angelmondragon/ffe-procurement/api/validators"
	"github.com/angelmondragon/ffe-procurement/internal/acceptance"
	internalquotes "github.com/angelmondragon/ffe-procurement/internal/quotes"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

type registry interface {
	Ingest(ctx context.Context, input internalquotes.IngestInput) (*internalquotes.IngestResult, error)
	Comparison(ctx context.Context, itemID uuid.UUID) iter.Seq2[internalquotes.QuoteSummary, error]
	ComponentComparison(ctx context.Context, itemID, componentID uuid.UUID) iter.Seq2[internalquotes.QuoteSummary, error]
	History(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteLineItem, error)
}

type acceptor interface {
	Accept(ctx context.Context, input acceptance.AcceptInput) (*acceptance.AcceptResult, error)
}

type ingestRequest struct {
	SupplierID   string     `json:"supplier_id" validate:"required,uuid"`
	ComponentID  *string    `json:"component_id" validate:"omitempty,uuid"`
	UnitPrice    string     `json:"unit_price" validate:"required,decimal"`
	TotalPrice   *string    `json:"total_price" validate:"omitempty,decimal"`
	Currency     string     `json:"currency" validate:"required,currency"`
	LeadTimeDays int        `json:"lead_time_days" validate:"min=0"`
	DocumentRef  *string    `json:"document_ref" validate:"omitempty,max=1024"`
	ValidUntil   *time.Time `json:"valid_until"`
	Notes        *string    `json:"notes" validate:"omitempty,max=4000"`
}

type ingestResponse struct {
	Quote          dto.QuoteView    `json:"quote"`
	Superseded     *dto.QuoteView   `json:"superseded,omitempty"`
	ReviewRequired bool             `json:"review_required"`
	Status         *dto.AdvanceView `json:"status,omitempty"`
}

type acceptRequest struct {
	ComponentID *string `json:"component_id" validate:"omitempty,uuid"`
}

type acceptResponse struct {
	Item      dto.ItemView       `json:"item"`
	Component *dto.ComponentView `json:"component,omitempty"`
	Quote     dto.QuoteView      `json:"quote"`
	Previous  *dto.QuoteView     `json:"previous,omitempty"`
	Changed   bool               `json:"changed"`
}

// Ingest records a supplier quote for an item or one of its components.
func Ingest(reg registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req ingestRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitPrice, err := validators.ParseDecimal("unit_price", req.UnitPrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalquotes.IngestInput{
			ItemID:       itemID,
			ComponentID:  optionalUUID(req.ComponentID),
			SupplierID:   uuid.MustParse(req.SupplierID),
			UnitPrice:    unitPrice,
			Currency:     enums.Currency(req.Currency),
			LeadTimeDays: req.LeadTimeDays,
			DocumentRef:  req.DocumentRef,
			ValidUntil:   req.ValidUntil,
			Notes:        req.Notes,
			ActorID:      middleware.ActorIDFromContext(r.Context()),
		}
		if req.TotalPrice != nil {
			total, err := validators.ParseDecimal("total_price", *req.TotalPrice)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.TotalPrice = &total
		}

		result, err := reg.Ingest(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := ingestResponse{
			Quote:          dto.FromQuote(result.Quote),
			ReviewRequired: result.ReviewRequired,
		}
		if result.Superseded != nil {
			prev := dto.FromQuote(*result.Superseded)
			resp.Superseded = &prev
		}
		if result.Status != nil {
			adv := dto.FromAdvance(*result.Status)
			resp.Status = &adv
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// Comparison lists the latest quotes per supplier, cheapest first. component_id scopes the
// comparison to a component of the item; a component of another item is rejected.
func Comparison(reg registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		componentID, err := validators.ParseOptionalUUIDQuery(r, "component_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		seq := reg.Comparison(r.Context(), itemID)
		if componentID != nil {
			seq = reg.ComponentComparison(r.Context(), itemID, *componentID)
		}
		out := []dto.QuoteSummaryView{}
		for summary, err := range seq {
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out = append(out, dto.FromQuoteSummary(summary))
		}
		responses.WriteSuccess(w, out)
	}
}

// History returns a quote's version chain, newest first.
func History(reg registry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quoteID, err := validators.ParseUUIDParam(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		chain, err := reg.History(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.FromQuotes(chain))
	}
}

// Accept marks a quote as the accepted price for the item, or for a component when
// component_id is given in the body.
func Accept(svc acceptor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := validators.ParseUUIDParam(r, "quoteId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req acceptRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(w, r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Accept(r.Context(), acceptance.AcceptInput{
			ItemID:          itemID,
			ComponentID:     optionalUUID(req.ComponentID),
			QuoteLineItemID: quoteID,
			ActorID:         middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := acceptResponse{
			Item:    dto.FromItem(result.Item),
			Quote:   dto.FromQuote(result.Quote),
			Changed: result.Changed,
		}
		if result.Component != nil {
			c := dto.FromComponent(*result.Component)
			resp.Component = &c
		}
		if result.Previous != nil {
			prev := dto.FromQuote(*result.Previous)
			resp.Previous = &prev
		}
		responses.WriteSuccess(w, resp)
	}
}

func optionalUUID(raw *string) *uuid.UUID {
	if raw == nil || *raw == "" {
		return nil
	}
	id := uuid.MustParse(*raw)
	return &id
}
