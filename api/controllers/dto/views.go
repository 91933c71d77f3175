package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ffe-procurement/internal/items"
	"github.com/angelmondragon/ffe-procurement/internal/quotes"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// Money renders an amount with the currency's minor-unit precision.
func Money(amount decimal.Decimal, currency enums.Currency) string {
	return amount.StringFixed(currency.MinorUnits())
}

type ItemView struct {
	ID              uuid.UUID           `json:"id"`
	ProjectID       uuid.UUID           `json:"project_id"`
	Name            string              `json:"name"`
	Quantity        int                 `json:"quantity"`
	CurrentStatus   enums.ItemStatus    `json:"current_status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	AcceptedQuoteID *uuid.UUID          `json:"accepted_quote_id,omitempty"`
	SupplierID      *uuid.UUID          `json:"supplier_id,omitempty"`
	TradePrice      string              `json:"trade_price"`
	ClientPrice     string              `json:"client_price"`
	PaidAmount      string              `json:"paid_amount"`
	Currency        enums.Currency      `json:"currency"`
	Version         int64               `json:"version"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func FromItem(item models.Item) ItemView {
	return ItemView{
		ID:              item.ID,
		ProjectID:       item.ProjectID,
		Name:            item.Name,
		Quantity:        item.Quantity,
		CurrentStatus:   item.CurrentStatus,
		PaymentStatus:   item.PaymentStatus,
		AcceptedQuoteID: item.AcceptedQuoteID,
		SupplierID:      item.SupplierID,
		TradePrice:      Money(item.TradePrice, item.Currency),
		ClientPrice:     Money(item.ClientPrice, item.Currency),
		PaidAmount:      Money(item.PaidAmount, item.Currency),
		Currency:        item.Currency,
		Version:         item.Version,
		UpdatedAt:       item.UpdatedAt,
	}
}

type ComponentView struct {
	ID              uuid.UUID      `json:"id"`
	ItemID          uuid.UUID      `json:"item_id"`
	Name            string         `json:"name"`
	Quantity        int            `json:"quantity"`
	AcceptedQuoteID *uuid.UUID     `json:"accepted_quote_id,omitempty"`
	SupplierID      *uuid.UUID     `json:"supplier_id,omitempty"`
	TradePrice      string         `json:"trade_price"`
	Currency        enums.Currency `json:"currency"`
	AcceptedQuote   *QuoteView     `json:"accepted_quote,omitempty"`
}

func FromComponent(component models.Component) ComponentView {
	return ComponentView{
		ID:              component.ID,
		ItemID:          component.ItemID,
		Name:            component.Name,
		Quantity:        component.Quantity,
		AcceptedQuoteID: component.AcceptedQuoteID,
		SupplierID:      component.SupplierID,
		TradePrice:      Money(component.TradePrice, component.Currency),
		Currency:        component.Currency,
	}
}

type ItemSummaryView struct {
	Item          ItemView        `json:"item"`
	AcceptedQuote *QuoteView      `json:"accepted_quote,omitempty"`
	Components    []ComponentView `json:"components"`
}

func FromSummary(summary items.Summary) ItemSummaryView {
	view := ItemSummaryView{
		Item:       FromItem(summary.Item),
		Components: make([]ComponentView, 0, len(summary.Components)),
	}
	if summary.AcceptedQuote != nil {
		q := FromQuote(*summary.AcceptedQuote)
		view.AcceptedQuote = &q
	}
	for _, c := range summary.Components {
		cv := FromComponent(c.Component)
		if c.AcceptedQuote != nil {
			q := FromQuote(*c.AcceptedQuote)
			cv.AcceptedQuote = &q
		}
		view.Components = append(view.Components, cv)
	}
	return view
}

type QuoteView struct {
	ID                uuid.UUID      `json:"id"`
	ItemID            uuid.UUID      `json:"item_id"`
	ComponentID       *uuid.UUID     `json:"component_id,omitempty"`
	SupplierID        uuid.UUID      `json:"supplier_id"`
	UnitPrice         string         `json:"unit_price"`
	TotalPrice        string         `json:"total_price"`
	Currency          enums.Currency `json:"currency"`
	LeadTimeDays      int            `json:"lead_time_days"`
	DocumentRef       *string        `json:"document_ref,omitempty"`
	ValidUntil        *time.Time     `json:"valid_until,omitempty"`
	Notes             *string        `json:"notes,omitempty"`
	Version           int            `json:"version"`
	IsLatestVersion   bool           `json:"is_latest_version"`
	PreviousVersionID *uuid.UUID     `json:"previous_version_id,omitempty"`
	IsAccepted        bool           `json:"is_accepted"`
	AcceptedAt        *time.Time     `json:"accepted_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

func FromQuote(q models.QuoteLineItem) QuoteView {
	return QuoteView{
		ID:                q.ID,
		ItemID:            q.ItemID,
		ComponentID:       q.ComponentID,
		SupplierID:        q.SupplierID,
		UnitPrice:         Money(q.UnitPrice, q.Currency),
		TotalPrice:        Money(q.TotalPrice, q.Currency),
		Currency:          q.Currency,
		LeadTimeDays:      q.LeadTimeDays,
		DocumentRef:       q.DocumentRef,
		ValidUntil:        q.ValidUntil,
		Notes:             q.Notes,
		Version:           q.Version,
		IsLatestVersion:   q.IsLatestVersion,
		PreviousVersionID: q.PreviousVersionID,
		IsAccepted:        q.IsAccepted,
		AcceptedAt:        q.AcceptedAt,
		CreatedAt:         q.CreatedAt,
	}
}

func FromQuotes(list []models.QuoteLineItem) []QuoteView {
	out := make([]QuoteView, 0, len(list))
	for _, q := range list {
		out = append(out, FromQuote(q))
	}
	return out
}

type QuoteSummaryView struct {
	Quote           QuoteView `json:"quote"`
	DeltaToMinimum  string    `json:"delta_to_minimum"`
	DeltaToAccepted *string   `json:"delta_to_accepted,omitempty"`
	IsMinimum       bool      `json:"is_minimum"`
	IsAccepted      bool      `json:"is_accepted"`
}

func FromQuoteSummary(s quotes.QuoteSummary) QuoteSummaryView {
	view := QuoteSummaryView{
		Quote:          FromQuote(s.Quote),
		DeltaToMinimum: Money(s.DeltaToMinimum, s.Quote.Currency),
		IsMinimum:      s.IsMinimum,
		IsAccepted:     s.IsAccepted,
	}
	if s.DeltaToAccepted != nil {
		delta := Money(*s.DeltaToAccepted, s.Quote.Currency)
		view.DeltaToAccepted = &delta
	}
	return view
}

type AdvanceView struct {
	Item    ItemView         `json:"item"`
	Changed bool             `json:"changed"`
	From    enums.ItemStatus `json:"from"`
	To      enums.ItemStatus `json:"to"`
}

func FromAdvance(result status.AdvanceResult) AdvanceView {
	return AdvanceView{
		Item:    FromItem(result.Item),
		Changed: result.Changed,
		From:    result.From,
		To:      result.To,
	}
}

func FromAdvances(results []status.AdvanceResult) []AdvanceView {
	out := make([]AdvanceView, 0, len(results))
	for _, r := range results {
		out = append(out, FromAdvance(r))
	}
	return out
}

type ClientQuoteLineView struct {
	ID              uuid.UUID `json:"id"`
	ItemID          uuid.UUID `json:"item_id"`
	QuoteLineItemID uuid.UUID `json:"quote_line_item_id"`
	Quantity        int       `json:"quantity"`
	UnitPrice       string    `json:"unit_price"`
	ClientPrice     string    `json:"client_price"`
}

type ClientQuoteView struct {
	ID            uuid.UUID               `json:"id"`
	ProjectID     uuid.UUID               `json:"project_id"`
	Status        enums.ClientQuoteStatus `json:"status"`
	Currency      enums.Currency          `json:"currency"`
	MarkupPercent string                  `json:"markup_percent"`
	Total         string                  `json:"total"`
	SentAt        *time.Time              `json:"sent_at,omitempty"`
	ApprovedAt    *time.Time              `json:"approved_at,omitempty"`
	InvoicedAt    *time.Time              `json:"invoiced_at,omitempty"`
	LineItems     []ClientQuoteLineView   `json:"line_items"`
}

func FromClientQuote(cq models.ClientQuote) ClientQuoteView {
	view := ClientQuoteView{
		ID:            cq.ID,
		ProjectID:     cq.ProjectID,
		Status:        cq.Status,
		Currency:      cq.Currency,
		MarkupPercent: cq.MarkupPercent.String(),
		Total:         Money(cq.Total, cq.Currency),
		SentAt:        cq.SentAt,
		ApprovedAt:    cq.ApprovedAt,
		InvoicedAt:    cq.InvoicedAt,
		LineItems:     make([]ClientQuoteLineView, 0, len(cq.LineItems)),
	}
	for _, line := range cq.LineItems {
		view.LineItems = append(view.LineItems, ClientQuoteLineView{
			ID:              line.ID,
			ItemID:          line.ItemID,
			QuoteLineItemID: line.QuoteLineItemID,
			Quantity:        line.Quantity,
			UnitPrice:       Money(line.UnitPrice, cq.Currency),
			ClientPrice:     Money(line.ClientPrice, cq.Currency),
		})
	}
	return view
}

type PaymentView struct {
	ID            uuid.UUID      `json:"id"`
	ClientQuoteID uuid.UUID      `json:"client_quote_id"`
	Amount        string         `json:"amount"`
	Currency      enums.Currency `json:"currency"`
	PaidAt        time.Time      `json:"paid_at"`
	Reference     *string        `json:"reference,omitempty"`
	AllocatedAt   *time.Time     `json:"allocated_at,omitempty"`
}

type AllocationView struct {
	ItemID                uuid.UUID `json:"item_id"`
	ClientQuoteLineItemID uuid.UUID `json:"client_quote_line_item_id"`
	Amount                string    `json:"amount"`
}

type PaymentResultView struct {
	Payment      PaymentView      `json:"payment"`
	Allocations  []AllocationView `json:"allocations"`
	UpdatedItems []ItemView       `json:"updated_items"`
	Changed      bool             `json:"changed"`
}

func FromPaymentResult(p models.Payment, allocations []models.PaymentAllocation, updated []models.Item, changed bool) PaymentResultView {
	view := PaymentResultView{
		Payment: PaymentView{
			ID:            p.ID,
			ClientQuoteID: p.ClientQuoteID,
			Amount:        Money(p.Amount, p.Currency),
			Currency:      p.Currency,
			PaidAt:        p.PaidAt,
			Reference:     p.Reference,
			AllocatedAt:   p.AllocatedAt,
		},
		Allocations:  make([]AllocationView, 0, len(allocations)),
		UpdatedItems: make([]ItemView, 0, len(updated)),
		Changed:      changed,
	}
	for _, a := range allocations {
		view.Allocations = append(view.Allocations, AllocationView{
			ItemID:                a.ItemID,
			ClientQuoteLineItemID: a.ClientQuoteLineItemID,
			Amount:                Money(a.Amount, p.Currency),
		})
	}
	for _, item := range updated {
		view.UpdatedItems = append(view.UpdatedItems, FromItem(item))
	}
	return view
}

type OrderItemView struct {
	ID              uuid.UUID  `json:"id"`
	ItemID          uuid.UUID  `json:"item_id"`
	ComponentID     *uuid.UUID `json:"component_id,omitempty"`
	QuoteLineItemID uuid.UUID  `json:"quote_line_item_id"`
	Quantity        int        `json:"quantity"`
	UnitPrice       string     `json:"unit_price"`
}

type OrderView struct {
	ID            uuid.UUID         `json:"id"`
	ClientQuoteID uuid.UUID         `json:"client_quote_id"`
	ProjectID     uuid.UUID         `json:"project_id"`
	SupplierID    uuid.UUID         `json:"supplier_id"`
	Status        enums.OrderStatus `json:"status"`
	Currency      enums.Currency    `json:"currency"`
	Total         string            `json:"total"`
	PlacedAt      time.Time         `json:"placed_at"`
	Items         []OrderItemView   `json:"items"`
}

func FromOrder(o models.Order) OrderView {
	view := OrderView{
		ID:            o.ID,
		ClientQuoteID: o.ClientQuoteID,
		ProjectID:     o.ProjectID,
		SupplierID:    o.SupplierID,
		Status:        o.Status,
		Currency:      o.Currency,
		Total:         Money(o.Total, o.Currency),
		PlacedAt:      o.PlacedAt,
		Items:         make([]OrderItemView, 0, len(o.Items)),
	}
	for _, line := range o.Items {
		view.Items = append(view.Items, OrderItemView{
			ID:              line.ID,
			ItemID:          line.ItemID,
			ComponentID:     line.ComponentID,
			QuoteLineItemID: line.QuoteLineItemID,
			Quantity:        line.Quantity,
			UnitPrice:       Money(line.UnitPrice, o.Currency),
		})
	}
	return view
}

func FromOrders(list []models.Order) []OrderView {
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, FromOrder(o))
	}
	return out
}

type ActivityView struct {
	ID         uuid.UUID                `json:"id"`
	EntityType enums.ActivityEntityType `json:"entity_type"`
	EntityID   uuid.UUID                `json:"entity_id"`
	ItemID     *uuid.UUID               `json:"item_id,omitempty"`
	Action     enums.ActivityAction     `json:"action"`
	Trigger    *enums.TriggerEvent      `json:"trigger,omitempty"`
	ActorID    *uuid.UUID               `json:"actor_id,omitempty"`
	FromStatus *string                  `json:"from_status,omitempty"`
	ToStatus   *string                  `json:"to_status,omitempty"`
	Details    json.RawMessage          `json:"details,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

func FromActivity(list []models.ActivityEntry) []ActivityView {
	out := make([]ActivityView, 0, len(list))
	for _, e := range list {
		out = append(out, ActivityView{
			ID:         e.ID,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			ItemID:     e.ItemID,
			Action:     e.Action,
			Trigger:    e.Trigger,
			ActorID:    e.ActorID,
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			Details:    e.Details,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
