package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// QuoteAcceptedEvent is emitted when a supplier quote becomes the accepted quote of its target.
type QuoteAcceptedEvent struct {
	QuoteID      uuid.UUID        `json:"quote_id"`
	ItemID       uuid.UUID        `json:"item_id"`
	ComponentID  *uuid.UUID       `json:"component_id,omitempty"`
	SupplierID   uuid.UUID        `json:"supplier_id"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	TotalPrice   decimal.Decimal  `json:"total_price"`
	Currency     enums.Currency   `json:"currency"`
	ItemStatus   enums.ItemStatus `json:"item_status"`
	AcceptedAt   time.Time        `json:"accepted_at"`
	AcceptedByID *uuid.UUID       `json:"accepted_by_id,omitempty"`
}

// PaymentAllocationLine is one item's share of an allocated payment.
type PaymentAllocationLine struct {
	ItemID        uuid.UUID           `json:"item_id"`
	Amount        decimal.Decimal     `json:"amount"`
	PaidAmount    decimal.Decimal     `json:"paid_amount"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	ItemStatus    enums.ItemStatus    `json:"item_status"`
}

// PaymentReceivedEvent is emitted once a client payment has been split across its items.
type PaymentReceivedEvent struct {
	PaymentID     uuid.UUID               `json:"payment_id"`
	ClientQuoteID uuid.UUID               `json:"client_quote_id"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      enums.Currency          `json:"currency"`
	PaidAt        time.Time               `json:"paid_at"`
	Allocations   []PaymentAllocationLine `json:"allocations"`
}

// OrderCreatedEvent is emitted for every supplier order created from a client quote.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	ClientQuoteID uuid.UUID       `json:"client_quote_id"`
	ProjectID     uuid.UUID       `json:"project_id"`
	SupplierID    uuid.UUID       `json:"supplier_id"`
	Total         decimal.Decimal `json:"total"`
	Currency      enums.Currency  `json:"currency"`
	ItemIDs       []uuid.UUID     `json:"item_ids"`
}

// OrderStatusChangedEvent is emitted when an order moves forward.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	SupplierID uuid.UUID         `json:"supplier_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ItemIDs    []uuid.UUID       `json:"item_ids"`
}
