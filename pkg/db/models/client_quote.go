package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// ClientQuote is the client-facing budget and, once invoiced, the payable invoice.
type ClientQuote struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID     uuid.UUID               `gorm:"column:project_id;type:uuid;not null"`
	Status        enums.ClientQuoteStatus `gorm:"column:status;type:text;not null;default:'DRAFT'"`
	Currency      enums.Currency          `gorm:"column:currency;type:text;not null"`
	MarkupPercent decimal.Decimal         `gorm:"column:markup_percent;type:numeric(7,3);not null;default:0"`
	Total         decimal.Decimal         `gorm:"column:total;type:numeric(14,2);not null"`
	SentAt        *time.Time              `gorm:"column:sent_at"`
	ApprovedAt    *time.Time              `gorm:"column:approved_at"`
	InvoicedAt    *time.Time              `gorm:"column:invoiced_at"`
	LineItems     []ClientQuoteLineItem   `gorm:"foreignKey:ClientQuoteID"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *ClientQuote) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ClientQuoteLineItem prices one item for the client, derived from its accepted quote.
type ClientQuoteLineItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientQuoteID   uuid.UUID       `gorm:"column:client_quote_id;type:uuid;not null"`
	ItemID          uuid.UUID       `gorm:"column:item_id;type:uuid;not null"`
	QuoteLineItemID uuid.UUID       `gorm:"column:quote_line_item_id;type:uuid;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	ClientPrice     decimal.Decimal `gorm:"column:client_price;type:numeric(14,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *ClientQuoteLineItem) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
