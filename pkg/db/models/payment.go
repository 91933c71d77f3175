package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// Payment is money received against a client quote.
type Payment struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientQuoteID uuid.UUID       `gorm:"column:client_quote_id;type:uuid;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency      enums.Currency  `gorm:"column:currency;type:text;not null"`
	PaidAt        time.Time       `gorm:"column:paid_at;not null"`
	Reference     *string         `gorm:"column:reference"`
	RecordedByID  *uuid.UUID      `gorm:"column:recorded_by_id;type:uuid"`
	AllocatedAt   *time.Time      `gorm:"column:allocated_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PaymentAllocation is the share of a payment applied to one client quote line.
type PaymentAllocation struct {
	ID                    uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID             uuid.UUID       `gorm:"column:payment_id;type:uuid;not null"`
	ItemID                uuid.UUID       `gorm:"column:item_id;type:uuid;not null"`
	ClientQuoteLineItemID uuid.UUID       `gorm:"column:client_quote_line_item_id;type:uuid;not null"`
	Amount                decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	CreatedAt             time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (a *PaymentAllocation) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
