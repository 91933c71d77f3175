package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// Item is one procurable unit on a project's FFE schedule.
type Item struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID       uuid.UUID           `gorm:"column:project_id;type:uuid;not null"`
	Name            string              `gorm:"column:name;not null"`
	Quantity        int                 `gorm:"column:quantity;not null;default:1"`
	CurrentStatus   enums.ItemStatus    `gorm:"column:current_status;type:text;not null;default:'NOT_REQUESTED'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'NOT_INVOICED'"`
	AcceptedQuoteID *uuid.UUID          `gorm:"column:accepted_quote_id;type:uuid"`
	SupplierID      *uuid.UUID          `gorm:"column:supplier_id;type:uuid"`
	TradePrice      decimal.Decimal     `gorm:"column:trade_price;type:numeric(14,2);not null;default:0"`
	Currency        enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	ClientPrice     decimal.Decimal     `gorm:"column:client_price;type:numeric(14,2);not null;default:0"`
	PaidAmount      decimal.Decimal     `gorm:"column:paid_amount;type:numeric(14,2);not null;default:0"`
	Version         int64               `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Item) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Component is a sub-part of an item with its own accepted quote.
type Component struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID          uuid.UUID       `gorm:"column:item_id;type:uuid;not null"`
	Name            string          `gorm:"column:name;not null"`
	Quantity        int             `gorm:"column:quantity;not null;default:1"`
	AcceptedQuoteID *uuid.UUID      `gorm:"column:accepted_quote_id;type:uuid"`
	SupplierID      *uuid.UUID      `gorm:"column:supplier_id;type:uuid"`
	TradePrice      decimal.Decimal `gorm:"column:trade_price;type:numeric(14,2);not null;default:0"`
	Currency        enums.Currency  `gorm:"column:currency;type:text;not null;default:'USD'"`
	Version         int64           `gorm:"column:version;not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Component) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
