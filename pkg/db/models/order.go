package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// Order groups the paid lines of one client quote that go to a single supplier.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientQuoteID uuid.UUID         `gorm:"column:client_quote_id;type:uuid;not null"`
	ProjectID     uuid.UUID         `gorm:"column:project_id;type:uuid;not null"`
	SupplierID    uuid.UUID         `gorm:"column:supplier_id;type:uuid;not null"`
	Status        enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PLACED'"`
	Currency      enums.Currency    `gorm:"column:currency;type:text;not null"`
	Total         decimal.Decimal   `gorm:"column:total;type:numeric(14,2);not null"`
	PlacedAt      time.Time         `gorm:"column:placed_at;not null"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem links an order back to the item (or component) and the quote it buys.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ItemID          uuid.UUID       `gorm:"column:item_id;type:uuid;not null"`
	ComponentID     *uuid.UUID      `gorm:"column:component_id;type:uuid"`
	QuoteLineItemID uuid.UUID       `gorm:"column:quote_line_item_id;type:uuid;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (o *OrderItem) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
