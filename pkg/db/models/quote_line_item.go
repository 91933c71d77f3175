package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// QuoteLineItem is one supplier's offer for an item or component. Commercial terms are
// immutable; a re-quote inserts a new version linked through PreviousVersionID.
type QuoteLineItem struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID            uuid.UUID       `gorm:"column:item_id;type:uuid;not null"`
	ComponentID       *uuid.UUID      `gorm:"column:component_id;type:uuid"`
	SupplierID        uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null"`
	UnitPrice         decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	TotalPrice        decimal.Decimal `gorm:"column:total_price;type:numeric(14,2);not null"`
	Currency          enums.Currency  `gorm:"column:currency;type:text;not null"`
	LeadTimeDays      int             `gorm:"column:lead_time_days;not null;default:0"`
	DocumentRef       *string         `gorm:"column:document_ref"`
	ValidUntil        *time.Time      `gorm:"column:valid_until"`
	Notes             *string         `gorm:"column:notes"`
	Version           int             `gorm:"column:version;not null;default:1"`
	IsLatestVersion   bool            `gorm:"column:is_latest_version;not null"`
	PreviousVersionID *uuid.UUID      `gorm:"column:previous_version_id;type:uuid"`
	IsAccepted        bool            `gorm:"column:is_accepted;not null"`
	AcceptedAt        *time.Time      `gorm:"column:accepted_at"`
	AcceptedByID      *uuid.UUID      `gorm:"column:accepted_by_id;type:uuid"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (q *QuoteLineItem) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// TargetsComponent reports whether the quote is for a component rather than the item itself.
func (q QuoteLineItem) TargetsComponent() bool {
	return q.ComponentID != nil && *q.ComponentID != uuid.Nil
}
