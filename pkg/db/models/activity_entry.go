package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// ActivityEntry is an append-only audit record of a status-affecting event.
type ActivityEntry struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntityType enums.ActivityEntityType `gorm:"column:entity_type;type:text;not null"`
	EntityID   uuid.UUID                `gorm:"column:entity_id;type:uuid;not null"`
	ItemID     *uuid.UUID               `gorm:"column:item_id;type:uuid"`
	Action     enums.ActivityAction     `gorm:"column:action;type:text;not null"`
	Trigger    *enums.TriggerEvent      `gorm:"column:trigger_event;type:text"`
	ActorID    *uuid.UUID               `gorm:"column:actor_id;type:uuid"`
	FromStatus *string                  `gorm:"column:from_status"`
	ToStatus   *string                  `gorm:"column:to_status"`
	Details    json.RawMessage          `gorm:"column:details;type:jsonb"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (ActivityEntry) TableName() string {
	return "activity_entries"
}

func (a *ActivityEntry) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
