package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Entry is the caller-facing shape of an activity record.
type Entry struct {
	EntityType enums.ActivityEntityType
	EntityID   uuid.UUID
	ItemID     *uuid.UUID
	Action     enums.ActivityAction
	Trigger    *enums.TriggerEvent
	ActorID    *uuid.UUID
	FromStatus string
	ToStatus   string
	Details    any
}

// Service appends and lists the audit trail of status-affecting events.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, entry Entry) error
	ListForItem(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error)
}

type service struct {
	repo Repository
}

// NewService builds the activity log service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("activity repository required")
	}
	return &service{repo: repo}, nil
}

// Append inserts the entry inside the caller's transaction.
func (s *service) Append(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "activity append requires a transaction")
	}
	if entry.EntityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "activity entity id required")
	}
	if entry.Action == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "activity action required")
	}

	row := &models.ActivityEntry{
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ItemID:     entry.ItemID,
		Action:     entry.Action,
		Trigger:    entry.Trigger,
		ActorID:    entry.ActorID,
		FromStatus: optional(entry.FromStatus),
		ToStatus:   optional(entry.ToStatus),
	}
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode activity details")
		}
		row.Details = raw
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append activity entry")
	}
	return nil
}

func (s *service) ListForItem(ctx context.Context, itemID uuid.UUID, limit int) ([]models.ActivityEntry, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	rows, err := s.repo.ListForItem(ctx, itemID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity")
	}
	return rows, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
