package activity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ffe-procurement/pkg/db/dbtest"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

func TestAppendAndListNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	ctx := context.Background()
	itemID := uuid.New()
	actorID := uuid.New()
	trigger := enums.TriggerRFQSent

	require.NoError(t, svc.Append(ctx, conn, Entry{
		EntityType: enums.ActivityEntityItem,
		EntityID:   itemID,
		ItemID:     &itemID,
		Action:     enums.ActivityItemRegistered,
		ActorID:    &actorID,
	}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, svc.Append(ctx, conn, Entry{
		EntityType: enums.ActivityEntityItem,
		EntityID:   itemID,
		ItemID:     &itemID,
		Action:     enums.ActivityStatusAdvanced,
		Trigger:    &trigger,
		ActorID:    &actorID,
		FromStatus: string(enums.ItemStatusNotRequested),
		ToStatus:   string(enums.ItemStatusRFQSent),
		Details:    map[string]string{"note": "sent to three suppliers"},
	}))

	rows, err := svc.ListForItem(ctx, itemID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.ActivityStatusAdvanced, rows[0].Action)
	require.NotNil(t, rows[0].Trigger)
	assert.Equal(t, enums.TriggerRFQSent, *rows[0].Trigger)
	require.NotNil(t, rows[0].FromStatus)
	assert.Equal(t, "NOT_REQUESTED", *rows[0].FromStatus)
	assert.Equal(t, "RFQ_SENT", *rows[0].ToStatus)

	var details map[string]string
	require.NoError(t, json.Unmarshal(rows[0].Details, &details))
	assert.Equal(t, "sent to three suppliers", details["note"])

	assert.Equal(t, enums.ActivityItemRegistered, rows[1].Action)
	assert.Nil(t, rows[1].FromStatus)
}

func TestEntriesAreAppendOnly(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	itemID := uuid.New()
	require.NoError(t, svc.Append(context.Background(), conn, Entry{
		EntityType: enums.ActivityEntityItem,
		EntityID:   itemID,
		ItemID:     &itemID,
		Action:     enums.ActivityItemRegistered,
	}))

	err = conn.Model(&models.ActivityEntry{}).Where("item_id = ?", itemID).Update("action", "tampered").Error
	assert.Error(t, err)
	err = conn.Where("item_id = ?", itemID).Delete(&models.ActivityEntry{}).Error
	assert.Error(t, err)
}

func TestAppendValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	ctx := context.Background()

	err = svc.Append(ctx, nil, Entry{EntityID: uuid.New(), Action: enums.ActivityItemRegistered})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	err = svc.Append(ctx, conn, Entry{Action: enums.ActivityItemRegistered})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.Append(ctx, conn, Entry{EntityID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.ListForItem(ctx, uuid.Nil, 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListForItemClampsLimit(t *testing.T) {
	var gotLimit int
	svc, err := NewService(&fakeRepo{list: func(_ context.Context, _ uuid.UUID, limit int) ([]models.ActivityEntry, error) {
		gotLimit = limit
		return nil, nil
	}})
	require.NoError(t, err)

	_, err = svc.ListForItem(context.Background(), uuid.New(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, gotLimit)
}
