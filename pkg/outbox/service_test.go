package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/db/dbtest"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())

	orderID := uuid.New()
	actorID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         Actor(&actorID, "api"),
			Data:          map[string]string{"order_id": orderID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderCreated, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.NotNil(t, envelope.Actor)
	require.NotNil(t, envelope.Actor.ActorID)
	assert.Equal(t, actorID, *envelope.Actor.ActorID)
	assert.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(envelope.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventQuoteAccepted,
			AggregateType: enums.AggregateItem,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}))
		return gorm.ErrInvalidData
	})

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	ctx := context.Background()

	assert.Error(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderCreated, AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: "bogus", AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: "project", AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          make(chan int),
	}))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventOrderStatusChanged, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	var fetched []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, fetched[0].ID); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, fetched[1].ID, assert.AnError, 3)
	}))
	require.Len(t, fetched, 2)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	assert.Empty(t, remaining)
}

func TestMarkFailedTxTruncatesLastError(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		EventType:     enums.EventPaymentReceived,
		AggregateType: enums.AggregateClientQuote,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)

	long := strings.Repeat("é", maxDLQErrorLen)
	require.NoError(t, repo.MarkFailedTx(conn, row.ID, errors.New(long)))

	require.NoError(t, conn.First(&row, "id = ?", row.ID).Error)
	require.NotNil(t, row.LastError)
	assert.LessOrEqual(t, len(*row.LastError), maxDLQErrorLen)
	assert.True(t, utf8.ValidString(*row.LastError))
	assert.Equal(t, 1, row.AttemptCount)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)

	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()
	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventPaymentReceived,
		AggregateType: enums.AggregateClientQuote,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
	}))

	found, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRepositoryCountAndListSince(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			AttemptCount:  i,
			FailedAt:      base.Add(offset),
		}))
	}

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	rows, err := repo.ListFailedSince(context.Background(), base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].FailedAt.Before(rows[1].FailedAt))
}

func TestTruncateUTF8KeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "ab", truncateUTF8("abé", 3))
	assert.Equal(t, "abé", truncateUTF8("abéd", 4))
}
