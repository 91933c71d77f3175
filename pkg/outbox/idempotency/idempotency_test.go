package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	markers map[string]any
	ttls    map[string]time.Duration
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{markers: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.markers[key]; ok {
		return false, nil
	}
	s.markers[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	if s.err != nil {
		return s.err
	}
	for _, key := range keys {
		delete(s.markers, key)
	}
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "ffe:idempotency:" + scope + ":" + id
}

func TestClaimOncePerDelivery(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	manager.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	id := uuid.New()
	claimed, err := manager.Claim(ctx, "trigger-worker", id)
	require.NoError(t, err)
	assert.True(t, claimed)

	key := "ffe:idempotency:consumer:trigger-worker:" + id.String()
	assert.Equal(t, "2026-03-01T09:00:00Z", store.markers[key])
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	claimed, err = manager.Claim(ctx, "trigger-worker", id)
	require.NoError(t, err)
	assert.False(t, claimed, "second delivery must not claim")

	claimed, err = manager.Claim(ctx, "other-consumer", id)
	require.NoError(t, err)
	assert.True(t, claimed, "markers are scoped per consumer")
}

func TestReleaseAllowsRedelivery(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	_, err = manager.Claim(ctx, "trigger-worker", id)
	require.NoError(t, err)
	require.NoError(t, manager.Release(ctx, "trigger-worker", id))

	claimed, err := manager.Claim(ctx, "trigger-worker", id)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimWrapsStoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.Claim(context.Background(), "trigger-worker", uuid.New())
	require.ErrorIs(t, err, store.err)
	require.ErrorIs(t, manager.Release(context.Background(), "trigger-worker", uuid.New()), store.err)
}

func TestClaimValidatesInput(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	_, err = manager.Claim(context.Background(), "  ", uuid.New())
	assert.Error(t, err)
	_, err = manager.Claim(context.Background(), "trigger-worker", uuid.Nil)
	assert.Error(t, err)
}

func TestNewManagerTTL(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemoryStore(), -time.Second)
	assert.Error(t, err)

	manager, err := NewManager(newMemoryStore(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, manager.ttl)
}
