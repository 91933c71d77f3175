package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL covers the Pub/Sub maximum redelivery window.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the subset of the Redis client the manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager claims deliveries per consumer so each one is handled at most once while its
// marker lives. Markers are stored at ffe:idempotency:consumer:<name>:<id>.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a manager whose markers expire after ttl. Zero selects DefaultTTL.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	switch {
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case ttl == 0:
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports true when this call placed the marker. false means another delivery of
// the same id already holds it.
func (m *Manager) Claim(ctx context.Context, consumer string, id uuid.UUID) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return claimed, nil
}

// Release drops the marker so the next redelivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer string, id uuid.UUID) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (m *Manager) key(consumer string, id uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if id == uuid.Nil {
		return "", errors.New("delivery id is required")
	}
	return m.store.IdempotencyKey("consumer:"+consumer, id.String()), nil
}
