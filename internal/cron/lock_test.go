package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryStore struct {
	data   map[string]string
	ttl    time.Duration
	delErr error
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttl = ttl
	return true, nil
}

func (m *memoryStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}}
	first, err := NewRedisLock(store, "ffe:cron-worker:lock:dev", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "ffe:cron-worker:lock:dev", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire should win, ok=%v err=%v", ok, err)
	}
	if store.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttl)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second acquire should lose")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.data["ffe:cron-worker:lock:dev"]; !ok {
		t.Fatalf("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("lock should be free after owner release")
	}
}

func TestRedisLockLeaseTakenOverAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}}
	stale, _ := NewRedisLock(store, "lock", time.Minute)
	if ok, _ := stale.Acquire(ctx); !ok {
		t.Fatalf("acquire should win")
	}
	// Simulate the TTL lapsing and another instance taking the lease.
	store.data["lock"] = "other-instance"

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.data["lock"] != "other-instance" {
		t.Fatalf("stale holder deleted the new lease")
	}
}

func TestRedisLockReleaseError(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{data: map[string]string{}, delErr: errors.New("conn reset")}
	lock, _ := NewRedisLock(store, "lock", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire should win")
	}
	if err := lock.Release(ctx); err == nil {
		t.Fatalf("expected release error")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}
