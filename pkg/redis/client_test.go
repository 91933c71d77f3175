package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/ffe-procurement/pkg/config"
)

func TestSetNXMarksOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("trigger-worker", "evt-1")

	ok, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !ok {
		t.Fatalf("first SetNX should win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || ok {
		t.Fatalf("second SetNX should lose, ok=%v err=%v", ok, err)
	}
	if mock.ttls[key] != time.Hour {
		t.Fatalf("expected ttl to be forwarded, got %s", mock.ttls[key])
	}

	if err := client.Set(ctx, key, "done", 2*time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := client.Get(ctx, key); v != "done" || mock.ttls[key] != 2*time.Hour {
		t.Fatalf("set should overwrite value and ttl, got %q %s", v, mock.ttls[key])
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDeleteIfValueOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := Key("cron-worker", "lock", "dev")
	mock.data[key] = "owner-a"

	removed, err := client.DeleteIfValue(ctx, key, "owner-b")
	if err != nil || removed {
		t.Fatalf("foreign value must not delete, removed=%v err=%v", removed, err)
	}
	removed, err = client.DeleteIfValue(ctx, key, "owner-a")
	if err != nil || !removed {
		t.Fatalf("owner value should delete, removed=%v err=%v", removed, err)
	}
	if _, ok := mock.data[key]; ok {
		t.Fatalf("key still present")
	}
	if mock.scripts != 2 {
		t.Fatalf("expected two script evaluations, got %d", mock.scripts)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from uninitialized client")
	}
	if _, err := client.DeleteIfValue(context.Background(), "k", "v"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op: %v", err)
	}
	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil close should be a no-op: %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("http", "abc"); got != "ffe:idempotency:http:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.IdempotencyKey("", " abc "); got != "ffe:idempotency:abc" {
		t.Fatalf("empty scope should be skipped, got %s", got)
	}
	if got := Key("cron-worker", "", "lock"); got != "ffe:cron-worker:lock" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{
		Address:     "localhost:6379",
		DB:          2,
		PoolSize:    7,
		DialTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/3", PoolSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "secret" || opts.PoolSize != 4 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	if _, err := optionsFromConfig(config.RedisConfig{URL: "http://nope"}); err == nil {
		t.Fatalf("expected url parse error")
	}
}

type mockCmdable struct {
	data    map[string]string
	ttls    map[string]time.Duration
	scripts int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.scripts++
	if script != compareAndDelete || len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script call"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
