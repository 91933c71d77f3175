package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/payloads"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/registry"
)

const testTopic = "ffe-procurement-events"

func TestProcessBatchSettlesEachRow(t *testing.T) {
	first := orderEvent(t, 0)
	second := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)

	stats, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.published != 1 || stats.retried != 1 || stats.deadLettered != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("first row should be marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("second row should be marked published, got %v", repo.published)
	}
}

func TestProcessBatchPublishesBeforeAwaiting(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, 0), orderEvent(t, 0)}}
	pub := &fakePublisher{}
	pub.results = []publishResult{
		&orderedResult{pub: pub, wantSent: 2},
		&orderedResult{pub: pub, wantSent: 2},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)

	stats, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.published != 2 {
		t.Fatalf("expected both rows published, got %+v", stats)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	stats, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.total() != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
}

func TestProcessBatchDeadLettersUnresolvableRow(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	resolver := &fakeRegistry{err: errors.New("unsupported event type")}
	service := newTestService(t, repo, &fakePublisher{}, resolver, dlq, nil)

	stats, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.deadLettered != 1 {
		t.Fatalf("expected dead letter, got %+v", stats)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq entry does not mirror the row: %+v", entry)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("row should be marked terminal, got %v", repo.terminal)
	}
}

func TestProcessBatchDeadLettersAtMaxAttempts(t *testing.T) {
	event := orderEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, dlq, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	stats, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.deadLettered != 1 || stats.retried != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max attempts dlq entry, got %+v", dlq.entries)
	}
}

func TestMessageForSetsRoutingAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentReceived,
		AggregateType: enums.AggregateClientQuote,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "payment"),
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: testTopic, AggregateType: enums.AggregateClientQuote},
		Envelope:   outbox.PayloadEnvelope{Version: 1, EventID: event.ID.String(), OccurredAt: time.Now()},
		Payload:    &payloads.PaymentReceivedEvent{},
	}

	msg := messageFor(event, resolved)
	want := map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     "payment_received",
		"aggregate_type": "client_quote",
		"aggregate_id":   event.AggregateID.String(),
		"version":        "1",
		"created_at":     "2026-03-01T09:00:00Z",
	}
	for key, value := range want {
		if msg.Attributes[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, msg.Attributes[key], value)
		}
	}
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("message data should be the stored envelope")
	}
}

func TestDispatchWithoutPublisherIsNonRetryable(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, nil, &fakeRegistry{resolved: orderResolved()}, &fakeDLQRepo{}, nil)
	service.publisherFactory = func(string) publisher { return nil }

	f := service.dispatch(context.Background(), orderEvent(t, 0))
	var nonRetry registry.NonRetryableError
	if !errors.As(f.err, &nonRetry) {
		t.Fatalf("expected NonRetryableError, got %v", f.err)
	}
}

func TestBackoffDoublesToMax(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 350*time.Millisecond)
	steps := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, want := range steps {
		got := b.next()
		if got < want || got >= want+jitterWindow {
			t.Fatalf("step %d: got %s, want %s plus jitter", i, got, want)
		}
	}
	b.reset()
	if got := b.next(); got >= 100*time.Millisecond+jitterWindow {
		t.Fatalf("reset should return to base, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	id := uuid.New()
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, id.String()),
		AttemptCount:  attempts,
	}
}

func orderResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: testTopic, AggregateType: enums.AggregateOrder},
		Envelope:   outbox.PayloadEnvelope{Version: 1, OccurredAt: time.Now()},
		Payload:    &payloads.OrderCreatedEvent{},
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

// orderedResult fails unless every message of the batch was sent before Get.
type orderedResult struct {
	pub      *fakePublisher
	wantSent int
}

func (r *orderedResult) Get(context.Context) (string, error) {
	if len(r.pub.sent) != r.wantSent {
		return "", registry.NewNonRetryableError(errors.New("result awaited before batch was dispatched"))
	}
	return "server-id", nil
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil || f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
