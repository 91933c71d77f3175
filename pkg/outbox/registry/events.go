package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/payloads"
)

// EventDescriptor binds an outbox event type to its aggregate, topic and payload shape.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is an outbox row that passed validation, with its payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() interface{} { return new(T) },
	}
}

// NewEventRegistry routes every procurement event to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := cfg.DomainTopic
	if topic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}
	return newEventRegistry(
		describe[payloads.QuoteAcceptedEvent](enums.EventQuoteAccepted, enums.AggregateItem, topic),
		describe[payloads.PaymentReceivedEvent](enums.EventPaymentReceived, enums.AggregateClientQuote, topic),
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, topic),
		describe[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, topic),
	)
}

func newEventRegistry(descs ...EventDescriptor) (*EventRegistry, error) {
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descs))}
	for _, desc := range descs {
		if desc.PayloadFactory == nil || desc.Topic == "" {
			return nil, fmt.Errorf("descriptor for %s is incomplete", desc.EventType)
		}
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("event type %s registered twice", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics events can be published to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{})
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks a row against its descriptor and decodes the payload. Every failure is
// non-retryable because the row itself is malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryablef("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryablef("aggregate mismatch: %s expects %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryablef("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryablef("decode envelope: %w", err)
	}
	if envelope.Version < 1 {
		return nil, nonRetryablef("envelope version %d not supported", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryablef("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryablef("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func nonRetryablef(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}
