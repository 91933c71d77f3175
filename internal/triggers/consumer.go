package triggers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/internal/orders"
	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/registry"
)

const (
	consumerName = "trigger-worker"

	attrTriggerType = "trigger_type"
	attrVersion     = "version"
	attrTriggerID   = "trigger_id"
)

// TriggerType selects the handler for an asynchronous trigger message.
type TriggerType string

const (
	TriggerAdvance         TriggerType = "advance"
	TriggerPaymentAllocate TriggerType = "payment_allocate"
	TriggerOrderStatus     TriggerType = "order_status"
)

// AdvancePayload applies one trigger to a batch of items.
type AdvancePayload struct {
	ItemIDs []uuid.UUID        `json:"item_ids"`
	Trigger enums.TriggerEvent `json:"trigger"`
	ActorID *uuid.UUID         `json:"actor_id,omitempty"`
}

// PaymentAllocatePayload requests allocation of a recorded payment.
type PaymentAllocatePayload struct {
	PaymentID uuid.UUID  `json:"payment_id"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
}

// OrderStatusPayload moves a supplier order forward.
type OrderStatusPayload struct {
	OrderID uuid.UUID         `json:"order_id"`
	Status  enums.OrderStatus `json:"status"`
	ActorID *uuid.UUID        `json:"actor_id,omitempty"`
}

type advancer interface {
	AdvanceMany(ctx context.Context, input status.AdvanceManyInput) ([]status.AdvanceResult, error)
}

type allocator interface {
	Allocate(ctx context.Context, paymentID uuid.UUID, actorID *uuid.UUID) (*payments.AllocateResult, error)
}

type orderUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actorID *uuid.UUID) (*orders.OrderResult, error)
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Message is the transport-free view of a trigger delivery.
type Message struct {
	ID         string
	Attributes map[string]string
	Data       []byte
}

// Consumer applies trigger messages from the trigger subscription.
type Consumer struct {
	subscription *pubsub.Subscriber
	engine       advancer
	payments     allocator
	orders       orderUpdater
	manager      idempotencyChecker
	decoders     *registry.DecoderRegistry[TriggerType]
	logg         *logger.Logger
	metrics      *metrics.JobMetrics
}

// ConsumerParams groups the consumer dependencies. Subscription may be nil when only Process is used.
type ConsumerParams struct {
	Subscription *pubsub.Subscriber
	Engine       advancer
	Payments     allocator
	Orders       orderUpdater
	Manager      idempotencyChecker
	Logger       *logger.Logger
	Metrics      *metrics.JobMetrics
}

// NewConsumer validates the dependencies and registers the payload decoders.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Engine == nil {
		return nil, errors.New("status engine is required")
	}
	if params.Payments == nil {
		return nil, errors.New("payments service is required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders service is required")
	}
	if params.Manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	decoders := registry.NewDecoderRegistry[TriggerType]()
	decoders.Register(TriggerAdvance, 1, registry.JSONDecoder(func() interface{} { return &AdvancePayload{} }))
	decoders.Register(TriggerPaymentAllocate, 1, registry.JSONDecoder(func() interface{} { return &PaymentAllocatePayload{} }))
	decoders.Register(TriggerOrderStatus, 1, registry.JSONDecoder(func() interface{} { return &OrderStatusPayload{} }))

	return &Consumer{
		subscription: params.Subscription,
		engine:       params.Engine,
		payments:     params.Payments,
		orders:       params.Orders,
		manager:      params.Manager,
		decoders:     decoders,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// Run receives messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("trigger subscription is required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Process(ctx, Message{ID: msg.ID, Attributes: msg.Attributes, Data: msg.Data}) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Process handles one delivery and reports whether it should be acked. Retryable
// failures are nacked and release the idempotency marker so redelivery runs again.
func (c *Consumer) Process(ctx context.Context, msg Message) bool {
	kind := TriggerType(strings.TrimSpace(msg.Attributes[attrTriggerType]))
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id":   msg.ID,
		"trigger_type": kind,
	})

	version, err := messageVersion(msg.Attributes)
	if err != nil {
		c.logg.Error(logCtx, "invalid trigger version", err)
		return true
	}
	payload, err := c.decoders.Decode(kind, version, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode trigger", err)
		return true
	}

	key := deliveryKey(msg)
	claimed, err := c.manager.Claim(ctx, consumerName, key)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if !claimed {
		c.logg.Info(logCtx, "trigger already processed")
		return true
	}

	job := "trigger." + string(kind)
	start := time.Now()
	err = c.dispatch(ctx, payload)
	c.metrics.ObserveDuration(job, time.Since(start))
	if err != nil {
		c.metrics.IncFailure(job)
		if pkgerrors.IsRetryable(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "trigger failed, will retry")
			if delErr := c.manager.Release(ctx, consumerName, key); delErr != nil {
				c.logg.Error(logCtx, "failed to release idempotency marker", delErr)
			}
			return false
		}
		c.logg.Error(logCtx, "trigger rejected", err)
		return true
	}

	c.metrics.IncSuccess(job)
	c.logg.Info(logCtx, "trigger applied")
	return true
}

func (c *Consumer) dispatch(ctx context.Context, payload interface{}) error {
	switch p := payload.(type) {
	case *AdvancePayload:
		if len(p.ItemIDs) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item_ids required")
		}
		_, err := c.engine.AdvanceMany(ctx, status.AdvanceManyInput{
			ItemIDs: p.ItemIDs,
			Trigger: p.Trigger,
			ActorID: p.ActorID,
		})
		return err
	case *PaymentAllocatePayload:
		_, err := c.payments.Allocate(ctx, p.PaymentID, p.ActorID)
		return err
	case *OrderStatusPayload:
		_, err := c.orders.UpdateOrderStatus(ctx, p.OrderID, p.Status, p.ActorID)
		return err
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported trigger payload %T", payload)
	}
}

func messageVersion(attrs map[string]string) (int, error) {
	raw := strings.TrimSpace(attrs[attrVersion])
	if raw == "" {
		return 1, nil
	}
	version, err := strconv.Atoi(raw)
	if err != nil || version < 1 {
		return 0, fmt.Errorf("invalid version %q", raw)
	}
	return version, nil
}

// deliveryKey prefers the publisher supplied trigger_id and falls back to a stable
// id derived from the Pub/Sub message id.
func deliveryKey(msg Message) uuid.UUID {
	if raw := strings.TrimSpace(msg.Attributes[attrTriggerID]); raw != "" {
		if id, err := uuid.Parse(raw); err == nil && id != uuid.Nil {
			return id
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("pubsub:"+msg.ID))
}
