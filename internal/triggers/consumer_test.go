package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ffe-procurement/internal/orders"
	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/internal/status"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
)

type fakeEngine struct {
	calls []status.AdvanceManyInput
	err   error
}

func (f *fakeEngine) AdvanceMany(_ context.Context, input status.AdvanceManyInput) ([]status.AdvanceResult, error) {
	f.calls = append(f.calls, input)
	return nil, f.err
}

type fakeAllocator struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeAllocator) Allocate(_ context.Context, paymentID uuid.UUID, _ *uuid.UUID) (*payments.AllocateResult, error) {
	f.calls = append(f.calls, paymentID)
	if f.err != nil {
		return nil, f.err
	}
	return &payments.AllocateResult{}, nil
}

type fakeOrders struct {
	orderID uuid.UUID
	status  enums.OrderStatus
	err     error
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, next enums.OrderStatus, _ *uuid.UUID) (*orders.OrderResult, error) {
	f.orderID = orderID
	f.status = next
	if f.err != nil {
		return nil, f.err
	}
	return &orders.OrderResult{}, nil
}

type fakeIdempotency struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func (f *fakeIdempotency) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeIdempotency) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	f.deleted = append(f.deleted, eventID)
	delete(f.seen, eventID)
	return nil
}

type harness struct {
	consumer *Consumer
	engine   *fakeEngine
	alloc    *fakeAllocator
	orders   *fakeOrders
	idem     *fakeIdempotency
	registry *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine:   &fakeEngine{},
		alloc:    &fakeAllocator{},
		orders:   &fakeOrders{},
		idem:     &fakeIdempotency{},
		registry: prometheus.NewRegistry(),
	}
	consumer, err := NewConsumer(ConsumerParams{
		Engine:   h.engine,
		Payments: h.alloc,
		Orders:   h.orders,
		Manager:  h.idem,
		Metrics:  metrics.NewJobMetrics(h.registry),
		Logger: logger.New(logger.Options{
			ServiceName: "triggers-test",
			Level:       "debug",
			Output:      io.Discard,
		}),
	})
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	h.consumer = consumer
	return h
}

func message(t *testing.T, id string, kind TriggerType, body any) Message {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Message{ID: id, Attributes: map[string]string{attrTriggerType: string(kind)}, Data: data}
}

func TestProcessAdvanceDispatchesToEngine(t *testing.T) {
	h := newHarness(t)
	itemA, itemB := uuid.New(), uuid.New()

	ack := h.consumer.Process(context.Background(), message(t, "m-1", TriggerAdvance, map[string]any{
		"item_ids": []string{itemA.String(), itemB.String()},
		"trigger":  "order_shipped",
	}))
	if !ack {
		t.Fatalf("expected ack")
	}
	if len(h.engine.calls) != 1 {
		t.Fatalf("expected 1 AdvanceMany call, got %d", len(h.engine.calls))
	}
	call := h.engine.calls[0]
	if call.Trigger != enums.TriggerOrderShipped || len(call.ItemIDs) != 2 || call.ItemIDs[0] != itemA {
		t.Fatalf("unexpected advance input: %+v", call)
	}
}

func TestProcessSkipsRedelivery(t *testing.T) {
	h := newHarness(t)
	paymentID := uuid.New()
	msg := message(t, "m-2", TriggerPaymentAllocate, map[string]any{"payment_id": paymentID.String()})

	if !h.consumer.Process(context.Background(), msg) {
		t.Fatalf("first delivery should ack")
	}
	if !h.consumer.Process(context.Background(), msg) {
		t.Fatalf("redelivery should ack")
	}
	if len(h.alloc.calls) != 1 || h.alloc.calls[0] != paymentID {
		t.Fatalf("expected a single allocation for %s, got %v", paymentID, h.alloc.calls)
	}
}

func TestProcessNacksRetryableAndReleasesMarker(t *testing.T) {
	h := newHarness(t)
	h.orders.err = pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "version moved")
	orderID := uuid.New()
	msg := message(t, "m-3", TriggerOrderStatus, map[string]any{"order_id": orderID.String(), "status": "SHIPPED"})

	if h.consumer.Process(context.Background(), msg) {
		t.Fatalf("retryable failure should nack")
	}
	if len(h.idem.deleted) != 1 {
		t.Fatalf("expected marker release, got %d", len(h.idem.deleted))
	}
	if h.orders.orderID != orderID || h.orders.status != enums.OrderStatusShipped {
		t.Fatalf("unexpected order update: %s %s", h.orders.orderID, h.orders.status)
	}

	h.orders.err = nil
	if !h.consumer.Process(context.Background(), msg) {
		t.Fatalf("redelivery after release should ack")
	}
}

func TestProcessAcksNonRetryableFailures(t *testing.T) {
	h := newHarness(t)
	h.alloc.err = pkgerrors.New(pkgerrors.CodeOverpayment, "would overpay")

	ack := h.consumer.Process(context.Background(), message(t, "m-4", TriggerPaymentAllocate, map[string]any{"payment_id": uuid.NewString()}))
	if !ack {
		t.Fatalf("non-retryable failure should ack")
	}
	if len(h.idem.deleted) != 0 {
		t.Fatalf("marker should stay for acked messages")
	}
}

func TestProcessAcksUndecodableMessages(t *testing.T) {
	h := newHarness(t)
	cases := map[string]Message{
		"unknown type":   {ID: "x-1", Attributes: map[string]string{attrTriggerType: "reindex"}, Data: []byte(`{}`)},
		"bad json":       {ID: "x-2", Attributes: map[string]string{attrTriggerType: string(TriggerAdvance)}, Data: []byte(`{`)},
		"bad version":    {ID: "x-3", Attributes: map[string]string{attrTriggerType: string(TriggerAdvance), attrVersion: "zero"}, Data: []byte(`{}`)},
		"future version": {ID: "x-4", Attributes: map[string]string{attrTriggerType: string(TriggerAdvance), attrVersion: "2"}, Data: []byte(`{}`)},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			if !h.consumer.Process(context.Background(), msg) {
				t.Fatalf("expected ack")
			}
		})
	}
	if len(h.engine.calls) != 0 {
		t.Fatalf("engine should not be called")
	}
}

func TestProcessNacksWhenIdempotencyStoreFails(t *testing.T) {
	h := newHarness(t)
	h.idem.err = errors.New("redis down")

	ack := h.consumer.Process(context.Background(), message(t, "m-5", TriggerAdvance, map[string]any{
		"item_ids": []string{uuid.NewString()},
		"trigger":  "item_closed",
	}))
	if ack {
		t.Fatalf("expected nack")
	}
	if len(h.engine.calls) != 0 {
		t.Fatalf("engine should not be called")
	}
}

func TestDeliveryKeyPrefersTriggerID(t *testing.T) {
	id := uuid.New()
	got := deliveryKey(Message{ID: "abc", Attributes: map[string]string{attrTriggerID: id.String()}})
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
	first := deliveryKey(Message{ID: "abc"})
	second := deliveryKey(Message{ID: "abc"})
	if first != second || first == uuid.Nil {
		t.Fatalf("derived key should be stable and non-nil")
	}
	if first == deliveryKey(Message{ID: "abd"}) {
		t.Fatalf("different message ids should not collide")
	}
}

func TestProcessRecordsJobMetrics(t *testing.T) {
	h := newHarness(t)
	h.alloc.err = pkgerrors.New(pkgerrors.CodeOverpayment, "would overpay")
	h.consumer.Process(context.Background(), message(t, "m-6", TriggerPaymentAllocate, map[string]any{"payment_id": uuid.NewString()}))
	h.consumer.Process(context.Background(), message(t, "m-7", TriggerAdvance, map[string]any{
		"item_ids": []string{uuid.NewString()},
		"trigger":  "item_closed",
	}))

	if got := jobCounter(t, h.registry, "procurement_job_failure_total", "trigger.payment_allocate"); got != 1 {
		t.Fatalf("expected one allocate failure, got %v", got)
	}
	if got := jobCounter(t, h.registry, "procurement_job_success_total", "trigger.advance"); got != 1 {
		t.Fatalf("expected one advance success, got %v", got)
	}
}

func jobCounter(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
