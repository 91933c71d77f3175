package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/enums"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox/registry"
)

type batchStats struct {
	published    int
	retried      int
	deadLettered int
}

func (b batchStats) total() int { return b.published + b.retried + b.deadLettered }

func (b batchStats) fields() map[string]any {
	return map[string]any{
		"published":     b.published,
		"retried":       b.retried,
		"dead_lettered": b.deadLettered,
	}
}

// inflight is one outbox row between dispatch and settlement.
type inflight struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   publishResult
	err      error
}

func (f *inflight) topic() string {
	if f.resolved == nil {
		return ""
	}
	return f.resolved.Descriptor.Topic
}

// processBatch locks a batch of rows, publishes all of them, then waits on each result
// and records the outcome inside the same transaction.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		batch := make([]*inflight, 0, len(events))
		for _, event := range events {
			batch = append(batch, s.dispatch(publishCtx, event))
		}
		for _, f := range batch {
			if f.err == nil {
				_, f.err = f.result.Get(publishCtx)
			}
			if err := s.settle(ctx, tx, f, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) *inflight {
	f := &inflight{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		f.err = registry.NewNonRetryableError(err)
		return f
	}
	f.resolved = resolved

	pub := s.publisherFactory(resolved.Descriptor.Topic)
	if pub == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", resolved.Descriptor.Topic))
		return f
	}
	f.result = pub.Publish(ctx, messageFor(event, resolved))
	if f.result == nil {
		f.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", resolved.Descriptor.Topic))
	}
	return f
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, f *inflight, stats *batchStats) error {
	fields := s.eventFields(f)
	if f.err == nil {
		if err := s.repo.MarkPublishedTx(tx, f.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", f.event.ID, err)
		}
		stats.published++
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	if registry.IsNonRetryable(f.err) {
		stats.deadLettered++
		return s.deadLetter(ctx, tx, f, enums.OutboxDLQReasonNonRetryable, f.err, fields)
	}

	attempt := f.event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		stats.deadLettered++
		return s.deadLetter(ctx, tx, f, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", f.err), fields)
	}

	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, f.err)), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, f.event.ID, f.err); err != nil {
		return fmt.Errorf("mark failure %s: %w", f.event.ID, err)
	}
	stats.retried++
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, f *inflight, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, cause)), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       f.event.ID,
		EventType:     f.event.EventType,
		AggregateType: f.event.AggregateType,
		AggregateID:   f.event.AggregateID,
		Payload:       f.event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  f.event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", f.event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, f.event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", f.event.ID, err)
	}
	return nil
}

// messageFor carries the stored envelope as data. Attributes let subscribers filter
// without decoding.
func messageFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"version":        strconv.Itoa(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) eventFields(f *inflight) map[string]any {
	fields := map[string]any{
		"outbox_id":      f.event.ID.String(),
		"event_type":     f.event.EventType,
		"aggregate_type": f.event.AggregateType,
		"aggregate_id":   f.event.AggregateID.String(),
		"attempt_count":  f.event.AttemptCount,
	}
	if topic := f.topic(); topic != "" {
		fields["topic"] = topic
	}
	if f.resolved != nil && f.resolved.Envelope.EventID != "" {
		fields["event_id"] = f.resolved.Envelope.EventID
		fields["occurred_at"] = f.resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if f.event.LastError != nil {
		fields["last_error"] = *f.event.LastError
	}
	return fields
}

func withError(fields map[string]any, err error) map[string]any {
	fields["error"] = err.Error()
	return fields
}
