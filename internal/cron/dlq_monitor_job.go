package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

const (
	defaultDLQLookback = time.Hour
	defaultDLQLimit    = 50
)

type dlqReader interface {
	Count(ctx context.Context) (int64, error)
	ListFailedSince(ctx context.Context, since time.Time, limit int) ([]models.OutboxDLQ, error)
}

type dlqGauge interface {
	SetDLQBacklog(n int64)
}

type DLQMonitorJobParams struct {
	Logger     *logger.Logger
	Repository dlqReader
	Metrics    dlqGauge
	Lookback   time.Duration
	Limit      int
}

// NewDLQMonitorJob reports the dead-letter backlog and warns on rows parked since the
// previous run.
func NewDLQMonitorJob(params DLQMonitorJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultDLQLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	return &dlqMonitorJob{
		logg:     params.Logger,
		repo:     params.Repository,
		gauge:    params.Metrics,
		lookback: lookback,
		limit:    limit,
		now:      time.Now,
	}, nil
}

type dlqMonitorJob struct {
	logg     *logger.Logger
	repo     dlqReader
	gauge    dlqGauge
	lookback time.Duration
	limit    int
	now      func() time.Time
}

func (j *dlqMonitorJob) Name() string { return "outbox-dlq-monitor" }

func (j *dlqMonitorJob) Run(ctx context.Context) error {
	total, err := j.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count dlq: %w", err)
	}
	if j.gauge != nil {
		j.gauge.SetDLQBacklog(total)
	}

	since := j.now().UTC().Add(-j.lookback)
	recent, err := j.repo.ListFailedSince(ctx, since, j.limit)
	if err != nil {
		return fmt.Errorf("list recent dlq: %w", err)
	}
	for _, entry := range recent {
		fields := map[string]any{
			"event_id":       entry.EventID.String(),
			"event_type":     string(entry.EventType),
			"aggregate_type": string(entry.AggregateType),
			"aggregate_id":   entry.AggregateID.String(),
			"reason":         string(entry.ErrorReason),
			"attempt_count":  entry.AttemptCount,
			"failed_at":      entry.FailedAt,
		}
		if entry.ErrorMessage != nil {
			fields["error_message"] = *entry.ErrorMessage
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "outbox event dead-lettered")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"dlq_total":  total,
		"dlq_recent": len(recent),
		"since":      since,
	}), "outbox dlq check complete")
	return nil
}
