package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
)

const (
	defaultSweepGrace = 10 * time.Minute
	defaultSweepLimit = 100
)

type unallocatedLister interface {
	ListUnallocatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

type paymentAllocator interface {
	Allocate(ctx context.Context, paymentID uuid.UUID, actorID *uuid.UUID) (*payments.AllocateResult, error)
}

type PaymentSweepJobParams struct {
	Logger     *logger.Logger
	Repository unallocatedLister
	Payments   paymentAllocator
	Grace      time.Duration
	Limit      int
}

// NewPaymentSweepJob allocates payments that were recorded but never allocated, for
// example when a payment_allocate trigger was lost.
func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	return &paymentSweepJob{
		logg:     params.Logger,
		repo:     params.Repository,
		payments: params.Payments,
		grace:    grace,
		limit:    limit,
		now:      time.Now,
	}, nil
}

type paymentSweepJob struct {
	logg     *logger.Logger
	repo     unallocatedLister
	payments paymentAllocator
	grace    time.Duration
	limit    int
	now      func() time.Time
}

func (j *paymentSweepJob) Name() string { return "payment-allocation-sweep" }

// Run allocates each pending payment on its own. Business rejections such as an
// overpayment are logged and left for an operator; other failures fail the job.
func (j *paymentSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	pending, err := j.repo.ListUnallocatedBefore(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list unallocated payments: %w", err)
	}

	var (
		allocated int
		rejected  int
		errs      error
	)
	for _, payment := range pending {
		payCtx := j.logg.WithFields(ctx, map[string]any{
			"payment_id":      payment.ID.String(),
			"client_quote_id": payment.ClientQuoteID.String(),
		})
		if _, err := j.payments.Allocate(payCtx, payment.ID, nil); err != nil {
			if pkgerrors.IsRetryable(err) || pkgerrors.As(err) == nil {
				errs = multierr.Append(errs, fmt.Errorf("allocate %s: %w", payment.ID, err))
				continue
			}
			rejected++
			j.logg.Warn(j.logg.WithField(payCtx, "error", err.Error()), "pending payment rejected by allocator")
			continue
		}
		allocated++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"pending":   len(pending),
		"allocated": allocated,
		"rejected":  rejected,
	}), "payment allocation sweep complete")
	return errs
}
