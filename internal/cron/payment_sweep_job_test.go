package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ffe-procurement/internal/payments"
	"github.com/angelmondragon/ffe-procurement/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

type fakeUnallocated struct {
	rows   []models.Payment
	cutoff time.Time
	limit  int
	err    error
}

func (f *fakeUnallocated) ListUnallocatedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.rows, f.err
}

type fakeSweepAllocator struct {
	errs  map[uuid.UUID]error
	calls []uuid.UUID
}

func (f *fakeSweepAllocator) Allocate(_ context.Context, paymentID uuid.UUID, _ *uuid.UUID) (*payments.AllocateResult, error) {
	f.calls = append(f.calls, paymentID)
	if err := f.errs[paymentID]; err != nil {
		return nil, err
	}
	return &payments.AllocateResult{Changed: true}, nil
}

func newSweepJob(t *testing.T, repo *fakeUnallocated, alloc *fakeSweepAllocator) *paymentSweepJob {
	t.Helper()
	jobIface, err := NewPaymentSweepJob(PaymentSweepJobParams{
		Logger:     testLogger(),
		Repository: repo,
		Payments:   alloc,
	})
	if err != nil {
		t.Fatalf("NewPaymentSweepJob: %v", err)
	}
	return jobIface.(*paymentSweepJob)
}

func TestPaymentSweepAllocatesPending(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	first, second := uuid.New(), uuid.New()
	repo := &fakeUnallocated{rows: []models.Payment{{ID: first}, {ID: second}}}
	alloc := &fakeSweepAllocator{}
	job := newSweepJob(t, repo, alloc)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.cutoff.Equal(now.Add(-defaultSweepGrace)) || repo.limit != defaultSweepLimit {
		t.Fatalf("unexpected list args cutoff=%s limit=%d", repo.cutoff, repo.limit)
	}
	if len(alloc.calls) != 2 || alloc.calls[0] != first || alloc.calls[1] != second {
		t.Fatalf("unexpected allocate calls %v", alloc.calls)
	}
}

func TestPaymentSweepToleratesBusinessRejections(t *testing.T) {
	bad, good := uuid.New(), uuid.New()
	alloc := &fakeSweepAllocator{errs: map[uuid.UUID]error{
		bad: pkgerrors.New(pkgerrors.CodeOverpayment, "payment would overpay"),
	}}
	job := newSweepJob(t, &fakeUnallocated{rows: []models.Payment{{ID: bad}, {ID: good}}}, alloc)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("overpayment should not fail the sweep: %v", err)
	}
	if len(alloc.calls) != 2 {
		t.Fatalf("expected both payments attempted, got %d", len(alloc.calls))
	}
}

func TestPaymentSweepReportsRetryableFailures(t *testing.T) {
	flaky, broken, good := uuid.New(), uuid.New(), uuid.New()
	alloc := &fakeSweepAllocator{errs: map[uuid.UUID]error{
		flaky:  pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "row moved"),
		broken: errors.New("connection reset"),
	}}
	job := newSweepJob(t, &fakeUnallocated{rows: []models.Payment{{ID: flaky}, {ID: broken}, {ID: good}}}, alloc)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(alloc.calls) != 3 {
		t.Fatalf("every payment should be attempted, got %d", len(alloc.calls))
	}
}

func TestPaymentSweepListError(t *testing.T) {
	job := newSweepJob(t, &fakeUnallocated{err: errors.New("db down")}, &fakeSweepAllocator{})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
