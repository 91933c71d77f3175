package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: mustRegistry(t, ok, failing),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "job failing") {
		t.Fatalf("expected failing job in cycle error, got %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.released != 1 {
		t.Fatalf("expected lock release, got %d", lock.released)
	}
	if got := counterValue(t, reg, "procurement_job_failure_total", "failing"); got != 1 {
		t.Fatalf("expected one failure sample, got %v", got)
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "ok"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: mustRegistry(t, job),
		Lock:     &fakeLock{held: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "ok"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: mustRegistry(t, job),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the immediate cycle to run, got %d", job.runs)
	}
}

func TestRunCycleRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: mustRegistry(t, panicJob{}, after),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	err = service.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panic: kaboom") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("jobs after a panic should still run")
	}
	if lock.released != 1 {
		t.Fatalf("lock should be released after a panic")
	}
}

func TestRunJobAppliesTimeout(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   mustRegistry(t),
		Lock:       &fakeLock{},
		JobTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runJob(context.Background(), blockingJob{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type panicJob struct{}

func (panicJob) Name() string { return "panics" }

func (panicJob) Run(context.Context) error { panic("kaboom") }

type blockingJob struct{}

func (blockingJob) Name() string { return "blocks" }

func (blockingJob) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
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
	t.Fatalf("metric %s{job=%q} not found", name, job)
	return 0
}

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}
