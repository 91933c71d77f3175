package cron

import (
	"context"
	"testing"
)

type namedJob struct {
	name string
}

func (j *namedJob) Name() string              { return j.name }
func (j *namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	sweep := &namedJob{name: "payment-allocation-sweep"}
	retention := &namedJob{name: "outbox-retention"}
	registry, err := NewRegistry(sweep, nil, retention)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != sweep || jobs[1] != retention {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	if _, err := NewRegistry(&namedJob{name: "outbox-retention"}, &namedJob{name: "outbox-retention"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}
	registry := &Registry{}
	if err := registry.Register(&namedJob{name: "  "}); err == nil {
		t.Fatalf("expected blank name error")
	}
	if err := registry.Register(&namedJob{name: "outbox-retention"}); err != nil {
		t.Fatalf("zero registry should accept jobs: %v", err)
	}
}
