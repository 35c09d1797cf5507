package cron

import (
	"context"
	"slices"
	"testing"
	"time"
)

type namedJob string

func (j namedJob) Name() string              { return string(j) }
func (j namedJob) Run(context.Context) error { return nil }

func names(jobs []Job) []string {
	out := make([]string, len(jobs))
	for i, job := range jobs {
		out[i] = job.Name()
	}
	return out
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry(namedJob("reconciliation-sweep"), nil)
	reg.Register(nil)
	reg.RegisterEvery(namedJob("outbox-retention"), time.Hour)
	reg.Register(namedJob("dlq-report"))

	want := []string{"reconciliation-sweep", "outbox-retention", "dlq-report"}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	jobs := reg.Jobs()
	jobs[0] = namedJob("tampered")
	if reg.Names()[0] != "reconciliation-sweep" {
		t.Fatal("Jobs must return a copy")
	}
}

func TestRegistryDueHonoursSpacing(t *testing.T) {
	reg := NewRegistry(namedJob("reconciliation-sweep"))
	reg.RegisterEvery(namedJob("outbox-retention"), time.Hour)
	reg.RegisterEvery(namedJob("negative-spacing"), -time.Minute)
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		at   time.Duration
		want []string
	}{
		{0, []string{"reconciliation-sweep", "outbox-retention", "negative-spacing"}},
		{time.Minute, []string{"reconciliation-sweep", "negative-spacing"}},
		{59 * time.Minute, []string{"reconciliation-sweep", "negative-spacing"}},
		{time.Hour, []string{"reconciliation-sweep", "outbox-retention", "negative-spacing"}},
	}
	for _, step := range steps {
		now := start.Add(step.at)
		due := reg.Due(now)
		if got := names(due); !slices.Equal(got, step.want) {
			t.Fatalf("at +%s: expected %v, got %v", step.at, step.want, got)
		}
		for _, job := range due {
			reg.MarkRan(job.Name(), now)
		}
	}
}

func TestRegistryMarkRanIgnoresUnknownJobs(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterEvery(namedJob("outbox-retention"), time.Hour)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	reg.MarkRan("no-such-job", now)
	if got := names(reg.Due(now)); len(got) != 1 {
		t.Fatalf("unknown names must not consume spacing, got %v", got)
	}
}
