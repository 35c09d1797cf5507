package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/biddart/biddart-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubConsumer struct {
	err     error
	block   bool
	stopped *atomic.Bool
}

func (s stubConsumer) Run(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		if s.stopped != nil {
			s.stopped.Store(true)
		}
		return ctx.Err()
	}
	return s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func newTestService(t *testing.T, redisErr error, subs ...Subscriber) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Dependencies: []Dependency{
			{Name: "database", Check: stubPinger{}},
			{Name: "redis", Check: stubPinger{err: redisErr}},
			{Name: "pubsub", Check: stubPinger{}},
		},
		Subscribers: subs,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceValidatesParams(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected missing subscribers to be rejected")
	}
	_, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Dependencies: []Dependency{{Name: "database"}},
		Subscribers:  []Subscriber{{Name: "notifications", Consumer: stubConsumer{}}},
	})
	if err == nil {
		t.Fatal("expected dependency without a check to be rejected")
	}
	_, err = NewService(ServiceParams{
		Logger:      testLogger(),
		Subscribers: []Subscriber{{Name: "notifications"}},
	})
	if err == nil {
		t.Fatal("expected subscriber without a consumer to be rejected")
	}
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	svc := newTestService(t, errors.New("redis down"), Subscriber{Name: "notifications", Consumer: stubConsumer{block: true}})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
}

func TestRunSurfacesSubscriberErrorAndStopsOthers(t *testing.T) {
	boom := errors.New("receive failed")
	var stopped atomic.Bool
	svc := newTestService(t, nil,
		Subscriber{Name: "notifications", Consumer: stubConsumer{err: boom}},
		Subscriber{Name: "other", Consumer: stubConsumer{block: true, stopped: &stopped}},
	)
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected subscriber error, got %v", err)
	}
	if !stopped.Load() {
		t.Fatal("expected remaining subscriber to be canceled and drained")
	}
}

func TestRunTreatsCleanExitAsFailure(t *testing.T) {
	svc := newTestService(t, nil, Subscriber{Name: "notifications", Consumer: stubConsumer{}})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected an early subscriber exit to be reported")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var stopped atomic.Bool
	svc := newTestService(t, nil, Subscriber{Name: "notifications", Consumer: stubConsumer{block: true, stopped: &stopped}})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if !stopped.Load() {
		t.Fatal("expected subscriber to stop before Run returned")
	}
}
