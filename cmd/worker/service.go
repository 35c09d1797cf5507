package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/biddart/biddart-backend/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	pingTimeout       = 5 * time.Second
	drainTimeout      = 20 * time.Second
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(context.Context) error
}

// Dependency is checked once before any consumer starts.
type Dependency struct {
	Name  string
	Check pinger
}

// Subscriber is a long-running message consumer owned by the worker.
type Subscriber struct {
	Name     string
	Consumer consumer
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []Dependency
	Subscribers  []Subscriber
}

// Service supervises the worker's subscribers. A subscriber that returns while
// the worker is still running is fatal for the whole process.
type Service struct {
	logg         *logger.Logger
	dependencies []Dependency
	subscribers  []Subscriber
}

type subscriberExit struct {
	name string
	err  error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Subscribers) == 0 {
		return nil, errors.New("at least one subscriber is required")
	}
	for _, dep := range params.Dependencies {
		if dep.Name == "" || dep.Check == nil {
			return nil, fmt.Errorf("dependency %q is incomplete", dep.Name)
		}
	}
	for _, sub := range params.Subscribers {
		if sub.Name == "" || sub.Consumer == nil {
			return nil, fmt.Errorf("subscriber %q is incomplete", sub.Name)
		}
	}
	return &Service{
		logg:         params.Logger,
		dependencies: params.Dependencies,
		subscribers:  params.Subscribers,
	}, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	for _, dep := range s.dependencies {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := dep.Check.Ping(pingCtx)
		cancel()
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.Name), "worker dependency unavailable", err)
			return fmt.Errorf("%s ping failed: %w", dep.Name, err)
		}
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

// Run blocks until ctx is canceled or a subscriber stops.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan subscriberExit, len(s.subscribers))
	var wg sync.WaitGroup
	for _, sub := range s.subscribers {
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()
			subCtx := s.logg.WithField(runCtx, "subscriber", sub.Name)
			s.logg.Info(subCtx, "subscriber starting")
			exits <- subscriberExit{name: sub.Name, err: sub.Consumer.Run(subCtx)}
		}(sub)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			runErr = ctx.Err()
			break loop
		case exit := <-exits:
			runErr = exitError(exit)
			s.logg.Error(s.logg.WithField(ctx, "subscriber", exit.name), "subscriber stopped", runErr)
			break loop
		case <-ticker.C:
			s.logg.Debug(ctx, "worker heartbeat")
		}
	}

	cancel()
	s.drain(ctx, &wg)
	return runErr
}

func exitError(exit subscriberExit) error {
	if exit.err == nil {
		return fmt.Errorf("subscriber %s exited", exit.name)
	}
	return fmt.Errorf("subscriber %s: %w", exit.name, exit.err)
}

func (s *Service) drain(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.logg.Warn(ctx, "subscribers did not stop before drain timeout")
	}
}
