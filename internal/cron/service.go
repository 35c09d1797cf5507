package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biddart/biddart-backend/pkg/logger"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  jobMetrics
	Interval time.Duration
	// JobTimeout bounds each job. Keep it below the lease TTL so a job never
	// outlives the lease it started under. Zero means no bound.
	JobTimeout time.Duration
	Now        func() time.Time
}

type jobMetrics interface {
	ObserveDuration(job string, duration time.Duration)
	IncSuccess(job string)
	IncFailure(job string)
	IncSkipped(job string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDuration(string, time.Duration) {}
func (nopMetrics) IncSuccess(string)                     {}
func (nopMetrics) IncFailure(string)                     {}
func (nopMetrics) IncSkipped(string)                     {}

// Service runs the due jobs of its registry once per interval, on whichever
// replica holds the lease.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    jobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        params.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout < 0 {
		s.jobTimeout = 0
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run ticks until ctx is canceled. The first cycle runs immediately.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        s.registry.Names(),
		"interval":    s.interval.String(),
		"job_timeout": s.jobTimeout.String(),
	}), "cron worker started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		// release even when ctx was canceled mid-cycle
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	due := s.registry.Due(s.now())
	s.logg.Info(s.logg.WithField(ctx, "due_jobs", len(due)), "scheduled run starting")
	for i, job := range due {
		if ctx.Err() != nil {
			s.skip(ctx, due[i:], ctx.Err())
			return nil
		}
		if i > 0 {
			held, err := s.lock.Refresh(ctx)
			if err != nil || !held {
				s.skip(ctx, due[i:], err)
				return nil
			}
		}
		s.registry.MarkRan(job.Name(), s.now())
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

// skip abandons the rest of a cycle. Losing the lease mid-cycle must stop this
// replica so two never sweep reconciliation cases at once.
func (s *Service) skip(ctx context.Context, jobs []Job, cause error) {
	names := make([]string, len(jobs))
	for i, job := range jobs {
		names[i] = job.Name()
		s.metrics.IncSkipped(job.Name())
	}
	ctx = s.logg.WithField(ctx, "skipped_jobs", names)
	if cause != nil {
		s.logg.Error(ctx, "abandoning cron cycle", cause)
		return
	}
	s.logg.Warn(ctx, "cron lock lost; abandoning cycle")
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(jobCtx, "job completed")
}
