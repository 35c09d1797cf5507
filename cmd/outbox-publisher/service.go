package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultMaxAttempts    = 10
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second

	// failed batches back off from the poll interval up to this ceiling
	maxBatchBackoff = 10 * time.Second
	pollJitter      = 250 * time.Millisecond
)

type (
	dbClient interface {
		Ping(context.Context) error
		WithTx(context.Context, func(tx *gorm.DB) error) error
	}
	pubSubClient interface {
		Ping(context.Context) error
		Publisher(topic string) *gcppubsub.Publisher
	}
	outboxRepository interface {
		FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
		MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
		MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
		MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error
	}
	dlqRepository interface {
		InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
	}
	registryResolver interface {
		Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
	}
	publisherMetrics interface {
		Published(eventType string)
		Retried(eventType string)
		DeadLettered(eventType, reason string)
		ObserveBatch(size int, duration time.Duration)
	}
)

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	Metrics          publisherMetrics
	PublisherFactory publisherFunc
	Now              func() time.Time
}

func (p ServiceParams) missing() error {
	deps := []struct {
		name string
		set  bool
	}{
		{"config", p.Config != nil},
		{"logger", p.Logger != nil},
		{"database client", p.DB != nil},
		{"pubsub client", p.PubSub != nil},
		{"outbox repository", p.Repository != nil},
		{"event registry", p.Registry != nil},
		{"dlq repository", p.DLQRepository != nil},
	}
	for _, d := range deps {
		if !d.set {
			return fmt.Errorf("%s is required", d.name)
		}
	}
	return nil
}

// Service moves outbox rows onto Pub/Sub. Each batch is locked, published
// concurrently and settled inside one transaction.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	registry         registryResolver
	dlq              dlqRepository
	metrics          publisherMetrics
	publisherFactory publisherFunc
	now              func() time.Time

	dlqTopic       string
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.missing(); err != nil {
		return nil, err
	}
	outboxCfg := params.Config.Outbox

	s := &Service{
		logg:             params.Logger,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		metrics:          params.Metrics,
		publisherFactory: params.PublisherFactory,
		now:              params.Now,
		dlqTopic:         params.Config.PubSub.DLQTopic,
		batchSize:        positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     positiveOr(time.Duration(outboxCfg.PollIntervalMS)*time.Millisecond, defaultPollInterval),
		publishTimeout:   defaultPublishTimeout,
	}
	if s.publisherFactory == nil {
		s.publisherFactory = clientPublishers(params.PubSub)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is done. A batch that found rows is followed at once by
// the next; an idle poll waits one interval and a failed one backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for ctx.Err() == nil {
		worked, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = min(2*backoff, maxBatchBackoff)
			if !s.pause(ctx, backoff) {
				break
			}
			continue
		}
		backoff = s.pollInterval
		if !worked && !s.pause(ctx, s.pollInterval) {
			break
		}
	}
	s.logg.Info(ctx, "outbox publisher stopping")
	return ctx.Err()
}

func (s *Service) ready(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// pause sleeps for d plus jitter and reports false if ctx ended first.
func (s *Service) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d + rand.N(pollJitter))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
