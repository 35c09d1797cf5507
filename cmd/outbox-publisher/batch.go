package main

import (
	"context"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	"github.com/biddart/biddart-backend/pkg/outbox/registry"
)

// inflight is one event whose publish has been started but not yet awaited.
type inflight struct {
	event  models.OutboxEvent
	topic  string
	fields map[string]any
	result publishResult
	err    error
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	started := time.Now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		pending := make([]inflight, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnresolvable, err, s.eventFields(event, nil)); err != nil {
					return err
				}
				continue
			}
			pending = append(pending, s.startPublish(publishCtx, event, resolved))
		}

		for _, p := range pending {
			if err := s.settle(ctx, publishCtx, tx, p); err != nil {
				return err
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveBatch(len(events), time.Since(started))
		}
		return nil
	})
	return processed, err
}

func (s *Service) startPublish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) inflight {
	topic := resolved.Descriptor.Topic
	p := inflight{event: event, topic: topic, fields: s.eventFields(event, resolved)}

	pub := s.publisherFactory(topic)
	if pub == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return p
	}
	p.result = pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope.EventID),
	})
	if p.result == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return p
}

// settle waits for one publish and records the outcome on the locked row.
func (s *Service) settle(ctx, publishCtx context.Context, tx *gorm.DB, p inflight) error {
	err := p.err
	if err == nil {
		_, err = p.result.Get(publishCtx)
	}
	eventType := string(p.event.EventType)

	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, p.event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", p.event.ID, markErr)
		}
		if s.metrics != nil {
			s.metrics.Published(eventType)
		}
		s.logg.Info(s.logg.WithFields(ctx, p.fields), "outbox event published")
		return nil
	}

	if registry.IsNonRetryable(err) {
		return s.deadLetter(ctx, tx, p.event, enums.OutboxDLQReasonNonRetryable, err, p.fields)
	}

	attempt := p.event.AttemptCount + 1
	p.fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return s.deadLetter(ctx, tx, p.event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), p.fields)
	}

	logCtx := s.logg.WithField(s.logg.WithFields(ctx, p.fields), "error", err.Error())
	s.logg.Warn(logCtx, "outbox publish failed; will retry")
	if markErr := s.repo.MarkFailedTx(tx, p.event.ID, err); markErr != nil {
		return fmt.Errorf("mark failure %s: %w", p.event.ID, markErr)
	}
	if s.metrics != nil {
		s.metrics.Retried(eventType)
	}
	return nil
}

// deadLetter copies the row into outbox_dlq and pins its attempts at the ceiling so the
// poller skips it until an operator replays it.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(logCtx, "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	if s.metrics != nil {
		s.metrics.DeadLettered(string(event.EventType), reason.String())
	}
	s.forwardToDLQTopic(ctx, event, reason)
	return nil
}

// forwardToDLQTopic mirrors a dead-lettered event onto the DLQ topic when one is
// configured. The DLQ row is authoritative, so failures are only logged.
func (s *Service) forwardToDLQTopic(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason) {
	if s.dlqTopic == "" {
		return
	}
	pub := s.publisherFactory(s.dlqTopic)
	if pub == nil {
		return
	}
	attrs := messageAttributes(event, "")
	attrs["dlq_reason"] = reason.String()

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{Data: event.Payload, Attributes: attrs})
	if result == nil {
		return
	}
	if _, err := result.Get(publishCtx); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "topic", s.dlqTopic), "dlq topic publish failed", err)
	}
}

// messageAttributes lets subscribers filter and dedupe without decoding the payload.
func messageAttributes(event models.OutboxEvent, envelopeEventID string) map[string]string {
	if envelopeEventID == "" {
		envelopeEventID = event.ID.String()
	}
	return map[string]string{
		"event_id":       envelopeEventID,
		"event_type":     string(event.EventType),
		"tenant_id":      event.TenantID.String(),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"tenant_id":      event.TenantID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
