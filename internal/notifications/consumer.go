package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/idempotency"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

const (
	staffNotificationConsumer = "staff-notifications"
	sourceEventIndex          = "ux_notifications_source_event"
)

type creator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type claimer interface {
	Claim(ctx context.Context, consumer, eventID string) (*idempotency.Claim, idempotency.Outcome, error)
}

// Consumer turns payment-related domain events into staff notifications.
type Consumer struct {
	repo         creator
	subscription *pubsub.Subscriber
	claims       claimer
	logg         *logger.Logger
}

// NewConsumer builds a staff notification consumer.
func NewConsumer(repo creator, subscription *pubsub.Subscriber, claims claimer, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		claims:       claims,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !handles(eventType) {
		c.logg.Debug(logCtx, "skipping event without staff notification")
		return processResult{}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable envelope", err)
		return processResult{}
	}
	eventID, tenantID, err := envelope.Identity()
	if err != nil {
		c.logg.Error(logCtx, "dropping envelope without identity", err)
		return processResult{}
	}
	logCtx = c.logg.WithTenantID(logCtx, tenantID.String())

	claim, outcome, err := c.claims.Claim(ctx, staffNotificationConsumer, eventID.String())
	if err != nil {
		c.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	}
	switch outcome {
	case idempotency.Duplicate:
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	case idempotency.InFlight:
		c.logg.Info(logCtx, "event held by another delivery")
		return processResult{nack: true}
	}

	notification, err := buildNotification(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		c.release(logCtx, claim)
		return processResult{nack: true}
	}
	created := false
	if notification != nil {
		notification.TenantID = tenantID
		notification.SourceEventID = &eventID
		err = c.repo.Create(ctx, notification)
		switch {
		case db.IsUniqueViolation(err, sourceEventIndex):
			c.logg.Info(logCtx, "notification already exists for event")
		case err != nil:
			c.logg.Error(logCtx, "notification insert failed", err)
			c.release(logCtx, claim)
			return processResult{nack: true}
		default:
			created = true
		}
	}
	if err := claim.Complete(ctx); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "could not record event as processed")
	}
	if created {
		c.logg.Info(c.logg.WithField(logCtx, "notification_type", notification.Type), "staff notified")
	}
	return processResult{}
}

func (c *Consumer) release(ctx context.Context, claim *idempotency.Claim) {
	if err := claim.Release(ctx); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "failed to release idempotency claim")
	}
}

func handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventReconciliationRequired, enums.EventCheckoutFailed, enums.EventCheckoutRefunded:
		return true
	}
	return false
}

func buildNotification(eventType enums.OutboxEventType, data json.RawMessage) (*models.Notification, error) {
	switch eventType {
	case enums.EventReconciliationRequired:
		var payload payloads.ReconciliationEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			Type:    enums.NotificationTypePaymentAttention,
			Title:   "Payment needs review",
			Message: fmt.Sprintf("A %s card payment could not be confirmed (%s). Check the gateway before re-charging.", fees.FormatCents(payload.AmountCents), payload.Reason),
			Link:    stringPtr(fmt.Sprintf("/reconciliation/cases/%s", payload.CaseID)),
		}, nil
	case enums.EventCheckoutFailed:
		var payload payloads.CheckoutEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		message := fmt.Sprintf("Checkout for %s failed.", fees.FormatCents(payload.TotalCents))
		if payload.FailureReason != "" {
			message = fmt.Sprintf("Checkout for %s failed: %s", fees.FormatCents(payload.TotalCents), payload.FailureReason)
		}
		return &models.Notification{
			Type:    enums.NotificationTypePaymentFailed,
			Title:   "Checkout failed",
			Message: message,
			Link:    stringPtr(fmt.Sprintf("/checkout/sessions/%s", payload.SessionID)),
		}, nil
	case enums.EventCheckoutRefunded:
		var payload payloads.CheckoutEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		title := "Partial refund issued"
		if payload.FullRefund {
			title = "Refund issued"
		}
		return &models.Notification{
			Type:    enums.NotificationTypeRefundIssued,
			Title:   title,
			Message: fmt.Sprintf("%s refunded on a %s checkout.", fees.FormatCents(payload.RefundedCents), fees.FormatCents(payload.TotalCents)),
			Link:    stringPtr(fmt.Sprintf("/checkout/sessions/%s", payload.SessionID)),
		}, nil
	}
	return nil, nil
}

func stringPtr(value string) *string {
	return &value
}
