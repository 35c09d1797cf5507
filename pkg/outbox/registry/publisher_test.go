package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	bidID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.BidPlacedEvent{
		BidID:       bidID,
		Kind:        enums.BidKindStandard,
		AmountCents: 11000,
		IsWinning:   true,
	})

	tenantID := uuid.New()
	event := models.OutboxEvent{
		TenantID:      tenantID,
		EventType:     enums.EventBidPlaced,
		AggregateType: enums.AggregateBid,
		AggregateID:   bidID,
		Payload:       mustEnvelope(t, tenantID, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "domain-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.BidPlacedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.BidID != bidID || payload.AmountCents != 11000 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryResolveRejects(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("bid.exploded"),
			AggregateType: enums.AggregateBid,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.New(), []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateBid,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.New(), []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateCheckoutSession,
			Payload:       mustEnvelope(t, uuid.New(), []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.New(), []byte(`null`)),
		},
		"tenant mismatch": {
			TenantID:      uuid.New(),
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.New(), []byte(`{}`)),
		},
		"broken envelope": {
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{`),
		},
	}

	for name, event := range cases {
		_, err := reg.Resolve(event)
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %v", name, err)
		}
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain-topic"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, tenantID uuid.UUID, data []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		TenantID:   tenantID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}

func TestIsNonRetryableFollowsWrapping(t *testing.T) {
	wrapped := fmt.Errorf("publish: %w", NewNonRetryableError(errors.New("message too large")))
	if !IsNonRetryable(wrapped) {
		t.Fatal("expected wrapped non-retryable error to be detected")
	}
	if IsNonRetryable(errors.New("deadline exceeded")) || IsNonRetryable(nil) {
		t.Fatal("plain errors are retryable")
	}
	if NewNonRetryableError(nil).Error() == "" {
		t.Fatal("empty non-retryable error must still describe itself")
	}
}
