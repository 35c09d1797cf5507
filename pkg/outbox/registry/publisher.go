package registry

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	"github.com/biddart/biddart-backend/pkg/outbox"
	"github.com/biddart/biddart-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and which aggregate
// may emit it.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that passed validation, with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

func event[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		decode: func(raw json.RawMessage) (any, error) {
			out := new(T)
			if err := json.Unmarshal(raw, out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

var knownEvents = []EventDescriptor{
	event[payloads.BidPlacedEvent](enums.EventBidPlaced, enums.AggregateBid),
	event[payloads.BidWithdrawnEvent](enums.EventBidWithdrawn, enums.AggregateBid),
	event[payloads.BidderRegisteredEvent](enums.EventBidderRegistered, enums.AggregateBidder),
	event[payloads.CheckoutEvent](enums.EventCheckoutCreated, enums.AggregateCheckoutSession),
	event[payloads.CheckoutEvent](enums.EventCheckoutCompleted, enums.AggregateCheckoutSession),
	event[payloads.CheckoutEvent](enums.EventCheckoutFailed, enums.AggregateCheckoutSession),
	event[payloads.CheckoutEvent](enums.EventCheckoutRefunded, enums.AggregateCheckoutSession),
	event[payloads.ReconciliationEvent](enums.EventReconciliationRequired, enums.AggregateReconciliation),
	event[payloads.ReconciliationEvent](enums.EventReconciliationResolved, enums.AggregateReconciliation),
}

// NewEventRegistry routes every auction event to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	byType := make(map[enums.OutboxEventType]EventDescriptor, len(knownEvents))
	for _, desc := range knownEvents {
		desc.Topic = cfg.DomainTopic
		byType[desc.EventType] = desc
	}
	return &EventRegistry{byType: byType}, nil
}

// Resolve checks a row against its descriptor and envelope. Every failure is
// non-retryable: a malformed row will not fix itself.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("%s belongs to %s aggregates, row has %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("%s row has no aggregate id", row.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, permanent("%s: %w", row.EventType, err)
	}
	_, tenantID, err := envelope.Identity()
	if err != nil {
		return nil, permanent("%s: %w", row.EventType, err)
	}
	if tenantID != row.TenantID {
		return nil, permanent("envelope tenant %s does not match row tenant %s", tenantID, row.TenantID)
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
