package enums

import "slices"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateBid             OutboxAggregateType = "bid"
	AggregateBidder          OutboxAggregateType = "bidder"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregateReconciliation  OutboxAggregateType = "reconciliation_case"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBid,
	AggregateBidder,
	AggregateCheckoutSession,
	AggregateReconciliation,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType is the routing key published with every domain event.
type OutboxEventType string

const (
	EventBidPlaced              OutboxEventType = "bid.placed"
	EventBidWithdrawn           OutboxEventType = "bid.withdrawn"
	EventBidderRegistered       OutboxEventType = "bidder.registered"
	EventCheckoutCreated        OutboxEventType = "checkout.created"
	EventCheckoutCompleted      OutboxEventType = "checkout.completed"
	EventCheckoutFailed         OutboxEventType = "checkout.failed"
	EventCheckoutRefunded       OutboxEventType = "checkout.refunded"
	EventReconciliationRequired OutboxEventType = "reconciliation.required"
	EventReconciliationResolved OutboxEventType = "reconciliation.resolved"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBidPlaced,
	EventBidWithdrawn,
	EventBidderRegistered,
	EventCheckoutCreated,
	EventCheckoutCompleted,
	EventCheckoutFailed,
	EventCheckoutRefunded,
	EventReconciliationRequired,
	EventReconciliationResolved,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}
