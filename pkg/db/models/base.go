package models

import "github.com/google/uuid"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for schema bootstrap
// on drivers the SQL migrations do not target.
func All() []any {
	return []any{
		&Tenant{},
		&Event{},
		&AuctionItem{},
		&Bidder{},
		&Bid{},
		&CheckoutSession{},
		&CheckoutSessionBid{},
		&ReconciliationCase{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&Notification{},
	}
}
