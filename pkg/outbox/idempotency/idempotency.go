package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultClaimTTL = 2 * time.Minute
	claimPrefix     = "claim:"
	doneValue       = "done"
)

// ErrClaimLost means the claim expired (or was taken over) before it was completed.
var ErrClaimLost = errors.New("idempotency claim lost")

// Store is the Redis surface the manager needs. CompareAndSwap and CompareAndDelete
// must only act when the key still holds the expected value.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndSwap(ctx context.Context, key, current, next string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Outcome describes what Claim found for an event.
type Outcome int

const (
	// Claimed: the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota
	// Duplicate: the event was already handled; acknowledge it.
	Duplicate
	// InFlight: another delivery holds the claim; retry later.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Duplicate:
		return "duplicate"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Manager deduplicates event deliveries per consumer. A delivery first takes a
// short claim; only Complete records the event as handled for the full TTL, so a
// crash mid-processing lets the broker's redelivery through once the claim lapses.
// Keys follow `bd:idempotency:evt:<consumer>:<event_id>`.
type Manager struct {
	store    Store
	ttl      time.Duration
	claimTTL time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, claimTTL: defaultClaimTTL}, nil
}

// WithClaimTTL bounds how long an unfinished delivery blocks redeliveries.
func (m *Manager) WithClaimTTL(ttl time.Duration) *Manager {
	if ttl > 0 {
		m.claimTTL = ttl
	}
	return m
}

// Claim is held by exactly one delivery of an event.
type Claim struct {
	store Store
	key   string
	token string
	ttl   time.Duration
}

func (m *Manager) Claim(ctx context.Context, consumer, eventID string) (*Claim, Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return nil, 0, err
	}
	token := claimPrefix + uuid.NewString()
	ok, err := m.store.SetNX(ctx, key, token, m.claimTTL)
	if err != nil {
		return nil, 0, err
	}
	if ok {
		return &Claim{store: m.store, key: key, token: token, ttl: m.ttl}, Claimed, nil
	}

	current, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// expired between SETNX and GET
		return nil, InFlight, nil
	case err != nil:
		return nil, 0, err
	case current == doneValue:
		return nil, Duplicate, nil
	default:
		return nil, InFlight, nil
	}
}

// Complete marks the event handled for the manager's TTL.
func (c *Claim) Complete(ctx context.Context) error {
	ok, err := c.store.CompareAndSwap(ctx, c.key, c.token, doneValue, c.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

// Release gives the event back so a redelivery can handle it.
func (c *Claim) Release(ctx context.Context) error {
	_, err := c.store.CompareAndDelete(ctx, c.key, c.token)
	return err
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID), nil
}
