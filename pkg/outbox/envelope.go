package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const currentEnvelopeVersion = 1

// ErrMalformedEnvelope is returned for payloads no consumer can act on.
var ErrMalformedEnvelope = errors.New("malformed outbox envelope")

// ActorRef identifies the staff member (if any) whose request produced the event.
type ActorRef struct {
	StaffID uuid.UUID `json:"staffId"`
}

// PayloadEnvelope is stored in outbox_events.payload and published unchanged as
// the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	TenantID   string          `json:"tenantId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent, eventID uuid.UUID) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		TenantID:   event.TenantID.String(),
		OccurredAt: event.OccurredAt,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = currentEnvelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	if event.ActorID != uuid.Nil {
		env.Actor = &ActorRef{StaffID: event.ActorID}
	}
	return env, nil
}

// DecodeEnvelope parses a stored or delivered payload and rejects envelopes
// with no data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, fmt.Errorf("%w: data missing", ErrMalformedEnvelope)
	}
	return env, nil
}

// Identity parses the event and tenant ids.
func (e PayloadEnvelope) Identity() (eventID, tenantID uuid.UUID, err error) {
	if eventID, err = uuid.Parse(e.EventID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: event id: %v", ErrMalformedEnvelope, err)
	}
	if tenantID, err = uuid.Parse(e.TenantID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: tenant id: %v", ErrMalformedEnvelope, err)
	}
	return eventID, tenantID, nil
}
