package enums

import "slices"

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	// publish kept failing until the attempt budget ran out
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// the broker rejected the message permanently
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// unknown event type or a payload that does not decode
	OutboxDLQReasonUnresolvable OutboxDLQErrorReason = "unresolvable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonUnresolvable,
}

func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(validOutboxDLQErrorReasons, r)
}
