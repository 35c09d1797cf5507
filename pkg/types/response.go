package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the error body returned for every non-2xx response. RequestID
// echoes X-Request-Id so support staff can find the matching log entry.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
