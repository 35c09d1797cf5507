package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const (
	recordPending  = "pending"
	recordComplete = "complete"
	replayedHeader = "Idempotent-Replayed"
)

// idempotencyRecord is the JSON value stored under an idempotency key. A pending
// record carries the owner's claim; a complete one carries the response.
type idempotencyRecord struct {
	State       string            `json:"state"`
	Claim       string            `json:"claim,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

func completedRecord(requestHash string, capture *responseCapture) idempotencyRecord {
	record := idempotencyRecord{
		State:       recordComplete,
		Status:      capture.status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		RequestHash: requestHash,
	}
	if record.Status == 0 {
		record.Status = http.StatusOK
	}
	if ct := capture.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}
	return record
}

func encodeRecord(record idempotencyRecord) (string, error) {
	raw, err := json.Marshal(record)
	return string(raw), err
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (rec *idempotencyRecord) writeTo(w http.ResponseWriter) {
	w.Header().Set(replayedHeader, "true")
	if ct := rec.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(rec.Status)
	if body, err := base64.StdEncoding.DecodeString(rec.Body); err == nil {
		_, _ = w.Write(body)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// responseCapture tees the handler's response so it can be stored for replay.
type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
