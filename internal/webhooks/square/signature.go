package squarewebhook

import (
	"github.com/biddart/biddart-backend/pkg/square"
)

// SignatureHeader carries Square's HMAC of the notification URL and body.
const SignatureHeader = "x-square-hmacsha256-signature"

// Sign computes the signature Square sends for a delivery.
func Sign(signatureKey, notificationURL string, body []byte) string {
	return square.Sign(signatureKey, notificationURL, body)
}

// VerifySignature reports whether header matches the expected signature.
// An empty signature key never verifies.
func VerifySignature(signatureKey, notificationURL string, body []byte, header string) bool {
	return square.ValidSignature(signatureKey, notificationURL, body, header)
}
