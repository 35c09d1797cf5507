package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// VerifyWebhookSignature checks an x-square-hmacsha256-signature header against
// the configured notification URL and secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" || c.webhookURL == "" {
		return false
	}
	return ValidSignature(c.webhookSecret, c.webhookURL, body, signature)
}

// ValidSignature reports whether signature matches base64(HMAC-SHA256(secret, url+body)).
func ValidSignature(secret, notificationURL string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, notificationURL, body)), []byte(signature))
}

// Sign computes the signature Square sends for body.
func Sign(secret, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
