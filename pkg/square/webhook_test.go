package square

import "testing"

func TestWebhookSignature(t *testing.T) {
	const notificationURL = "https://api.biddart.test/webhooks/square"
	body := []byte(`{"type":"payment.updated"}`)
	sig := Sign("shh", notificationURL, body)

	checks := []struct {
		name   string
		secret string
		url    string
		body   string
		sig    string
		valid  bool
	}{
		{"matching", "shh", notificationURL, string(body), sig, true},
		{"padded header", "shh", notificationURL, string(body), " " + sig + "\n", true},
		{"tampered body", "shh", notificationURL, `{"type":"payment.created"}`, sig, false},
		{"wrong secret", "other", notificationURL, string(body), sig, false},
		{"different url", "shh", notificationURL + "/v2", string(body), sig, false},
		{"empty secret", "", notificationURL, string(body), sig, false},
		{"empty signature", "shh", notificationURL, string(body), "", false},
	}
	for _, c := range checks {
		if got := ValidSignature(c.secret, c.url, []byte(c.body), c.sig); got != c.valid {
			t.Fatalf("%s: expected %v", c.name, c.valid)
		}
	}

	client := &Client{webhookSecret: "shh", webhookURL: notificationURL}
	if !client.VerifyWebhookSignature(body, sig) {
		t.Fatal("client verification failed")
	}
	if (&Client{webhookSecret: "shh"}).VerifyWebhookSignature(body, sig) {
		t.Fatal("a client without a notification URL cannot verify")
	}
}
