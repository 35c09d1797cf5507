package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	redacted = "[REDACTED]"
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

var sensitiveKeys = []string{"card", "nonce", "token", "source", "secret", "email", "phone"}

// Client wraps the Square SDK for the one location an installation charges
// against. Every call is logged with sensitive fields redacted, and failures
// come back as pkg/errors codes.
type Client struct {
	sdk           *sqclient.Client
	environment   string
	locationID    string
	webhookSecret string
	webhookURL    string
	logger        *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	location := strings.TrimSpace(cfg.LocationID)
	switch {
	case token == "":
		return nil, errors.New("square access token is required")
	case location == "":
		return nil, errors.New("square location id is required")
	}

	c := &Client{
		sdk:           sqclient.NewClient(sqoption.WithBaseURL(baseURLs[env]), sqoption.WithToken(token)),
		environment:   env,
		locationID:    location,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		logger:        logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"environment": env, "location_id": location}), "square client initialized")
	return c, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// NewIdempotencyKey returns `<prefix>-<uuid>`, defaulting the prefix to "bd".
func (c *Client) NewIdempotencyKey(prefix string) string {
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "bd"
	}
	return prefix + "-" + uuid.NewString()
}

// CreatePayment charges the supplied source. The caller owns the idempotency key
// so retries of the same checkout never double charge.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.LocationID == "" {
		params.LocationID = c.locationID
	}
	req := params.toSquareRequest(c.ensureIdempotencyKey("payment.create", params.IdempotencyKey))
	return invoke(ctx, c, "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount":       params.AmountCents,
		"source_id":    params.SourceID,
	}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	}, paymentFields)
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return invoke(ctx, c, "get_payment", map[string]any{"payment_id": paymentID}, func() (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	}, paymentFields)
}

// RefundPayment refunds all or part of a completed payment.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*sq.PaymentRefund, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	req := params.toSquareRequest(c.ensureIdempotencyKey("payment.refund", params.IdempotencyKey))
	return invoke(ctx, c, "refund_payment", map[string]any{
		"payment_id": params.PaymentID,
		"amount":     params.AmountCents,
	}, func() (*sq.PaymentRefund, error) {
		resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetRefund(), nil
	}, func(r *sq.PaymentRefund) map[string]any {
		return map[string]any{"refund_id": r.GetID(), "status": stringValue(r.GetStatus())}
	})
}

// invoke logs one SDK round trip and maps its failure.
func invoke[T any](ctx context.Context, c *Client, op string, fields map[string]any, call func() (T, error), describe func(T) map[string]any) (T, error) {
	reqCtx := c.logContext(ctx, op, fields)
	c.logger.Info(reqCtx, "square request")

	out, err := call()
	if err != nil {
		mapped := mapError(op, err)
		c.logger.Error(c.logContext(reqCtx, op, map[string]any{"square_status": StatusCode(err)}), "square "+op, err)
		return out, mapped
	}
	c.logger.Info(c.logContext(reqCtx, op, describe(out)), "square response")
	return out, nil
}

func paymentFields(p *sq.Payment) map[string]any {
	return map[string]any{"payment_id": stringValue(p.GetID()), "status": stringValue(p.GetStatus())}
}

func (c *Client) logContext(ctx context.Context, op string, fields map[string]any) context.Context {
	out := make(map[string]any, len(fields)+1)
	out["operation"] = op
	for k, v := range fields {
		out[k] = redact(k, v)
	}
	return c.logger.WithFields(ctx, out)
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return redacted
		}
	}
	return value
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return sandboxEnv, nil
	}
	if _, ok := baseURLs[env]; !ok {
		return "", fmt.Errorf("square environment must be %q or %q, got %q", sandboxEnv, productionEnv, raw)
	}
	return env, nil
}
