package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/biddart/biddart-backend/api/responses"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	pkgredis "github.com/biddart/biddart-backend/pkg/redis"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	maxIdempotencyKeyLen   = 255
	// claim lifetime while the handler runs; longer than the gateway charge timeout
	inflightIdempotencyTTL = 2 * time.Minute
)

// idempotencyRule applies to one method and path template. A "*" segment matches
// any single path segment.
type idempotencyRule struct {
	method   string
	template string
	ttl      time.Duration
	required bool
}

// Money-moving routes demand a key; the rest replay when a client sends one.
var idempotencyRules = []idempotencyRule{
	{http.MethodPost, "/api/v1/checkout/sessions", defaultIdempotencyTTL, false},
	{http.MethodPost, "/api/v1/checkout/sessions/*/complete", defaultIdempotencyTTL, false},
	{http.MethodPost, "/api/v1/items/*/bids", defaultIdempotencyTTL, false},
	{http.MethodPost, "/api/v1/bids/bulk", defaultIdempotencyTTL, false},
	{http.MethodPost, "/api/v1/events/*/bidders", defaultIdempotencyTTL, false},
	{http.MethodPost, "/api/v1/reconciliation/cases/*/resolve", defaultIdempotencyTTL, false},
	{http.MethodPost, "/api/v1/checkout/sessions/*/charge", criticalIdempotencyTTL, true},
	{http.MethodPost, "/api/v1/checkout/sessions/*/refund", criticalIdempotencyTTL, true},
}

// idempotencyStore claims keys with SETNX and only ever replaces or drops its own claim.
type idempotencyStore interface {
	pkgredis.IdempotencyStore
	CompareAndSwap(ctx context.Context, key, current, next string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Idempotency replays the stored response for a repeated Idempotency-Key. The key
// is claimed before the handler runs, so a concurrent duplicate gets 409 instead
// of a second charge. 5xx responses and panics release the claim.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := matchRule(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "" && !rule.required:
				next.ServeHTTP(w, r)
				return
			case clientKey == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			call := &idempotentCall{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(requestScope(r), clientKey),
				hash:  hashBody(body),
				ttl:   rule.ttl,
			}
			claimed, err := call.begin(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !claimed {
				call.replay(w, r)
				return
			}
			call.serve(next, w, r)
		})
	}
}

// idempotentCall is one request under an Idempotency-Key.
type idempotentCall struct {
	store idempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
	ttl   time.Duration
	claim string
}

func (c *idempotentCall) begin(ctx context.Context) (bool, error) {
	claim, err := encodeRecord(idempotencyRecord{State: recordPending, Claim: uuid.NewString(), RequestHash: c.hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := c.store.SetNX(ctx, c.key, claim, inflightIdempotencyTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if ok {
		c.claim = claim
	}
	return ok, nil
}

func (c *idempotentCall) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	capture := &responseCapture{ResponseWriter: w}
	completed := false
	defer func() {
		// a panicking handler leaves the key free for a retry
		if !completed {
			c.release(ctx)
		}
	}()

	next.ServeHTTP(capture, r)
	completed = true

	if capture.status >= http.StatusInternalServerError {
		c.release(ctx)
		return
	}
	c.commit(ctx, capture)
}

func (c *idempotentCall) commit(ctx context.Context, capture *responseCapture) {
	stored, err := encodeRecord(completedRecord(c.hash, capture))
	if err != nil {
		logError(ctx, c.logg, "marshal idempotency record", err)
		return
	}
	swapped, err := c.store.CompareAndSwap(ctx, c.key, c.claim, stored, c.ttl)
	if err != nil {
		logError(ctx, c.logg, "persist idempotency record", err)
		return
	}
	if !swapped && c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "idempotency_key", c.key), "idempotency claim expired before response was stored")
	}
}

func (c *idempotentCall) release(ctx context.Context) {
	if _, err := c.store.CompareAndDelete(ctx, c.key, c.claim); err != nil {
		logError(ctx, c.logg, "release idempotency claim", err)
	}
}

// replay answers a request whose key is already claimed or completed.
func (c *idempotentCall) replay(w http.ResponseWriter, r *http.Request) {
	stored, err := c.store.Get(r.Context(), c.key)
	if errors.Is(err, redis.Nil) {
		// claim released between SETNX and GET
		responses.WriteError(r.Context(), c.logg, w, pkgerrors.New(pkgerrors.CodeInProgress, "retry request"))
		return
	}
	if err != nil {
		responses.WriteError(r.Context(), c.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	record, err := decodeRecord(stored)
	switch {
	case err != nil:
		responses.WriteError(r.Context(), c.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
	case record.RequestHash != c.hash:
		responses.WriteError(r.Context(), c.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != recordComplete:
		responses.WriteError(r.Context(), c.logg, w, pkgerrors.New(pkgerrors.CodeInProgress, "request with this idempotency key is still in progress"))
	default:
		record.writeTo(w)
	}
}

// requestScope keeps keys from colliding across tenants, staff and routes.
func requestScope(r *http.Request) string {
	scope, _ := ScopeFromContext(r.Context())
	return strings.Join([]string{scope.TenantID.String(), scope.ActorID.String(), r.Method, r.URL.Path}, "|")
}

func matchRule(method, path string) (idempotencyRule, bool) {
	if path == "" {
		return idempotencyRule{}, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && matchTemplate(rule.template, path) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func matchTemplate(template, path string) bool {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if segment != "*" && segment != got[i] {
			return false
		}
		if segment == "*" && got[i] == "" {
			return false
		}
	}
	return true
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
