package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/biddart/biddart-backend/api/responses"
	squarewebhook "github.com/biddart/biddart-backend/internal/webhooks/square"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/outbox/idempotency"
)

const maxWebhookBody = 1 << 20

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

// SquareDeliveryClaims deduplicates Square deliveries by event id.
type SquareDeliveryClaims interface {
	Claim(ctx context.Context, consumer, eventID string) (*idempotency.Claim, idempotency.Outcome, error)
}

const squareWebhookConsumer = "square-webhook"

// SquareSigning is the shared secret and the URL Square signs deliveries for.
type SquareSigning struct {
	SignatureKey    string
	NotificationURL string
}

// SquareWebhook handles Square payment notifications.
func SquareWebhook(svc SquareWebhookService, signing SquareSigning, claims SquareDeliveryClaims, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if claims == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency store unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(squarewebhook.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing"))
			return
		}
		if !squarewebhook.VerifySignature(signing.SignatureKey, signing.NotificationURL, payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid square signature"))
			return
		}

		var event squarewebhook.SquareWebhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(event.EventID)
		if eventID == "" {
			eventID = event.Data.ID
		}
		if eventID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "event_type": event.Type})
		}

		claim, outcome, err := claims.Claim(ctx, squareWebhookConsumer, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim square event"))
			return
		}
		switch outcome {
		case idempotency.Duplicate:
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		case idempotency.InFlight:
			// non-2xx makes Square redeliver after the current attempt settles
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInProgress, "square event is being processed"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if relErr := claim.Release(ctx); relErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", relErr.Error()), "square.webhook.release_failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := claim.Complete(ctx); err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "square.webhook.complete_failed")
		}

		if logg != nil {
			logg.Info(ctx, "square.webhook.processed")
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
