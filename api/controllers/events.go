package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/biddart/biddart-backend/api/responses"
	"github.com/biddart/biddart-backend/api/validators"
	"github.com/biddart/biddart-backend/internal/events"
	"github.com/biddart/biddart-backend/internal/fees"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

type eventFeesRequest struct {
	Percentage decimal.Decimal `json:"transaction_fee_percentage"`
	FixedFee   decimal.Decimal `json:"fixed_transaction_fee"`
}

type eventFeesResponse struct {
	EventID    uuid.UUID `json:"event_id"`
	Percentage string    `json:"transaction_fee_percentage"`
	FixedFee   string    `json:"fixed_transaction_fee"`
}

// EventUpdateFees replaces an event's platform fee schedule.
func EventUpdateFees(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload eventFeesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.UpdateFees(r.Context(), scope, eventID, fees.FeeConfig{
			Percentage: payload.Percentage,
			FixedFee:   payload.FixedFee,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cfg := events.FeeConfigOf(event)
		responses.WriteSuccess(w, eventFeesResponse{
			EventID:    event.ID,
			Percentage: cfg.Percentage.StringFixed(2),
			FixedFee:   cfg.FixedFee.StringFixed(2),
		})
	}
}
