package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/api/responses"
	"github.com/biddart/biddart-backend/api/validators"
	"github.com/biddart/biddart-backend/internal/bidders"
	"github.com/biddart/biddart-backend/pkg/db/models"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

type bidderRegisterRequest struct {
	FirstName string `json:"first_name" validate:"notblank,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=32"`
}

type bidderResponse struct {
	ID           uuid.UUID `json:"id"`
	EventID      uuid.UUID `json:"event_id"`
	BidderNumber string    `json:"bidder_number"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func bidderResponseFromModel(m *models.Bidder) bidderResponse {
	return bidderResponse{
		ID:           m.ID,
		EventID:      m.EventID,
		BidderNumber: m.BidderNumber,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Email:        m.Email,
		Phone:        m.Phone,
		CreatedAt:    m.CreatedAt,
	}
}

// BidderRegister registers a bidder for an event and assigns the next bidder number.
func BidderRegister(svc bidders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidder service unavailable"))
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

		var payload bidderRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bidder, err := svc.Register(r.Context(), scope, bidders.RegisterInput{
			EventID:   eventID,
			FirstName: validators.SanitizeString(payload.FirstName, 100),
			LastName:  validators.SanitizeString(payload.LastName, 100),
			Email:     validators.SanitizeString(payload.Email, 254),
			Phone:     validators.SanitizeString(payload.Phone, 32),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bidderResponseFromModel(bidder))
	}
}

// BidderList returns an event's bidders in bidder-number order.
func BidderList(svc bidders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidder service unavailable"))
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

		rows, err := svc.ListForEvent(r.Context(), scope.TenantID, eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]bidderResponse, 0, len(rows))
		for i := range rows {
			out = append(out, bidderResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
