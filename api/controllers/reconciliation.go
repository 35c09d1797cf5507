package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/api/responses"
	"github.com/biddart/biddart-backend/api/validators"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

type resolveCaseRequest struct {
	Resolution        string `json:"resolution" validate:"required"`
	ExternalPaymentID string `json:"external_payment_id" validate:"max=128"`
}

type reconciliationCaseResponse struct {
	ID                uuid.UUID                       `json:"id"`
	SessionID         uuid.UUID                       `json:"session_id"`
	ExternalPaymentID *string                         `json:"external_payment_id,omitempty"`
	AmountCents       int64                           `json:"amount_cents"`
	Reason            enums.ReconciliationReason      `json:"reason"`
	Status            enums.ReconciliationStatus      `json:"status"`
	Resolution        *enums.ReconciliationResolution `json:"resolution,omitempty"`
	Detail            *string                         `json:"detail,omitempty"`
	Attempts          int                             `json:"attempts"`
	LastCheckedAt     *time.Time                      `json:"last_checked_at,omitempty"`
	LastError         *string                         `json:"last_error,omitempty"`
	ResolvedBy        *uuid.UUID                      `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time                      `json:"resolved_at,omitempty"`
	CreatedAt         time.Time                       `json:"created_at"`
}

func reconciliationCaseResponseFromModel(m *models.ReconciliationCase) reconciliationCaseResponse {
	return reconciliationCaseResponse{
		ID:                m.ID,
		SessionID:         m.SessionID,
		ExternalPaymentID: m.ExternalPaymentID,
		AmountCents:       m.AmountCents,
		Reason:            m.Reason,
		Status:            m.Status,
		Resolution:        m.Resolution,
		Detail:            m.Detail,
		Attempts:          m.Attempts,
		LastCheckedAt:     m.LastCheckedAt,
		LastError:         m.LastError,
		ResolvedBy:        m.ResolvedBy,
		ResolvedAt:        m.ResolvedAt,
		CreatedAt:         m.CreatedAt,
	}
}

// ReconciliationList returns the tenant's open reconciliation cases.
func ReconciliationList(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListOpen(r.Context(), scope, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]reconciliationCaseResponse, 0, len(rows))
		for i := range rows {
			out = append(out, reconciliationCaseResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ReconciliationGet returns one case.
func ReconciliationGet(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := validators.ParseUUIDParam(r, "caseID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := svc.Get(r.Context(), scope, caseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconciliationCaseResponseFromModel(c))
	}
}

// ReconciliationResolve records a staff verdict on an open case.
func ReconciliationResolve(svc reconciliation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		caseID, err := validators.ParseUUIDParam(r, "caseID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveCaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resolution, err := enums.ParseReconciliationResolution(strings.TrimSpace(payload.Resolution))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resolution"))
			return
		}

		c, err := svc.Resolve(r.Context(), scope, caseID, reconciliation.ResolveInput{
			Resolution:        resolution,
			ExternalPaymentID: strings.TrimSpace(payload.ExternalPaymentID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconciliationCaseResponseFromModel(c))
	}
}
