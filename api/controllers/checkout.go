package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/api/responses"
	"github.com/biddart/biddart-backend/api/validators"
	"github.com/biddart/biddart-backend/internal/checkout"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

type checkoutCreateRequest struct {
	BidderID      uuid.UUID   `json:"bidder_id" validate:"required"`
	BidIDs        []uuid.UUID `json:"bid_ids" validate:"required,min=1,max=200"`
	PaymentMethod string      `json:"payment_method" validate:"required"`
	TaxCents      int64       `json:"tax_cents" validate:"min=0"`
}

type checkoutChargeRequest struct {
	SourceID string `json:"source_id" validate:"required,max=255"`
}

type checkoutRefundRequest struct {
	AmountCents *int64 `json:"amount_cents" validate:"omitempty,cents"`
	Reason      string `json:"reason" validate:"max=500"`
}

type checkoutLineResponse struct {
	BidID       uuid.UUID `json:"bid_id"`
	ItemName    string    `json:"item_name"`
	AmountCents int64     `json:"amount_cents"`
	Released    bool      `json:"released"`
}

type checkoutSessionResponse struct {
	ID                 uuid.UUID              `json:"id"`
	EventID            uuid.UUID              `json:"event_id"`
	BidderID           uuid.UUID              `json:"bidder_id"`
	Status             enums.CheckoutStatus   `json:"status"`
	PaymentMethod      enums.PaymentMethod    `json:"payment_method"`
	Currency           enums.Currency         `json:"currency"`
	SubtotalCents      int64                  `json:"subtotal_cents"`
	TaxCents           int64                  `json:"tax_cents"`
	PlatformFeeCents   int64                  `json:"platform_fee_cents"`
	ProcessingFeeCents int64                  `json:"processing_fee_cents"`
	TotalCents         int64                  `json:"total_cents"`
	RefundedCents      int64                  `json:"refunded_cents"`
	ExternalPaymentID  *string                `json:"external_payment_id,omitempty"`
	ReceiptURL         *string                `json:"receipt_url,omitempty"`
	ReceiptNumber      *string                `json:"receipt_number,omitempty"`
	FailureReason      *string                `json:"failure_reason,omitempty"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	RefundedAt         *time.Time             `json:"refunded_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	Lines              []checkoutLineResponse `json:"lines"`
}

type checkoutBreakdownResponse struct {
	SubtotalCents      int64 `json:"subtotal_cents"`
	TaxCents           int64 `json:"tax_cents"`
	PlatformFeeCents   int64 `json:"platform_fee_cents"`
	ProcessingFeeCents int64 `json:"processing_fee_cents"`
	TotalCents         int64 `json:"total_cents"`
}

type checkoutQuoteResponse struct {
	EventID   uuid.UUID                 `json:"event_id"`
	BidderID  uuid.UUID                 `json:"bidder_id"`
	Currency  enums.Currency            `json:"currency"`
	Bids      []bidResponse             `json:"bids"`
	Breakdown checkoutBreakdownResponse `json:"breakdown"`
}

type checkoutSessionListResponse struct {
	Items  []checkoutSessionResponse `json:"items"`
	Cursor string                    `json:"cursor,omitempty"`
}

const maxQuoteTaxCents = 100_000_000

func checkoutSessionResponseFromModel(m *models.CheckoutSession) checkoutSessionResponse {
	lines := make([]checkoutLineResponse, 0, len(m.Lines))
	for _, line := range m.Lines {
		lines = append(lines, checkoutLineResponse{
			BidID:       line.BidID,
			ItemName:    line.ItemName,
			AmountCents: line.AmountCents,
			Released:    line.ReleasedAt != nil,
		})
	}
	return checkoutSessionResponse{
		ID:                 m.ID,
		EventID:            m.EventID,
		BidderID:           m.BidderID,
		Status:             m.Status,
		PaymentMethod:      m.PaymentMethod,
		Currency:           m.Currency,
		SubtotalCents:      m.SubtotalCents,
		TaxCents:           m.TaxCents,
		PlatformFeeCents:   m.PlatformFeeCents,
		ProcessingFeeCents: m.ProcessingFeeCents,
		TotalCents:         m.TotalCents,
		RefundedCents:      m.RefundedCents,
		ExternalPaymentID:  m.ExternalPaymentID,
		ReceiptURL:         m.ReceiptURL,
		ReceiptNumber:      m.ReceiptNumber,
		FailureReason:      m.FailureReason,
		CompletedAt:        m.CompletedAt,
		RefundedAt:         m.RefundedAt,
		CreatedAt:          m.CreatedAt,
		Lines:              lines,
	}
}

// CheckoutCreate opens a checkout session over a bidder's winning bids.
func CheckoutCreate(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.PaymentMethod))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		session, err := svc.CreateSession(r.Context(), scope, checkout.CreateSessionInput{
			BidderID:      payload.BidderID,
			BidIDs:        payload.BidIDs,
			PaymentMethod: method,
			TaxCents:      payload.TaxCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutSessionResponseFromModel(session))
	}
}

// CheckoutGet returns a session with its bid lines.
func CheckoutGet(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		scope, sessionID, err := sessionRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.GetSession(r.Context(), scope, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutSessionResponseFromModel(session))
	}
}

// CheckoutComplete settles a cash or check session.
func CheckoutComplete(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		scope, sessionID, err := sessionRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		session, err := svc.CompleteCashOrCheck(r.Context(), scope, sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutSessionResponseFromModel(session))
	}
}

// CheckoutCharge charges a card session through the payment gateway.
func CheckoutCharge(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		scope, sessionID, err := sessionRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutChargeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := svc.ChargeCard(r.Context(), scope, sessionID, strings.TrimSpace(payload.SourceID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, receipt)
	}
}

// CheckoutRefund refunds all or part of a completed card session.
func CheckoutRefund(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		scope, sessionID, err := sessionRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRefundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Refund(r.Context(), scope, sessionID, checkout.RefundInput{
			AmountCents: payload.AmountCents,
			Reason:      validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutSessionResponseFromModel(session))
	}
}

// CheckoutQuote previews what a bidder would pay if checked out now.
func CheckoutQuote(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bidderID, err := validators.ParseUUIDParam(r, "bidderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tax, err := validators.ParseQueryInt(r, "tax_cents", 0, 0, maxQuoteTaxCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), scope, checkout.QuoteInput{BidderID: bidderID, TaxCents: int64(tax)})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkoutQuoteResponse{
			EventID:  quote.EventID,
			BidderID: quote.BidderID,
			Currency: quote.Currency,
			Bids:     bidResponses(quote.Bids),
			Breakdown: checkoutBreakdownResponse{
				SubtotalCents:      quote.Breakdown.SubtotalCents,
				TaxCents:           quote.Breakdown.TaxCents,
				PlatformFeeCents:   quote.Breakdown.PlatformFeeCents,
				ProcessingFeeCents: quote.Breakdown.ProcessingFeeCents,
				TotalCents:         quote.Breakdown.TotalCents,
			},
		})
	}
}

// CheckoutList pages through an event's checkout sessions, newest first.
func CheckoutList(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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
		bidderID, err := validators.ParseQueryUUID(r, "bidder_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := validators.QueryCursor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status enums.CheckoutStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err = enums.ParseCheckoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
		}

		page, err := svc.ListSessions(r.Context(), scope, checkout.SessionListParams{
			EventID:  eventID,
			BidderID: bidderID,
			Status:   status,
			Limit:    limit,
			Cursor:   cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := checkoutSessionListResponse{
			Items:  make([]checkoutSessionResponse, 0, len(page.Sessions)),
			Cursor: page.Cursor,
		}
		for i := range page.Sessions {
			out.Items = append(out.Items, checkoutSessionResponseFromModel(&page.Sessions[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func sessionRequest(r *http.Request) (tenancy.Scope, uuid.UUID, error) {
	scope, err := requestScope(r)
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, err
	}
	sessionID, err := validators.ParseUUIDParam(r, "sessionID")
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, err
	}
	return scope, sessionID, nil
}
