package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/api/responses"
	"github.com/biddart/biddart-backend/api/validators"
	"github.com/biddart/biddart-backend/internal/bids"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

const (
	defaultBidListLimit = 50
	maxBidListLimit     = 100
)

type placeBidRequest struct {
	BidderID    uuid.UUID `json:"bidder_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"min=0,max=100000000"`
	Kind        string    `json:"kind"`
	Notes       string    `json:"notes" validate:"max=500"`
}

type bulkBidRequest struct {
	ItemID *uuid.UUID  `json:"item_id"`
	BidIDs []uuid.UUID `json:"bid_ids" validate:"required,min=1,max=500"`
	Action string      `json:"action" validate:"required"`
}

type bidResponse struct {
	ID          uuid.UUID     `json:"id"`
	EventID     uuid.UUID     `json:"event_id"`
	ItemID      uuid.UUID     `json:"item_id"`
	BidderID    uuid.UUID     `json:"bidder_id"`
	AmountCents int64         `json:"amount_cents"`
	Kind        enums.BidKind `json:"kind"`
	IsWinning   bool          `json:"is_winning"`
	IsPaid      bool          `json:"is_paid"`
	Notes       *string       `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func bidResponseFromModel(m *models.Bid) bidResponse {
	return bidResponse{
		ID:          m.ID,
		EventID:     m.EventID,
		ItemID:      m.AuctionItemID,
		BidderID:    m.BidderID,
		AmountCents: m.AmountCents,
		Kind:        m.Kind,
		IsWinning:   m.IsWinning,
		IsPaid:      m.IsPaid,
		Notes:       m.Notes,
		CreatedAt:   m.CreatedAt,
	}
}

func bidResponses(rows []models.Bid) []bidResponse {
	out := make([]bidResponse, 0, len(rows))
	for i := range rows {
		out = append(out, bidResponseFromModel(&rows[i]))
	}
	return out
}

// BidPlace records a staff-entered bid against an item.
func BidPlace(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseBidKind(strings.TrimSpace(payload.Kind))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bid kind"))
			return
		}

		bid, err := svc.PlaceBid(r.Context(), scope, bids.PlaceBidInput{
			ItemID:      itemID,
			BidderID:    payload.BidderID,
			AmountCents: payload.AmountCents,
			Kind:        kind,
			Notes:       validators.SanitizeString(payload.Notes, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bidResponseFromModel(bid))
	}
}

// BidWithdraw removes an unpaid bid and recomputes the item's winner.
func BidWithdraw(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bidID, err := validators.ParseUUIDParam(r, "bidID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.WithdrawBid(r.Context(), scope, bidID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": bidID, "withdrawn": true})
	}
}

// BidNextMinimum reports the lowest standard bid the item will accept.
func BidNextMinimum(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		minimum, err := svc.NextMinimumBidForItem(r.Context(), scope, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"item_id": itemID, "next_minimum_cents": minimum})
	}
}

// BidListForItem lists an item's bids, newest first.
func BidListForItem(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultBidListLimit, 1, maxBidListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListForItem(r.Context(), scope.TenantID, itemID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bidResponses(rows))
	}
}

// BidRecent lists an event's most recent bids.
func BidRecent(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
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
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, maxBidListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListRecent(r.Context(), scope.TenantID, eventID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, bidResponses(rows))
	}
}

// BidEventStats returns the bidding dashboard totals for an event.
func BidEventStats(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
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
		stats, err := svc.EventStats(r.Context(), scope.TenantID, eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// BidBulk applies a staff bulk action to a selection of bids.
func BidBulk(svc bids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		scope, err := requestScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bulkBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseBidBulkAction(strings.TrimSpace(payload.Action))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bulk action"))
			return
		}

		result, err := svc.BulkAction(r.Context(), scope, bids.BulkActionInput{
			ItemID: payload.ItemID,
			BidIDs: payload.BidIDs,
			Action: action,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
