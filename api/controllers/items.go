package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/api/responses"
	"github.com/biddart/biddart-backend/api/validators"
	"github.com/biddart/biddart-backend/internal/items"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
)

const defaultBidIncrementCents = 100

type itemRequest struct {
	ItemNumber         string     `json:"item_number" validate:"max=32"`
	Name               string     `json:"name" validate:"required,notblank,max=255"`
	Description        *string    `json:"description" validate:"omitempty,max=5000"`
	StartingPriceCents int64      `json:"starting_price_cents" validate:"min=0,max=100000000"`
	BuyNowPriceCents   *int64     `json:"buy_now_price_cents" validate:"omitempty,min=0,max=100000000"`
	BidIncrementCents  *int64     `json:"bid_increment_cents" validate:"omitempty,cents"`
	BiddingStartsAt    *time.Time `json:"bidding_starts_at"`
	BiddingEndsAt      *time.Time `json:"bidding_ends_at"`
}

func (p itemRequest) input() items.ItemInput {
	increment := int64(defaultBidIncrementCents)
	if p.BidIncrementCents != nil {
		increment = *p.BidIncrementCents
	}
	return items.ItemInput{
		ItemNumber:         p.ItemNumber,
		Name:               p.Name,
		Description:        p.Description,
		StartingPriceCents: p.StartingPriceCents,
		BuyNowPriceCents:   p.BuyNowPriceCents,
		BidIncrementCents:  increment,
		BiddingStartsAt:    p.BiddingStartsAt,
		BiddingEndsAt:      p.BiddingEndsAt,
	}
}

type itemResponse struct {
	ID                 uuid.UUID  `json:"id"`
	EventID            uuid.UUID  `json:"event_id"`
	ItemNumber         string     `json:"item_number,omitempty"`
	Name               string     `json:"name"`
	Description        *string    `json:"description,omitempty"`
	StartingPriceCents int64      `json:"starting_price_cents"`
	CurrentPriceCents  int64      `json:"current_price_cents"`
	BuyNowPriceCents   *int64     `json:"buy_now_price_cents,omitempty"`
	BidIncrementCents  int64      `json:"bid_increment_cents"`
	BiddingStartsAt    *time.Time `json:"bidding_starts_at,omitempty"`
	BiddingEndsAt      *time.Time `json:"bidding_ends_at,omitempty"`
	IsActive           bool       `json:"is_active"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func itemResponseFromModel(m *models.AuctionItem) itemResponse {
	return itemResponse{
		ID:                 m.ID,
		EventID:            m.EventID,
		ItemNumber:         m.ItemNumber,
		Name:               m.Name,
		Description:        m.Description,
		StartingPriceCents: m.StartingPriceCents,
		CurrentPriceCents:  m.CurrentPriceCents,
		BuyNowPriceCents:   m.BuyNowPriceCents,
		BidIncrementCents:  m.BidIncrementCents,
		BiddingStartsAt:    m.BiddingStartsAt,
		BiddingEndsAt:      m.BiddingEndsAt,
		IsActive:           m.IsActive,
		UpdatedAt:          m.UpdatedAt,
	}
}

// ItemCreate adds a lot to the event's catalogue.
func ItemCreate(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "items service unavailable"))
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
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Create(r.Context(), scope, eventID, payload.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, itemResponseFromModel(item))
	}
}

// ItemList returns the catalogue, optionally searched by name or number.
func ItemList(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "items service unavailable"))
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
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activeOnly, err := validators.ParseQueryBool(r, "active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), scope, items.ListParams{
			EventID:    eventID,
			Search:     strings.TrimSpace(r.URL.Query().Get("q")),
			ActiveOnly: activeOnly,
			Limit:      limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]itemResponse, 0, len(rows))
		for i := range rows {
			out = append(out, itemResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func ItemGet(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "items service unavailable"))
			return
		}
		scope, eventID, itemID, err := itemRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), scope, eventID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemResponseFromModel(item))
	}
}

// ItemUpdate replaces an item's catalogue fields.
func ItemUpdate(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "items service unavailable"))
			return
		}
		scope, eventID, itemID, err := itemRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Update(r.Context(), scope, eventID, itemID, payload.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemResponseFromModel(item))
	}
}

// ItemToggleActive opens or closes an item to bidding.
func ItemToggleActive(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "items service unavailable"))
			return
		}
		scope, eventID, itemID, err := itemRequestIDs(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.ToggleActive(r.Context(), scope, eventID, itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemResponseFromModel(item))
	}
}

func itemRequestIDs(r *http.Request) (tenancy.Scope, uuid.UUID, uuid.UUID, error) {
	scope, err := requestScope(r)
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, uuid.Nil, err
	}
	eventID, err := validators.ParseUUIDParam(r, "eventID")
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, uuid.Nil, err
	}
	itemID, err := validators.ParseUUIDParam(r, "itemID")
	if err != nil {
		return tenancy.Scope{}, uuid.Nil, uuid.Nil, err
	}
	return scope, eventID, itemID, nil
}
