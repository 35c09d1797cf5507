package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/biddart/biddart-backend/internal/checkout"
	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/items"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func testScope() *tenancy.Scope {
	scope := tenancy.New(uuid.New(), uuid.New())
	return &scope
}

func TestBidPlaceDecodesRequest(t *testing.T) {
	svc := &stubBidService{}
	itemID, bidderID := uuid.New(), uuid.New()
	body := `{"bidder_id":"` + bidderID.String() + `","amount_cents":2500,"kind":"buy_now","notes":"  phone bid  "}`
	req := newRequest(http.MethodPost, "/api/v1/items/x/bids", body, testScope(), map[string]string{"itemID": itemID.String()})
	rec := httptest.NewRecorder()

	BidPlace(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, itemID, svc.placeInput.ItemID)
	require.Equal(t, bidderID, svc.placeInput.BidderID)
	require.Equal(t, int64(2500), svc.placeInput.AmountCents)
	require.Equal(t, enums.BidKindBuyNow, svc.placeInput.Kind)
	require.Equal(t, "phone bid", svc.placeInput.Notes)

	var bid bidResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &bid))
	require.True(t, bid.IsWinning)
}

func TestBidPlaceRejectsBadInput(t *testing.T) {
	itemID := uuid.New().String()
	tests := []struct {
		name   string
		body   string
		params map[string]string
		scope  *tenancy.Scope
		status int
	}{
		{"missing scope", `{}`, map[string]string{"itemID": itemID}, nil, http.StatusUnauthorized},
		{"bad item id", `{}`, map[string]string{"itemID": "abc"}, testScope(), http.StatusBadRequest},
		{"negative amount", `{"bidder_id":"` + uuid.NewString() + `","amount_cents":-1}`, map[string]string{"itemID": itemID}, testScope(), http.StatusBadRequest},
		{"above cap", `{"bidder_id":"` + uuid.NewString() + `","amount_cents":100000001}`, map[string]string{"itemID": itemID}, testScope(), http.StatusBadRequest},
		{"unknown kind", `{"bidder_id":"` + uuid.NewString() + `","amount_cents":10,"kind":"lottery"}`, map[string]string{"itemID": itemID}, testScope(), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubBidService{}
			rec := httptest.NewRecorder()
			BidPlace(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", tt.body, tt.scope, tt.params))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Zero(t, svc.placeInput.AmountCents)
		})
	}
}

func TestBidPlaceAcceptsZeroDonation(t *testing.T) {
	svc := &stubBidService{}
	body := `{"bidder_id":"` + uuid.NewString() + `","amount_cents":0,"kind":"donation"}`
	rec := httptest.NewRecorder()
	BidPlace(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), map[string]string{"itemID": uuid.NewString()}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, enums.BidKindDonation, svc.placeInput.Kind)
	require.Zero(t, svc.placeInput.AmountCents)
}

func TestBidPlaceSurfacesDomainError(t *testing.T) {
	svc := &stubBidService{placeErr: pkgerrors.New(pkgerrors.CodeBidTooLow, "bid must be at least 1500").WithDetails(map[string]any{"minimum_cents": 1500})}
	body := `{"bidder_id":"` + uuid.NewString() + `","amount_cents":100}`
	rec := httptest.NewRecorder()
	BidPlace(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), map[string]string{"itemID": uuid.NewString()}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, string(pkgerrors.CodeBidTooLow), env.Error.Code)
	require.EqualValues(t, 1500, env.Error.Details["minimum_cents"])
}

func TestBidListForItemAppliesLimit(t *testing.T) {
	svc := &stubBidService{}
	req := newRequest(http.MethodGet, "/api/v1/items/x/bids?limit=10", "", testScope(), map[string]string{"itemID": uuid.NewString()})
	rec := httptest.NewRecorder()
	BidListForItem(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, svc.limit)

	req = newRequest(http.MethodGet, "/api/v1/items/x/bids?limit=1000", "", testScope(), map[string]string{"itemID": uuid.NewString()})
	rec = httptest.NewRecorder()
	BidListForItem(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBidNextMinimum(t *testing.T) {
	svc := &stubBidService{minimum: 1600}
	rec := httptest.NewRecorder()
	BidNextMinimum(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/", "", testScope(), map[string]string{"itemID": uuid.NewString()}))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.EqualValues(t, 1600, out["next_minimum_cents"])
}

func TestBidBulkParsesAction(t *testing.T) {
	svc := &stubBidService{}
	ids := []string{uuid.NewString(), uuid.NewString()}
	body := `{"bid_ids":["` + ids[0] + `","` + ids[1] + `"],"action":"mark_paid"}`
	rec := httptest.NewRecorder()
	BidBulk(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, enums.BidBulkActionMarkPaid, svc.bulkInput.Action)
	require.Len(t, svc.bulkInput.BidIDs, 2)

	rec = httptest.NewRecorder()
	BidBulk(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"bid_ids":["`+ids[0]+`"],"action":"explode"}`, testScope(), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBidWithdraw(t *testing.T) {
	svc := &stubBidService{}
	bidID := uuid.New()
	rec := httptest.NewRecorder()
	BidWithdraw(svc, nil).ServeHTTP(rec, newRequest(http.MethodDelete, "/", "", testScope(), map[string]string{"bidID": bidID.String()}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, bidID, svc.withdrawn)
}

func TestCheckoutCreateDecodesRequest(t *testing.T) {
	svc := &stubCheckoutService{}
	bidderID, bidID := uuid.New(), uuid.New()
	body := `{"bidder_id":"` + bidderID.String() + `","bid_ids":["` + bidID.String() + `"],"payment_method":"card","tax_cents":500}`
	rec := httptest.NewRecorder()
	CheckoutCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, bidderID, svc.createInput.BidderID)
	require.Equal(t, []uuid.UUID{bidID}, svc.createInput.BidIDs)
	require.Equal(t, enums.PaymentMethodCard, svc.createInput.PaymentMethod)
	require.Equal(t, int64(500), svc.createInput.TaxCents)
}

func TestCheckoutCreateRejectsUnknownMethod(t *testing.T) {
	svc := &stubCheckoutService{}
	body := `{"bidder_id":"` + uuid.NewString() + `","bid_ids":["` + uuid.NewString() + `"],"payment_method":"bitcoin"}`
	rec := httptest.NewRecorder()
	CheckoutCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutCreateInvalidSelection(t *testing.T) {
	bidID := uuid.New()
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeInvalidBidSelection, "invalid bid selection").
		WithDetails(map[string]any{"bids": []checkout.InvalidBid{{BidID: bidID, Reason: "bid is not winning"}}})}
	body := `{"bidder_id":"` + uuid.NewString() + `","bid_ids":["` + bidID.String() + `"],"payment_method":"cash"}`
	rec := httptest.NewRecorder()
	CheckoutCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	invalid, ok := env.Error.Details["bids"].([]any)
	require.True(t, ok)
	require.Len(t, invalid, 1)
}

func TestCheckoutChargeReturnsReceipt(t *testing.T) {
	svc := &stubCheckoutService{}
	sessionID := uuid.New()
	rec := httptest.NewRecorder()
	CheckoutCharge(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"source_id":" cnon:card-nonce-ok "}`, testScope(), map[string]string{"sessionID": sessionID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "cnon:card-nonce-ok", svc.chargeToken)
	var receipt checkout.Receipt
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &receipt))
	require.Equal(t, sessionID, receipt.SessionID)
	require.Equal(t, "pay_1", receipt.ExternalPaymentID)
}

func TestCheckoutChargeMapsGatewayErrors(t *testing.T) {
	tests := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodePaymentDeclined, http.StatusPaymentRequired},
		{pkgerrors.CodePaymentGatewayUnavailable, http.StatusServiceUnavailable},
		{pkgerrors.CodeReconciliationRequired, http.StatusConflict},
	}
	for _, tt := range tests {
		svc := &stubCheckoutService{err: pkgerrors.New(tt.code, "gateway says no")}
		rec := httptest.NewRecorder()
		CheckoutCharge(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"source_id":"tok"}`, testScope(), map[string]string{"sessionID": uuid.NewString()}))
		require.Equal(t, tt.status, rec.Code, string(tt.code))
		require.Equal(t, string(tt.code), decodeEnvelope(t, rec).Error.Code)
	}
}

func TestCheckoutRefundPartialAmount(t *testing.T) {
	svc := &stubCheckoutService{}
	rec := httptest.NewRecorder()
	CheckoutRefund(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"amount_cents":400,"reason":"duplicate item"}`, testScope(), map[string]string{"sessionID": uuid.NewString()}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.refundInput.AmountCents)
	require.Equal(t, int64(400), *svc.refundInput.AmountCents)
	require.Equal(t, "duplicate item", svc.refundInput.Reason)

	svc = &stubCheckoutService{}
	rec = httptest.NewRecorder()
	CheckoutRefund(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{}`, testScope(), map[string]string{"sessionID": uuid.NewString()}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, svc.refundInput.AmountCents)
}

func TestCheckoutGetNotFound(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")}
	rec := httptest.NewRecorder()
	CheckoutGet(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/", "", testScope(), map[string]string{"sessionID": uuid.NewString()}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconciliationResolve(t *testing.T) {
	svc := &stubReconciliationService{}
	caseID := uuid.New()
	rec := httptest.NewRecorder()
	ReconciliationResolve(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"resolution":"paid","external_payment_id":"pay_9"}`, testScope(), map[string]string{"caseID": caseID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, enums.ReconciliationResolutionPaid, svc.resolveInput.Resolution)
	require.Equal(t, "pay_9", svc.resolveInput.ExternalPaymentID)

	rec = httptest.NewRecorder()
	ReconciliationResolve(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"resolution":"maybe"}`, testScope(), map[string]string{"caseID": caseID.String()}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconciliationListPassesLimit(t *testing.T) {
	svc := &stubReconciliationService{}
	rec := httptest.NewRecorder()
	ReconciliationList(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/?limit=5", "", testScope(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, svc.limit)
	require.JSONEq(t, `[]`, string(decodeEnvelope(t, rec).Data))
}

func TestBidderRegister(t *testing.T) {
	svc := &stubBidderService{}
	eventID := uuid.New()
	rec := httptest.NewRecorder()
	BidderRegister(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"first_name":" Ada ","last_name":"Lovelace","email":"ada@example.org"}`, testScope(), map[string]string{"eventID": eventID.String()}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, eventID, svc.input.EventID)
	require.Equal(t, "Ada", svc.input.FirstName)

	var out bidderResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Equal(t, "101", out.BidderNumber)
}

func TestBidderRegisterValidatesEmail(t *testing.T) {
	svc := &stubBidderService{}
	rec := httptest.NewRecorder()
	BidderRegister(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"first_name":"Ada","email":"not-an-email"}`, testScope(), map[string]string{"eventID": uuid.NewString()}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventUpdateFees(t *testing.T) {
	svc := &stubEventService{}
	eventID := uuid.New()
	rec := httptest.NewRecorder()
	EventUpdateFees(svc, nil).ServeHTTP(rec, newRequest(http.MethodPut, "/", `{"transaction_fee_percentage":"2.5","fixed_transaction_fee":"0.30"}`, testScope(), map[string]string{"eventID": eventID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, svc.cfg.Percentage.Equal(decimal.RequireFromString("2.5")))
	require.True(t, svc.cfg.FixedFee.Equal(decimal.RequireFromString("0.30")))

	var out eventFeesResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Equal(t, "2.50", out.Percentage)
	require.Equal(t, "0.30", out.FixedFee)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}})(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "unavailable", env.Error.Details["redis"])
	require.Equal(t, "ok", env.Error.Details["db"])
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(&config.Config{App: config.AppConfig{Env: "prod"}})(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "prod", rec.Header().Get("X-Biddart-Env"))
}

func TestNotificationListPassesFilters(t *testing.T) {
	svc := &stubNotificationService{}
	req := newRequest(http.MethodGet, "/api/v1/notifications?limit=10&unread=true&cursor=abc", "", testScope(), nil)
	rec := httptest.NewRecorder()

	NotificationList(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 10, svc.params.Limit)
	require.True(t, svc.params.UnreadOnly)
	require.Equal(t, "abc", svc.params.Cursor)

	var out notificationListResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Len(t, out.Items, 1)
	require.Equal(t, "next", out.Cursor)
	require.EqualValues(t, 7, out.Unread)
}

func TestNotificationMarkReadMapsNotFound(t *testing.T) {
	svc := &stubNotificationService{err: pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")}
	id := uuid.New()
	req := newRequest(http.MethodPost, "/api/v1/notifications/x/read", "", testScope(), map[string]string{"notificationID": id.String()})
	rec := httptest.NewRecorder()

	NotificationMarkRead(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, id, svc.marked)
}

func TestNotificationMarkAllRead(t *testing.T) {
	rec := httptest.NewRecorder()
	NotificationMarkAllRead(&stubNotificationService{}, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/notifications/read-all", "", testScope(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int64
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Equal(t, int64(4), out["updated"])
}

func TestCheckoutQuote(t *testing.T) {
	bidderID := uuid.New()
	svc := &stubCheckoutService{quote: &checkout.Quote{
		BidderID: bidderID,
		Bids:     []models.Bid{{ID: uuid.New(), BidderID: bidderID, AmountCents: 100000, IsWinning: true}},
		Breakdown: fees.BreakdownCents{
			SubtotalCents:      100000,
			TaxCents:           500,
			PlatformFeeCents:   2500,
			ProcessingFeeCents: 3000,
			TotalCents:         106000,
		},
		Currency: enums.CurrencyUSD,
	}}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/?tax_cents=500", "", testScope(), map[string]string{"bidderID": bidderID.String()})
	CheckoutQuote(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, checkout.QuoteInput{BidderID: bidderID, TaxCents: 500}, svc.quoteInput)
	var out struct {
		Bids      []bidResponse `json:"bids"`
		Breakdown struct {
			TotalCents int64 `json:"total_cents"`
		} `json:"breakdown"`
		Currency string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Len(t, out.Bids, 1)
	require.Equal(t, int64(106000), out.Breakdown.TotalCents)
	require.Equal(t, "USD", out.Currency)
}

func TestCheckoutQuoteRejectsNegativeTax(t *testing.T) {
	svc := &stubCheckoutService{}
	rec := httptest.NewRecorder()
	req := newRequest(http.MethodGet, "/?tax_cents=-1", "", testScope(), map[string]string{"bidderID": uuid.NewString()})
	CheckoutQuote(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutListPassesFilters(t *testing.T) {
	eventID, bidderID := uuid.New(), uuid.New()
	svc := &stubCheckoutService{page: &checkout.SessionPage{
		Sessions: []models.CheckoutSession{{ID: uuid.New(), EventID: eventID, Status: enums.CheckoutStatusCompleted}},
		Cursor:   "next-page",
	}}
	rec := httptest.NewRecorder()
	target := "/?status=completed&bidder_id=" + bidderID.String() + "&limit=10&cursor=abc"
	CheckoutList(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, target, "", testScope(), map[string]string{"eventID": eventID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, checkout.SessionListParams{
		EventID:  eventID,
		BidderID: bidderID,
		Status:   enums.CheckoutStatusCompleted,
		Limit:    10,
		Cursor:   "abc",
	}, svc.listParams)
	var out struct {
		Items  []checkoutSessionResponse `json:"items"`
		Cursor string                    `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Len(t, out.Items, 1)
	require.Equal(t, "next-page", out.Cursor)
}

func TestCheckoutListRejectsBadFilters(t *testing.T) {
	eventID := uuid.NewString()
	for _, target := range []string{"/?status=settled", "/?bidder_id=42", "/?limit=0"} {
		svc := &stubCheckoutService{}
		rec := httptest.NewRecorder()
		CheckoutList(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, target, "", testScope(), map[string]string{"eventID": eventID}))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestItemCreateDefaultsIncrement(t *testing.T) {
	svc := &stubItemService{}
	eventID := uuid.New()
	body := `{"item_number":"A-12","name":"Weekend at the lake house","starting_price_cents":50000,"buy_now_price_cents":0}`
	rec := httptest.NewRecorder()
	ItemCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), map[string]string{"eventID": eventID.String()}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, eventID, svc.eventID)
	require.Equal(t, int64(100), svc.input.BidIncrementCents)
	require.NotNil(t, svc.input.BuyNowPriceCents)
	require.Equal(t, int64(0), *svc.input.BuyNowPriceCents)
	var out itemResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Equal(t, int64(50000), out.CurrentPriceCents)
}

func TestItemCreateRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing name":       `{"starting_price_cents":100}`,
		"blank name":         `{"name":"   "}`,
		"zero increment":     `{"name":"Quilt","bid_increment_cents":0}`,
		"negative starting":  `{"name":"Quilt","starting_price_cents":-1}`,
		"negative buy now":   `{"name":"Quilt","buy_now_price_cents":-5}`,
		"long item number":   `{"name":"Quilt","item_number":"0123456789012345678901234567890123"}`,
		"unparseable window": `{"name":"Quilt","bidding_ends_at":"tonight"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubItemService{}
			rec := httptest.NewRecorder()
			ItemCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", body, testScope(), map[string]string{"eventID": uuid.NewString()}))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Equal(t, uuid.Nil, svc.eventID)
		})
	}
}

func TestItemUpdatePassesWindow(t *testing.T) {
	svc := &stubItemService{}
	itemID := uuid.New()
	body := `{"name":"Quilt","starting_price_cents":2000,"bid_increment_cents":250,` +
		`"bidding_starts_at":"2026-05-02T18:00:00Z","bidding_ends_at":"2026-05-02T21:00:00Z"}`
	params := map[string]string{"eventID": uuid.NewString(), "itemID": itemID.String()}
	rec := httptest.NewRecorder()
	ItemUpdate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPut, "/", body, testScope(), params))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, itemID, svc.itemID)
	require.Equal(t, int64(250), svc.input.BidIncrementCents)
	require.NotNil(t, svc.input.BiddingEndsAt)
	require.Equal(t, 3*time.Hour, svc.input.BiddingEndsAt.Sub(*svc.input.BiddingStartsAt))
}

func TestItemUpdateSurfacesValidation(t *testing.T) {
	svc := &stubItemService{err: pkgerrors.New(pkgerrors.CodeValidation, "bidding must end after it starts")}
	params := map[string]string{"eventID": uuid.NewString(), "itemID": uuid.NewString()}
	rec := httptest.NewRecorder()
	ItemUpdate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPut, "/", `{"name":"Quilt"}`, testScope(), params))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemToggleActive(t *testing.T) {
	svc := &stubItemService{}
	params := map[string]string{"eventID": uuid.NewString(), "itemID": uuid.NewString()}
	rec := httptest.NewRecorder()
	ItemToggleActive(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", "", testScope(), params))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, svc.toggled)
	var out itemResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.False(t, out.IsActive)
}

func TestItemListPassesSearch(t *testing.T) {
	svc := &stubItemService{rows: []models.AuctionItem{{ID: uuid.New(), Name: "Signed guitar", IsActive: true}}}
	eventID := uuid.New()
	rec := httptest.NewRecorder()
	ItemList(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/?q=guitar&active=true&limit=20", "", testScope(), map[string]string{"eventID": eventID.String()}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, items.ListParams{EventID: eventID, Search: "guitar", ActiveOnly: true, Limit: 20}, svc.list)
	var out []itemResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &out))
	require.Len(t, out, 1)
}
