package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/api/middleware"
	"github.com/biddart/biddart-backend/internal/bidders"
	"github.com/biddart/biddart-backend/internal/bids"
	"github.com/biddart/biddart-backend/internal/checkout"
	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/items"
	"github.com/biddart/biddart-backend/internal/notifications"
	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
)

// newRequest builds a request carrying scope and chi URL params.
func newRequest(method, target, body string, scope *tenancy.Scope, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if scope != nil {
		ctx = middleware.WithScope(ctx, *scope)
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

type stubBidService struct {
	placeInput bids.PlaceBidInput
	placeErr   error
	bulkInput  bids.BulkActionInput
	withdrawn  uuid.UUID
	limit      int
	rows       []models.Bid
	minimum    int64
	stats      *bids.EventStats
}

func (s *stubBidService) PlaceBid(_ context.Context, scope tenancy.Scope, input bids.PlaceBidInput) (*models.Bid, error) {
	s.placeInput = input
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	return &models.Bid{ID: uuid.New(), TenantID: scope.TenantID, AuctionItemID: input.ItemID, BidderID: input.BidderID, AmountCents: input.AmountCents, Kind: input.Kind, IsWinning: true}, nil
}

func (s *stubBidService) WithdrawBid(_ context.Context, _ tenancy.Scope, bidID uuid.UUID) error {
	s.withdrawn = bidID
	return nil
}

func (s *stubBidService) NextMinimumBidForItem(context.Context, tenancy.Scope, uuid.UUID) (int64, error) {
	return s.minimum, nil
}

func (s *stubBidService) BulkAction(_ context.Context, _ tenancy.Scope, input bids.BulkActionInput) (*bids.BulkActionResult, error) {
	s.bulkInput = input
	return &bids.BulkActionResult{Action: input.Action, Affected: len(input.BidIDs)}, nil
}

func (s *stubBidService) EventStats(context.Context, uuid.UUID, uuid.UUID) (*bids.EventStats, error) {
	return s.stats, nil
}

func (s *stubBidService) ListRecent(_ context.Context, _, _ uuid.UUID, limit int) ([]models.Bid, error) {
	s.limit = limit
	return s.rows, nil
}

func (s *stubBidService) ListForItem(_ context.Context, _, _ uuid.UUID, limit int) ([]models.Bid, error) {
	s.limit = limit
	return s.rows, nil
}

type stubCheckoutService struct {
	createInput checkout.CreateSessionInput
	chargeToken string
	refundInput checkout.RefundInput
	quoteInput  checkout.QuoteInput
	listParams  checkout.SessionListParams
	quote       *checkout.Quote
	page        *checkout.SessionPage
	err         error
	session     *models.CheckoutSession
}

func (s *stubCheckoutService) Quote(_ context.Context, _ tenancy.Scope, input checkout.QuoteInput) (*checkout.Quote, error) {
	s.quoteInput = input
	if s.err != nil {
		return nil, s.err
	}
	return s.quote, nil
}

func (s *stubCheckoutService) ListSessions(_ context.Context, _ tenancy.Scope, params checkout.SessionListParams) (*checkout.SessionPage, error) {
	s.listParams = params
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubCheckoutService) CreateSession(_ context.Context, _ tenancy.Scope, input checkout.CreateSessionInput) (*models.CheckoutSession, error) {
	s.createInput = input
	return s.result()
}

func (s *stubCheckoutService) CompleteCashOrCheck(context.Context, tenancy.Scope, uuid.UUID) (*models.CheckoutSession, error) {
	return s.result()
}

func (s *stubCheckoutService) ChargeCard(_ context.Context, _ tenancy.Scope, sessionID uuid.UUID, token string) (*checkout.Receipt, error) {
	s.chargeToken = token
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.Receipt{SessionID: sessionID, Status: "completed", TotalCents: 1000, ExternalPaymentID: "pay_1"}, nil
}

func (s *stubCheckoutService) Refund(_ context.Context, _ tenancy.Scope, _ uuid.UUID, input checkout.RefundInput) (*models.CheckoutSession, error) {
	s.refundInput = input
	return s.result()
}

func (s *stubCheckoutService) GetSession(context.Context, tenancy.Scope, uuid.UUID) (*models.CheckoutSession, error) {
	return s.result()
}

func (s *stubCheckoutService) SettlePaid(context.Context, *gorm.DB, tenancy.Scope, uuid.UUID, payments.PaymentStatus) error {
	return nil
}

func (s *stubCheckoutService) SettleNotCharged(context.Context, *gorm.DB, tenancy.Scope, uuid.UUID, string) error {
	return nil
}

func (s *stubCheckoutService) result() (*models.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.session != nil {
		return s.session, nil
	}
	return &models.CheckoutSession{ID: uuid.New(), Status: "pending", TotalCents: 1000}, nil
}

type stubItemService struct {
	eventID uuid.UUID
	itemID  uuid.UUID
	input   items.ItemInput
	list    items.ListParams
	toggled bool
	rows    []models.AuctionItem
	err     error
}

func (s *stubItemService) Create(_ context.Context, _ tenancy.Scope, eventID uuid.UUID, input items.ItemInput) (*models.AuctionItem, error) {
	s.eventID, s.input = eventID, input
	return s.item(eventID, uuid.New())
}

func (s *stubItemService) Get(_ context.Context, _ tenancy.Scope, eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	return s.item(eventID, itemID)
}

func (s *stubItemService) List(_ context.Context, _ tenancy.Scope, params items.ListParams) ([]models.AuctionItem, error) {
	s.list = params
	return s.rows, s.err
}

func (s *stubItemService) Update(_ context.Context, _ tenancy.Scope, eventID, itemID uuid.UUID, input items.ItemInput) (*models.AuctionItem, error) {
	s.itemID, s.input = itemID, input
	return s.item(eventID, itemID)
}

func (s *stubItemService) ToggleActive(_ context.Context, _ tenancy.Scope, eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	s.toggled = true
	item, err := s.item(eventID, itemID)
	if item != nil {
		item.IsActive = false
	}
	return item, err
}

func (s *stubItemService) item(eventID, itemID uuid.UUID) (*models.AuctionItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuctionItem{
		ID:                 itemID,
		EventID:            eventID,
		Name:               s.input.Name,
		StartingPriceCents: s.input.StartingPriceCents,
		CurrentPriceCents:  s.input.StartingPriceCents,
		BuyNowPriceCents:   s.input.BuyNowPriceCents,
		BidIncrementCents:  s.input.BidIncrementCents,
		IsActive:           true,
	}, nil
}

type stubReconciliationService struct {
	resolveInput reconciliation.ResolveInput
	limit        int
	rows         []models.ReconciliationCase
	err          error
}

func (s *stubReconciliationService) Open(context.Context, *gorm.DB, reconciliation.OpenInput) (*models.ReconciliationCase, error) {
	return nil, nil
}

func (s *stubReconciliationService) ListOpen(_ context.Context, _ tenancy.Scope, limit int) ([]models.ReconciliationCase, error) {
	s.limit = limit
	return s.rows, s.err
}

func (s *stubReconciliationService) Get(_ context.Context, _ tenancy.Scope, caseID uuid.UUID) (*models.ReconciliationCase, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReconciliationCase{ID: caseID, Status: "open"}, nil
}

func (s *stubReconciliationService) Resolve(_ context.Context, _ tenancy.Scope, caseID uuid.UUID, input reconciliation.ResolveInput) (*models.ReconciliationCase, error) {
	s.resolveInput = input
	if s.err != nil {
		return nil, s.err
	}
	res := input.Resolution
	return &models.ReconciliationCase{ID: caseID, Status: "resolved", Resolution: &res}, nil
}

func (s *stubReconciliationService) Sweep(context.Context, int) (reconciliation.SweepResult, error) {
	return reconciliation.SweepResult{}, nil
}

func (s *stubReconciliationService) PaymentReported(context.Context, string, string) (bool, error) {
	return false, nil
}

type stubBidderService struct {
	input bidders.RegisterInput
}

func (s *stubBidderService) Register(_ context.Context, scope tenancy.Scope, input bidders.RegisterInput) (*models.Bidder, error) {
	s.input = input
	return &models.Bidder{ID: uuid.New(), TenantID: scope.TenantID, EventID: input.EventID, BidderNumber: "101", FirstName: input.FirstName, LastName: input.LastName}, nil
}

func (s *stubBidderService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Bidder, error) {
	return nil, nil
}

func (s *stubBidderService) ListForEvent(_ context.Context, _, eventID uuid.UUID) ([]models.Bidder, error) {
	return []models.Bidder{{ID: uuid.New(), EventID: eventID, BidderNumber: "100"}, {ID: uuid.New(), EventID: eventID, BidderNumber: "101"}}, nil
}

type stubEventService struct {
	cfg fees.FeeConfig
	err error
}

func (s *stubEventService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Event, error) {
	return nil, nil
}

func (s *stubEventService) FeeConfig(context.Context, uuid.UUID, uuid.UUID) (fees.FeeConfig, error) {
	return s.cfg, nil
}

func (s *stubEventService) UpdateFees(_ context.Context, _ tenancy.Scope, eventID uuid.UUID, cfg fees.FeeConfig) (*models.Event, error) {
	s.cfg = cfg
	if s.err != nil {
		return nil, s.err
	}
	return &models.Event{ID: eventID, TransactionFeePercentage: cfg.Percentage, FixedTransactionFeeCents: fees.ToCents(cfg.FixedFee)}, nil
}

type stubNotificationService struct {
	params notifications.ListParams
	marked uuid.UUID
	err    error
}

func (s *stubNotificationService) List(_ context.Context, _ tenancy.Scope, params notifications.ListParams) (*notifications.ListResult, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	link := "/checkout/sessions/x"
	return &notifications.ListResult{
		Items:  []models.Notification{{ID: uuid.New(), Type: "payment_failed", Title: "Checkout failed", Message: "declined", Link: &link}},
		Cursor: "next",
		Unread: 7,
	}, nil
}

func (s *stubNotificationService) MarkRead(_ context.Context, _ tenancy.Scope, id uuid.UUID) error {
	s.marked = id
	return s.err
}

func (s *stubNotificationService) MarkAllRead(context.Context, tenancy.Scope) (int64, error) {
	return 4, s.err
}
