package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/fees"
	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/internal/tenancy"
	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/dbtest"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	"github.com/biddart/biddart-backend/pkg/outbox"
)

// flakyTx fails the n-th transaction without running it, as if the commit was lost.
type flakyTx struct {
	inner  txRunner
	failOn int
	calls  int
}

func (f *flakyTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("connection reset during commit")
	}
	return f.inner.WithTx(ctx, fn)
}

type checkoutFixture struct {
	db      *gorm.DB
	client  *dbpkg.Client
	tx      txRunner
	svc     Service
	gateway *payments.FakeGateway
	scope   tenancy.Scope
	event   *models.Event
	bidder  *models.Bidder
	other   *models.Bidder
	items   []*models.AuctionItem
	bids    []*models.Bid
	now     time.Time
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	return newCheckoutFixtureWithTx(t, nil)
}

// newCheckoutFixtureWithTx seeds one bidder winning two items for 600.00 and
// 400.00 in an event charging 2.5% + 0.30.
func newCheckoutFixtureWithTx(t *testing.T, wrap func(txRunner) txRunner) *checkoutFixture {
	t.Helper()
	conn := dbtest.Open(t, "checkout",
		&models.Event{}, &models.AuctionItem{}, &models.Bidder{}, &models.Bid{},
		&models.CheckoutSession{}, &models.CheckoutSessionBid{},
		&models.ReconciliationCase{}, &models.OutboxEvent{},
	)
	f := &checkoutFixture{
		db:      conn,
		client:  dbpkg.Wrap(conn),
		gateway: payments.NewFakeGateway(),
		scope:   tenancy.New(uuid.New(), uuid.New()),
		now:     time.Date(2026, 5, 2, 22, 0, 0, 0, time.UTC),
	}
	f.tx = f.client
	if wrap != nil {
		f.tx = wrap(f.client)
	}

	f.event = &models.Event{
		TenantID:                 f.scope.TenantID,
		Name:                     "Spring Gala",
		TransactionFeePercentage: decimal.RequireFromString("2.5"),
		FixedTransactionFeeCents: 30,
		IsActive:                 true,
	}
	mustCreate(t, conn, f.event)
	f.bidder = &models.Bidder{TenantID: f.scope.TenantID, EventID: f.event.ID, BidderNumber: "001", FirstName: "Ada"}
	f.other = &models.Bidder{TenantID: f.scope.TenantID, EventID: f.event.ID, BidderNumber: "002", FirstName: "Grace"}
	mustCreate(t, conn, f.bidder)
	mustCreate(t, conn, f.other)

	for i, amount := range []int64{60000, 40000} {
		item := &models.AuctionItem{
			TenantID:           f.scope.TenantID,
			EventID:            f.event.ID,
			Name:               []string{"Lake house weekend", "Signed guitar"}[i],
			StartingPriceCents: 10000,
			BidIncrementCents:  1000,
			IsActive:           true,
		}
		mustCreate(t, conn, item)
		bid := &models.Bid{
			TenantID:      f.scope.TenantID,
			EventID:       f.event.ID,
			AuctionItemID: item.ID,
			BidderID:      f.bidder.ID,
			AmountCents:   amount,
			Kind:          enums.BidKindStandard,
			IsWinning:     true,
			CreatedAt:     f.now.Add(-time.Duration(i+1) * time.Hour),
		}
		mustCreate(t, conn, bid)
		f.items = append(f.items, item)
		f.bids = append(f.bids, bid)
	}

	cases, err := reconciliation.NewOpener(reconciliation.OpenerParams{
		Tx:     f.client,
		Repo:   reconciliation.NewRepository(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), nil),
		Now:    f.clock,
	})
	if err != nil {
		t.Fatalf("new opener: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Tx:      f.tx,
		Repo:    NewRepository(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Gateway: f.gateway,
		Cases:   cases,
		GatewayFees: fees.GatewayFees{
			Percentage: decimal.RequireFromString("2.6"),
			FixedFee:   decimal.RequireFromString("0.10"),
		},
		ChargeTimeout: time.Second,
		Now:           f.clock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *checkoutFixture) clock() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *checkoutFixture) bidIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(f.bids))
	for i, bid := range f.bids {
		ids[i] = bid.ID
	}
	return ids
}

func (f *checkoutFixture) createSession(t *testing.T, method enums.PaymentMethod) *models.CheckoutSession {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), f.scope, CreateSessionInput{
		BidderID:      f.bidder.ID,
		BidIDs:        f.bidIDs(),
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func (f *checkoutFixture) reloadSession(t *testing.T, id uuid.UUID) models.CheckoutSession {
	t.Helper()
	var session models.CheckoutSession
	if err := f.db.Preload("Lines").First(&session, "id = ?", id).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return session
}

func (f *checkoutFixture) paidFlags(t *testing.T) []bool {
	t.Helper()
	flags := make([]bool, len(f.bids))
	for i, bid := range f.bids {
		var row models.Bid
		if err := f.db.First(&row, "id = ?", bid.ID).Error; err != nil {
			t.Fatalf("reload bid: %v", err)
		}
		flags[i] = row.IsPaid
	}
	return flags
}

func (f *checkoutFixture) activeLines(t *testing.T, sessionID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.CheckoutSessionBid{}).
		Where("session_id = ? AND released_at IS NULL", sessionID).
		Count(&count).Error; err != nil {
		t.Fatalf("count lines: %v", err)
	}
	return count
}

func (f *checkoutFixture) outboxCount(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}

func (f *checkoutFixture) openCases(t *testing.T, sessionID uuid.UUID) []models.ReconciliationCase {
	t.Helper()
	var rows []models.ReconciliationCase
	if err := f.db.Where("session_id = ? AND status = ?", sessionID, enums.ReconciliationStatusOpen).Find(&rows).Error; err != nil {
		t.Fatalf("load cases: %v", err)
	}
	return rows
}

func assertPaid(t *testing.T, got []bool, want bool) {
	t.Helper()
	for i, paid := range got {
		if paid != want {
			t.Fatalf("bid %d: expected paid=%v, got %v", i, want, paid)
		}
	}
}

func mustCreate(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}
