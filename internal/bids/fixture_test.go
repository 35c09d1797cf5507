package bids

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biddart/biddart-backend/internal/tenancy"
	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/dbtest"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/outbox"
)

type ledgerFixture struct {
	db      *gorm.DB
	svc     Service
	scope   tenancy.Scope
	event   *models.Event
	item    *models.AuctionItem
	alice   *models.Bidder
	bob     *models.Bidder
	clock   time.Time
	metrics *countingMetrics
}

type countingMetrics struct {
	outcomes map[string]int
}

func (m *countingMetrics) BidPlaced(kind, outcome string) {
	m.outcomes[outcome]++
}

func newLedgerFixture(t *testing.T, allowMarkPaid bool) *ledgerFixture {
	t.Helper()
	conn := dbtest.Open(t, "bids",
		&models.Event{}, &models.AuctionItem{}, &models.Bidder{}, &models.Bid{},
		&models.CheckoutSessionBid{}, &models.OutboxEvent{},
	)

	f := &ledgerFixture{
		db:      conn,
		scope:   tenancy.New(uuid.New(), uuid.New()),
		clock:   time.Date(2026, 5, 2, 19, 0, 0, 0, time.UTC),
		metrics: &countingMetrics{outcomes: map[string]int{}},
	}
	f.event = &models.Event{TenantID: f.scope.TenantID, Name: "Spring Gala", IsActive: true}
	mustCreate(t, conn, f.event)
	f.item = f.newItem(t, 1000, 100)
	f.alice = f.newBidder(t, "001", "Alice")
	f.bob = f.newBidder(t, "002", "Bob")

	svc, err := NewService(ServiceParams{
		Tx:               dbpkg.Wrap(conn),
		Repo:             NewRepository(conn),
		Outbox:           outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics:          f.metrics,
		AllowBulkMarkPay: allowMarkPaid,
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *ledgerFixture) newItem(t *testing.T, startingCents, incrementCents int64) *models.AuctionItem {
	t.Helper()
	item := &models.AuctionItem{
		TenantID:           f.scope.TenantID,
		EventID:            f.event.ID,
		Name:               "Weekend at the lake house",
		StartingPriceCents: startingCents,
		BidIncrementCents:  incrementCents,
		IsActive:           true,
	}
	mustCreate(t, f.db, item)
	return item
}

func (f *ledgerFixture) newBidder(t *testing.T, number, name string) *models.Bidder {
	t.Helper()
	bidder := &models.Bidder{
		TenantID:     f.scope.TenantID,
		EventID:      f.event.ID,
		BidderNumber: number,
		FirstName:    name,
		LastName:     "Tester",
	}
	mustCreate(t, f.db, bidder)
	return bidder
}

func (f *ledgerFixture) reloadItem(t *testing.T, id uuid.UUID) models.AuctionItem {
	t.Helper()
	var item models.AuctionItem
	if err := f.db.First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	return item
}

func (f *ledgerFixture) reloadBid(t *testing.T, id uuid.UUID) models.Bid {
	t.Helper()
	var bid models.Bid
	if err := f.db.First(&bid, "id = ?", id).Error; err != nil {
		t.Fatalf("reload bid: %v", err)
	}
	return bid
}

func (f *ledgerFixture) winners(t *testing.T, itemID uuid.UUID) []models.Bid {
	t.Helper()
	var rows []models.Bid
	if err := f.db.Where("auction_item_id = ? AND is_winning = ?", itemID, true).Find(&rows).Error; err != nil {
		t.Fatalf("load winners: %v", err)
	}
	return rows
}

func (f *ledgerFixture) outboxCount(t *testing.T, eventType string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}

func mustCreate(t *testing.T, db *gorm.DB, value any) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("seed %T: %v", value, err)
	}
}
