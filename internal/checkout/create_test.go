package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

func TestCreateSessionComputesTotalsOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCard)

	if session.Status != enums.CheckoutStatusPending {
		t.Fatalf("expected pending, got %s", session.Status)
	}
	if session.SubtotalCents != 100000 || session.PlatformFeeCents != 2530 || session.ProcessingFeeCents != 2676 || session.TotalCents != 105206 {
		t.Fatalf("unexpected totals %+v", session)
	}
	if session.SubtotalCents+session.TaxCents+session.PlatformFeeCents+session.ProcessingFeeCents != session.TotalCents {
		t.Fatalf("components must add up to the total")
	}
	if len(session.Lines) != 2 || session.Lines[0].ItemName != "Lake house weekend" || session.Lines[0].AmountCents != 60000 {
		t.Fatalf("unexpected snapshot lines %+v", session.Lines)
	}
	if got := f.outboxCount(t, enums.EventCheckoutCreated); got != 1 {
		t.Fatalf("expected 1 checkout.created event, got %d", got)
	}

	if err := f.db.Model(&models.AuctionItem{}).Where("id = ?", f.items[0].ID).Update("name", "Renamed").Error; err != nil {
		t.Fatalf("rename item: %v", err)
	}
	if err := f.db.Model(&models.Event{}).Where("id = ?", f.event.ID).Update("fixed_transaction_fee_cents", 999).Error; err != nil {
		t.Fatalf("change fees: %v", err)
	}
	stored, err := f.svc.GetSession(context.Background(), f.scope, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.TotalCents != 105206 || stored.Lines[0].ItemName != "Lake house weekend" {
		t.Fatalf("stored session must not follow later changes, got total %d name %q", stored.TotalCents, stored.Lines[0].ItemName)
	}
}

func TestCreateSessionWithTax(t *testing.T) {
	f := newCheckoutFixture(t)
	session, err := f.svc.CreateSession(context.Background(), f.scope, CreateSessionInput{
		BidderID:      f.bidder.ID,
		BidIDs:        f.bidIDs()[:1],
		PaymentMethod: enums.PaymentMethodCash,
		TaxCents:      500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// platform 600.00*2.5%+0.30 = 15.30; processing (600+5+15.30)*2.6%+0.10 = 16.2278
	if session.TaxCents != 500 || session.PlatformFeeCents != 1530 || session.ProcessingFeeCents != 1623 || session.TotalCents != 63653 {
		t.Fatalf("unexpected totals %+v", session)
	}
}

func TestCreateSessionRejectsInvalidSelection(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	losing := &models.Bid{TenantID: f.scope.TenantID, EventID: f.event.ID, AuctionItemID: f.items[0].ID, BidderID: f.bidder.ID, AmountCents: 20000, Kind: enums.BidKindStandard}
	paid := &models.Bid{TenantID: f.scope.TenantID, EventID: f.event.ID, AuctionItemID: f.items[1].ID, BidderID: f.bidder.ID, AmountCents: 100, Kind: enums.BidKindDonation, IsWinning: true, IsPaid: true}
	foreign := &models.Bid{TenantID: f.scope.TenantID, EventID: f.event.ID, AuctionItemID: f.items[1].ID, BidderID: f.other.ID, AmountCents: 30000, Kind: enums.BidKindStandard, IsWinning: true}
	for _, bid := range []*models.Bid{losing, paid, foreign} {
		mustCreate(t, f.db, bid)
	}
	missing := uuid.New()

	_, err := f.svc.CreateSession(ctx, f.scope, CreateSessionInput{
		BidderID:      f.bidder.ID,
		BidIDs:        []uuid.UUID{f.bids[0].ID, losing.ID, paid.ID, foreign.ID, missing},
		PaymentMethod: enums.PaymentMethodCash,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidBidSelection {
		t.Fatalf("expected INVALID_BID_SELECTION, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %#v", typed.Details())
	}
	invalid, ok := details["bids"].([]InvalidBid)
	if !ok || len(invalid) != 4 {
		t.Fatalf("expected 4 offending bids, got %#v", details["bids"])
	}
	want := map[uuid.UUID]string{losing.ID: reasonNotWinning, paid.ID: reasonAlreadyPaid, foreign.ID: reasonOtherBidder, missing: reasonNotFound}
	for _, item := range invalid {
		if want[item.BidID] != item.Reason {
			t.Fatalf("bid %s: expected %q, got %q", item.BidID, want[item.BidID], item.Reason)
		}
	}

	var sessions int64
	if err := f.db.Model(&models.CheckoutSession{}).Count(&sessions).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if sessions != 0 {
		t.Fatalf("rejected selection must not persist a session")
	}
}

func TestCreateSessionBidCannotBeSpentTwice(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.createSession(t, enums.PaymentMethodCard)

	_, err := f.svc.CreateSession(ctx, f.scope, CreateSessionInput{
		BidderID:      f.bidder.ID,
		BidIDs:        []uuid.UUID{f.bids[1].ID, f.bids[1].ID},
		PaymentMethod: enums.PaymentMethodCash,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidBidSelection {
		t.Fatalf("expected INVALID_BID_SELECTION, got %v", err)
	}
	invalid := typed.Details().(map[string]any)["bids"].([]InvalidBid)
	if len(invalid) != 1 || invalid[0].Reason != reasonInAnotherRun {
		t.Fatalf("expected the duplicate id to be reported once as attached, got %+v", invalid)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		scope tenancy.Scope
		input CreateSessionInput
		code  pkgerrors.Code
	}{
		{"empty selection", f.scope, CreateSessionInput{BidderID: f.bidder.ID, PaymentMethod: enums.PaymentMethodCash}, pkgerrors.CodeValidation},
		{"unknown method", f.scope, CreateSessionInput{BidderID: f.bidder.ID, BidIDs: f.bidIDs(), PaymentMethod: "crypto"}, pkgerrors.CodeValidation},
		{"negative tax", f.scope, CreateSessionInput{BidderID: f.bidder.ID, BidIDs: f.bidIDs(), PaymentMethod: enums.PaymentMethodCash, TaxCents: -1}, pkgerrors.CodeValidation},
		{"unknown bidder", f.scope, CreateSessionInput{BidderID: uuid.New(), BidIDs: f.bidIDs(), PaymentMethod: enums.PaymentMethodCash}, pkgerrors.CodeNotFound},
		{"other tenant", tenancy.New(uuid.New(), uuid.New()), CreateSessionInput{BidderID: f.bidder.ID, BidIDs: f.bidIDs(), PaymentMethod: enums.PaymentMethodCash}, pkgerrors.CodeNotFound},
		{"no tenant", tenancy.Scope{}, CreateSessionInput{BidderID: f.bidder.ID, BidIDs: f.bidIDs(), PaymentMethod: enums.PaymentMethodCash}, pkgerrors.CodeUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSession(ctx, tc.scope, tc.input)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCompleteCashOrCheck(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := f.createSession(t, enums.PaymentMethodCheck)

	completed, err := f.svc.CompleteCashOrCheck(ctx, f.scope, session.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != enums.CheckoutStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("expected completed session, got %+v", completed)
	}
	assertPaid(t, f.paidFlags(t), true)
	stored := f.reloadSession(t, session.ID)
	if stored.ProcessedBy == nil || *stored.ProcessedBy != f.scope.ActorID {
		t.Fatalf("expected processed_by to be stamped")
	}
	if got := f.outboxCount(t, enums.EventCheckoutCompleted); got != 1 {
		t.Fatalf("expected 1 checkout.completed event, got %d", got)
	}

	if _, err := f.svc.CompleteCashOrCheck(ctx, f.scope, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT on second completion, got %v", err)
	}
}

func TestCompleteCashOrCheckRejectsCardSessions(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCard)

	if _, err := f.svc.CompleteCashOrCheck(context.Background(), f.scope, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
	assertPaid(t, f.paidFlags(t), false)
	if stored := f.reloadSession(t, session.ID); stored.Status != enums.CheckoutStatusPending {
		t.Fatalf("session must stay pending, got %s", stored.Status)
	}
}

func TestGetSessionIsTenantScoped(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCash)

	other := tenancy.New(uuid.New(), uuid.New())
	if _, err := f.svc.GetSession(context.Background(), other, session.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for another tenant, got %v", err)
	}
}
