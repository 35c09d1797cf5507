package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/biddart/biddart-backend/internal/payments"
	"github.com/biddart/biddart-backend/pkg/enums"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

func TestChargeCardSuccess(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := f.createSession(t, enums.PaymentMethodCard)

	receipt, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if receipt.Status != enums.CheckoutStatusCompleted || receipt.ExternalPaymentID != "pay_1" || receipt.ReceiptNumber != "R0001" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if len(f.gateway.Charges) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(f.gateway.Charges))
	}
	charge := f.gateway.Charges[0]
	if charge.AmountCents != 105206 || charge.IdempotencyKey != IdempotencyKey(session.ID) || charge.SourceToken != "cnon:card-ok" {
		t.Fatalf("unexpected charge request %+v", charge)
	}

	stored := f.reloadSession(t, session.ID)
	if stored.Status != enums.CheckoutStatusCompleted || stored.ExternalPaymentID == nil || *stored.ExternalPaymentID != "pay_1" {
		t.Fatalf("unexpected stored session %+v", stored)
	}
	if stored.IdempotencyKey == nil || *stored.IdempotencyKey != IdempotencyKey(session.ID) {
		t.Fatalf("expected idempotency key to be stored")
	}
	assertPaid(t, f.paidFlags(t), true)
	if got := f.outboxCount(t, enums.EventCheckoutCompleted); got != 1 {
		t.Fatalf("expected 1 checkout.completed event, got %d", got)
	}

	if _, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok"); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT when charging twice, got %v", err)
	}
	if len(f.gateway.Charges) != 1 {
		t.Fatalf("a completed session must never reach the gateway again")
	}
}

func TestChargeCardRequiresToken(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCard)

	if _, err := f.svc.ChargeCard(context.Background(), f.scope, session.ID, "  "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if len(f.gateway.Charges) != 0 {
		t.Fatalf("gateway must not be called without a token")
	}
}

func TestChargeCardRejectsOfflineSessions(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCash)

	if _, err := f.svc.ChargeCard(context.Background(), f.scope, session.ID, "cnon:card-ok"); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected STATE_CONFLICT, got %v", err)
	}
}

func TestChargeCardDeclined(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := f.createSession(t, enums.PaymentMethodCard)
	f.gateway.FailNextCharge(&payments.GatewayError{Kind: payments.ErrorKindDeclined, Detail: "Card declined: insufficient funds"})

	_, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-declined")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentDeclined {
		t.Fatalf("expected PAYMENT_DECLINED, got %v", err)
	}
	if typed.Message() != "Card declined: insufficient funds" {
		t.Fatalf("expected the gateway message verbatim, got %q", typed.Message())
	}

	stored := f.reloadSession(t, session.ID)
	if stored.Status != enums.CheckoutStatusFailed || stored.FailureReason == nil || *stored.FailureReason != "Card declined: insufficient funds" {
		t.Fatalf("unexpected stored session %+v", stored)
	}
	assertPaid(t, f.paidFlags(t), false)
	if f.activeLines(t, session.ID) != 0 {
		t.Fatalf("declined session must release its bids")
	}
	if got := f.outboxCount(t, enums.EventCheckoutFailed); got != 1 {
		t.Fatalf("expected 1 checkout.failed event, got %d", got)
	}

	retry := f.createSession(t, enums.PaymentMethodCard)
	if _, err := f.svc.ChargeCard(ctx, f.scope, retry.ID, "cnon:card-ok"); err != nil {
		t.Fatalf("charge with a new card: %v", err)
	}
	assertPaid(t, f.paidFlags(t), true)
}

func TestChargeCardGatewayUnavailableKeepsSessionPending(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := f.createSession(t, enums.PaymentMethodCard)
	f.gateway.FailNextCharge(&payments.GatewayError{Kind: payments.ErrorKindUnavailable, Detail: "dial tcp: connection refused"})

	if _, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok"); !pkgerrors.IsCode(err, pkgerrors.CodePaymentGatewayUnavailable) {
		t.Fatalf("expected PAYMENT_GATEWAY_UNAVAILABLE, got %v", err)
	}
	if stored := f.reloadSession(t, session.ID); stored.Status != enums.CheckoutStatusPending {
		t.Fatalf("expected pending after an unreachable gateway, got %s", stored.Status)
	}
	if f.activeLines(t, session.ID) != 2 {
		t.Fatalf("bids must stay attached while the session is pending")
	}

	receipt, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok")
	if err != nil {
		t.Fatalf("retry charge: %v", err)
	}
	if receipt.Status != enums.CheckoutStatusCompleted {
		t.Fatalf("expected completed on retry, got %s", receipt.Status)
	}
	if f.gateway.Charges[0].IdempotencyKey != f.gateway.Charges[1].IdempotencyKey {
		t.Fatalf("retries must reuse the idempotency key")
	}
}

func TestChargeCardUnknownOutcomeOpensCase(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCard)
	f.gateway.FailNextCharge(errors.New("read tcp: i/o timeout"))

	_, err := f.svc.ChargeCard(context.Background(), f.scope, session.ID, "cnon:card-ok")
	if !pkgerrors.IsCode(err, pkgerrors.CodeReconciliationRequired) {
		t.Fatalf("expected RECONCILIATION_REQUIRED, got %v", err)
	}

	stored := f.reloadSession(t, session.ID)
	if stored.Status != enums.CheckoutStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	assertPaid(t, f.paidFlags(t), false)

	cases := f.openCases(t, session.ID)
	if len(cases) != 1 {
		t.Fatalf("expected 1 open case, got %d", len(cases))
	}
	if cases[0].Reason != enums.ReconciliationReasonOutcomeUnknown || cases[0].IdempotencyKey != IdempotencyKey(session.ID) || cases[0].AmountCents != 105206 {
		t.Fatalf("unexpected case %+v", cases[0])
	}
	if got := f.outboxCount(t, enums.EventReconciliationRequired); got != 1 {
		t.Fatalf("expected 1 reconciliation.required event, got %d", got)
	}
}

func TestChargeCardCommitFailureLeavesSessionProcessing(t *testing.T) {
	// create, start charge, then the completion commit is lost
	f := newCheckoutFixtureWithTx(t, func(inner txRunner) txRunner {
		return &flakyTx{inner: inner, failOn: 3}
	})
	session := f.createSession(t, enums.PaymentMethodCard)

	_, err := f.svc.ChargeCard(context.Background(), f.scope, session.ID, "cnon:card-ok")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeReconciliationRequired {
		t.Fatalf("expected RECONCILIATION_REQUIRED, got %v", err)
	}
	details := typed.Details().(map[string]any)
	if details["external_payment_id"] != "pay_1" {
		t.Fatalf("expected the captured payment id in details, got %#v", details)
	}

	stored := f.reloadSession(t, session.ID)
	if stored.Status != enums.CheckoutStatusProcessing {
		t.Fatalf("expected processing, got %s", stored.Status)
	}
	assertPaid(t, f.paidFlags(t), false)

	cases := f.openCases(t, session.ID)
	if len(cases) != 1 || cases[0].Reason != enums.ReconciliationReasonCommitFailed {
		t.Fatalf("expected one commit_failed case, got %+v", cases)
	}
	if cases[0].ExternalPaymentID == nil || *cases[0].ExternalPaymentID != "pay_1" {
		t.Fatalf("case must carry the captured payment id")
	}
	if got := f.outboxCount(t, enums.EventReconciliationRequired); got != 0 {
		t.Fatalf("commit failures are not announced, got %d events", got)
	}

	if _, err := f.svc.ChargeCard(context.Background(), f.scope, session.ID, "cnon:card-ok"); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("a processing session must not be charged again, got %v", err)
	}
	if len(f.gateway.Charges) != 1 {
		t.Fatalf("expected exactly one gateway charge, got %d", len(f.gateway.Charges))
	}
}

func TestChargeCardConcurrentAttemptIsRejected(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	session := f.createSession(t, enums.PaymentMethodCard)

	var nestedErr error
	f.gateway.OnCharge = func(payments.ChargeRequest) {
		f.gateway.OnCharge = nil
		_, nestedErr = f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok")
	}

	if _, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok"); err != nil {
		t.Fatalf("first charge: %v", err)
	}
	if !pkgerrors.IsCode(nestedErr, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected the overlapping charge to get STATE_CONFLICT, got %v", nestedErr)
	}
	if len(f.gateway.Charges) != 1 {
		t.Fatalf("expected one gateway charge, got %d", len(f.gateway.Charges))
	}
}

func TestChargeCardCompletesAfterCallerCancels(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.OnCharge = func(payments.ChargeRequest) { cancel() }

	receipt, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-ok")
	if err != nil {
		t.Fatalf("a captured payment must be recorded after the caller leaves, got %v", err)
	}
	if receipt.ExternalPaymentID != "pay_1" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if stored := f.reloadSession(t, session.ID); stored.Status != enums.CheckoutStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	assertPaid(t, f.paidFlags(t), true)
	if cases := f.openCases(t, session.ID); len(cases) != 0 {
		t.Fatalf("no case expected for a recorded charge, got %+v", cases)
	}
}

func TestChargeCardDeclineOutlivesCallerCancel(t *testing.T) {
	f := newCheckoutFixture(t)
	session := f.createSession(t, enums.PaymentMethodCard)
	f.gateway.FailNextCharge(&payments.GatewayError{Kind: payments.ErrorKindDeclined, Detail: "Card declined: expired card"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gateway.OnCharge = func(payments.ChargeRequest) { cancel() }

	if _, err := f.svc.ChargeCard(ctx, f.scope, session.ID, "cnon:card-expired"); !pkgerrors.IsCode(err, pkgerrors.CodePaymentDeclined) {
		t.Fatalf("expected PAYMENT_DECLINED, got %v", err)
	}
	if stored := f.reloadSession(t, session.ID); stored.Status != enums.CheckoutStatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if f.activeLines(t, session.ID) != 0 {
		t.Fatalf("declined session must release its bids")
	}
}

func TestChargeCardDeclineNotRecordedStillReportsDecline(t *testing.T) {
	// create, start charge, then the decline transaction is lost
	f := newCheckoutFixtureWithTx(t, func(inner txRunner) txRunner {
		return &flakyTx{inner: inner, failOn: 3}
	})
	session := f.createSession(t, enums.PaymentMethodCard)
	f.gateway.FailNextCharge(&payments.GatewayError{Kind: payments.ErrorKindDeclined, Detail: "Card declined: insufficient funds"})

	_, err := f.svc.ChargeCard(context.Background(), f.scope, session.ID, "cnon:card-declined")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentDeclined {
		t.Fatalf("expected PAYMENT_DECLINED, got %v", err)
	}
	if typed.Message() != "Card declined: insufficient funds" {
		t.Fatalf("expected the gateway message, got %q", typed.Message())
	}

	if stored := f.reloadSession(t, session.ID); stored.Status != enums.CheckoutStatusProcessing {
		t.Fatalf("expected processing, got %s", stored.Status)
	}
	cases := f.openCases(t, session.ID)
	if len(cases) != 1 || cases[0].Reason != enums.ReconciliationReasonOutcomeUnknown {
		t.Fatalf("expected one case for staff to resolve, got %+v", cases)
	}
}
