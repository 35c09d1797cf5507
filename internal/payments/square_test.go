package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	"github.com/biddart/biddart-backend/pkg/config"
	"github.com/biddart/biddart-backend/pkg/square"
)

type stubSquare struct {
	payment   *sq.Payment
	refund    *sq.PaymentRefund
	err       error
	lastPay   square.PaymentCreateParams
	lastRefnd square.RefundParams
}

func (s *stubSquare) CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	s.lastPay = params
	return s.payment, s.err
}

func (s *stubSquare) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	return s.payment, s.err
}

func (s *stubSquare) RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error) {
	s.lastRefnd = params
	return s.refund, s.err
}

func strPtr(v string) *string { return &v }

func TestSquareGatewayChargeSuccess(t *testing.T) {
	amount := int64(105206)
	stub := &stubSquare{payment: &sq.Payment{
		ID:            strPtr("pay_1"),
		Status:        strPtr("COMPLETED"),
		ReceiptURL:    strPtr("https://squareup.com/receipt/preview/pay_1"),
		ReceiptNumber: strPtr("PAY1"),
		ReferenceID:   strPtr("session-1"),
		AmountMoney:   &sq.Money{Amount: &amount},
	}}
	gw, err := NewSquareGateway(stub)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	res, err := gw.Charge(context.Background(), ChargeRequest{
		AmountCents:    amount,
		Currency:       "USD",
		SourceToken:    "cnon:card-nonce-ok",
		ReferenceID:    "session-1",
		IdempotencyKey: "checkout-session-1",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if res.ExternalPaymentID != "pay_1" || res.ReceiptNumber != "PAY1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if stub.lastPay.IdempotencyKey != "checkout-session-1" || stub.lastPay.SourceID != "cnon:card-nonce-ok" {
		t.Fatalf("request not forwarded: %+v", stub.lastPay)
	}
}

func TestSquareGatewayChargeFailedStatusIsDecline(t *testing.T) {
	gw, _ := NewSquareGateway(&stubSquare{payment: &sq.Payment{ID: strPtr("pay_2"), Status: strPtr("FAILED")}})
	_, err := gw.Charge(context.Background(), ChargeRequest{AmountCents: 100})
	if gwErr := AsGatewayError(err); gwErr.Kind != ErrorKindDeclined {
		t.Fatalf("expected declined, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	decline := sqcore.NewAPIError(http.StatusPaymentRequired, errors.New(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CVV_FAILURE","detail":"Card verification code check failed."}]}`))
	badRequest := sqcore.NewAPIError(http.StatusBadRequest, errors.New(`{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"INVALID_VALUE","detail":"Invalid source."}]}`))
	serverErr := sqcore.NewAPIError(http.StatusBadGateway, errors.New(`{"errors":[{"category":"API_ERROR","code":"BAD_GATEWAY"}]}`))
	authErr := sqcore.NewAPIError(http.StatusUnauthorized, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`))
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	cases := []struct {
		name       string
		err        error
		wantKind   ErrorKind
		wantDetail string
	}{
		{"decline keeps square text", decline, ErrorKindDeclined, "Card verification code check failed."},
		{"invalid request is a decline", badRequest, ErrorKindDeclined, "Invalid source."},
		{"5xx is unknown", serverErr, ErrorKindUnknown, ""},
		{"auth failure never reached processing", authErr, ErrorKindUnavailable, ""},
		{"dial failure", dialErr, ErrorKindUnavailable, ""},
		{"deadline", context.DeadlineExceeded, ErrorKindUnknown, ""},
		{"opaque", errors.New("stream reset"), ErrorKindUnknown, ""},
	}
	for _, tc := range cases {
		got := classify(context.Background(), tc.err)
		if got.Kind != tc.wantKind {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.wantKind, got.Kind)
		}
		if tc.wantDetail != "" && got.Detail != tc.wantDetail {
			t.Fatalf("%s: expected detail %q, got %q", tc.name, tc.wantDetail, got.Detail)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: cause should be preserved", tc.name)
		}
	}
}

func TestClassifyExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if got := classify(ctx, errors.New("read: connection reset")); got.Kind != ErrorKindUnknown {
		t.Fatalf("expected unknown when the call context expired, got %s", got.Kind)
	}
}

func TestSquareGatewayRefund(t *testing.T) {
	status := "PENDING"
	stub := &stubSquare{refund: &sq.PaymentRefund{ID: "ref_1", Status: &status}}
	gw, _ := NewSquareGateway(stub)
	res, err := gw.Refund(context.Background(), RefundRequest{ExternalPaymentID: "pay_1", AmountCents: 500, Currency: "USD", IdempotencyKey: "refund-1"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.ExternalRefundID != "ref_1" || res.Status != "PENDING" {
		t.Fatalf("unexpected refund result %+v", res)
	}
	if stub.lastRefnd.PaymentID != "pay_1" || stub.lastRefnd.AmountCents != 500 {
		t.Fatalf("refund params not forwarded: %+v", stub.lastRefnd)
	}
}

func TestFakeGateway(t *testing.T) {
	fake := NewFakeGateway()
	fake.FailNextCharge(&GatewayError{Kind: ErrorKindDeclined, Detail: "Card declined."})

	if _, err := fake.Charge(context.Background(), ChargeRequest{AmountCents: 100}); AsGatewayError(err).Detail != "Card declined." {
		t.Fatalf("expected queued decline, got %v", err)
	}
	res, err := fake.Charge(context.Background(), ChargeRequest{AmountCents: 100, ReferenceID: "s-1"})
	if err != nil {
		t.Fatalf("second charge should succeed: %v", err)
	}
	status, err := fake.GetPayment(context.Background(), res.ExternalPaymentID)
	if err != nil || !status.Succeeded() || status.ReferenceID != "s-1" {
		t.Fatalf("unexpected payment lookup %+v %v", status, err)
	}
	if len(fake.Charges) != 2 {
		t.Fatalf("expected both charges recorded, got %d", len(fake.Charges))
	}
}

func TestDisabledGateway(t *testing.T) {
	_, err := Disabled{}.Charge(context.Background(), ChargeRequest{})
	if AsGatewayError(err).Kind != ErrorKindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestFromConfigWithoutTokenDisablesCards(t *testing.T) {
	gateway, err := FromConfig(context.Background(), config.SquareConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = gateway.Charge(context.Background(), ChargeRequest{})
	gwErr := AsGatewayError(err)
	if gwErr == nil || gwErr.Kind != ErrorKindUnavailable {
		t.Fatalf("expected unavailable gateway error, got %v", err)
	}
}
