package payments

import (
	"context"
	"fmt"
	"sync"
)

// FakeGateway is an in-memory Gateway for tests and local development.
// Queue errors with FailNextCharge/FailNextRefund; successes are recorded.
type FakeGateway struct {
	mu          sync.Mutex
	chargeErrs  []error
	refundErrs  []error
	Charges     []ChargeRequest
	Refunds     []RefundRequest
	payments    map[string]PaymentStatus
	lookupErr   error
	OnCharge    func(ChargeRequest)
	OnRefund    func(RefundRequest)
	nextPayment int
}

// NewFakeGateway returns an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{payments: map[string]PaymentStatus{}}
}

// FailNextCharge makes the next Charge call return err.
func (f *FakeGateway) FailNextCharge(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeErrs = append(f.chargeErrs, err)
}

// FailNextRefund makes the next Refund call return err.
func (f *FakeGateway) FailNextRefund(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundErrs = append(f.refundErrs, err)
}

// SetPayment seeds the status returned by GetPayment.
func (f *FakeGateway) SetPayment(status PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[status.ID] = status
}

// FailLookups makes GetPayment return err until cleared with nil.
func (f *FakeGateway) FailLookups(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupErr = err
}

func (f *FakeGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if f.OnCharge != nil {
		f.OnCharge(req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Charges = append(f.Charges, req)
	if len(f.chargeErrs) > 0 {
		err := f.chargeErrs[0]
		f.chargeErrs = f.chargeErrs[1:]
		return nil, err
	}
	f.nextPayment++
	id := fmt.Sprintf("pay_%d", f.nextPayment)
	f.payments[id] = PaymentStatus{
		ID:            id,
		Status:        StatusCompleted,
		ReferenceID:   req.ReferenceID,
		ReceiptURL:    "https://squareup.test/receipt/" + id,
		ReceiptNumber: fmt.Sprintf("R%04d", f.nextPayment),
		AmountCents:   req.AmountCents,
	}
	return &ChargeResult{
		ExternalPaymentID: id,
		ReceiptURL:        f.payments[id].ReceiptURL,
		ReceiptNumber:     f.payments[id].ReceiptNumber,
		Status:            StatusCompleted,
	}, nil
}

func (f *FakeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if f.OnRefund != nil {
		f.OnRefund(req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Refunds = append(f.Refunds, req)
	if len(f.refundErrs) > 0 {
		err := f.refundErrs[0]
		f.refundErrs = f.refundErrs[1:]
		return nil, err
	}
	return &RefundResult{ExternalRefundID: fmt.Sprintf("ref_%d", len(f.Refunds)), Status: StatusCompleted}, nil
}

func (f *FakeGateway) GetPayment(ctx context.Context, externalPaymentID string) (*PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	status, ok := f.payments[externalPaymentID]
	if !ok {
		return nil, &GatewayError{Kind: ErrorKindDeclined, Detail: "payment not found"}
	}
	return &status, nil
}

// Disabled is used when no card processor is configured; every call reports unavailable.
type Disabled struct{}

func (Disabled) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, &GatewayError{Kind: ErrorKindUnavailable, Detail: "card payments are not configured"}
}

func (Disabled) Refund(context.Context, RefundRequest) (*RefundResult, error) {
	return nil, &GatewayError{Kind: ErrorKindUnavailable, Detail: "card payments are not configured"}
}

func (Disabled) GetPayment(context.Context, string) (*PaymentStatus, error) {
	return nil, &GatewayError{Kind: ErrorKindUnavailable, Detail: "card payments are not configured"}
}
