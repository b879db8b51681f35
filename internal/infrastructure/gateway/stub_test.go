package gateway

import (
	"context"
	"sync/atomic"
)

// stubClient counts calls and answers with whatever its funcs return.
type stubClient struct {
	calls atomic.Int32

	createFn  func(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error)
	statusFn  func(ctx context.Context, p GetStatusParams) (*StatusResult, error)
	captureFn func(ctx context.Context, p CaptureParams) (*CaptureResult, error)
	refundFn  func(ctx context.Context, p RefundParams) (*RefundResult, error)
	cancelFn  func(ctx context.Context, p CancelParams) (*CancelResult, error)
}

func (s *stubClient) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	s.calls.Add(1)
	if s.createFn != nil {
		return s.createFn(ctx, p)
	}
	return &CreatePaymentResult{GatewayPaymentID: "gw_" + p.IdempotencyKey, Status: StatusPending}, nil
}

func (s *stubClient) GetStatus(ctx context.Context, p GetStatusParams) (*StatusResult, error) {
	s.calls.Add(1)
	if s.statusFn != nil {
		return s.statusFn(ctx, p)
	}
	return &StatusResult{GatewayPaymentID: p.GatewayPaymentID, Status: StatusPending}, nil
}

func (s *stubClient) Capture(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
	s.calls.Add(1)
	if s.captureFn != nil {
		return s.captureFn(ctx, p)
	}
	return &CaptureResult{GatewayPaymentID: p.GatewayPaymentID, Status: StatusCaptured, CapturedAmount: p.Amount}, nil
}

func (s *stubClient) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	s.calls.Add(1)
	if s.refundFn != nil {
		return s.refundFn(ctx, p)
	}
	return &RefundResult{RefundID: "ref_" + p.IdempotencyKey, Status: RefundCompleted, Amount: p.Amount}, nil
}

func (s *stubClient) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	s.calls.Add(1)
	if s.cancelFn != nil {
		return s.cancelFn(ctx, p)
	}
	return &CancelResult{GatewayPaymentID: p.GatewayPaymentID, Status: StatusCancelled}, nil
}
