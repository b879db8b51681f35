package gateway

import (
	"context"
)

// Status is the payment status as reported by the gateway.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusRefunded   Status = "REFUNDED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"

	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusAuthorized, StatusCaptured, StatusPartiallyRefunded,
		StatusRefunded, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// settled reports whether funds have been captured in this status.
func (s Status) settled() bool {
	return s == StatusCaptured || s == StatusPartiallyRefunded || s == StatusRefunded
}

// RefundStatus is the outcome of a refund as reported by the gateway.
type RefundStatus string

const (
	RefundCompleted RefundStatus = "COMPLETED"
	RefundPending   RefundStatus = "PENDING"
	RefundFailed    RefundStatus = "FAILED"
)

func (s RefundStatus) valid() bool {
	return s == RefundCompleted || s == RefundPending || s == RefundFailed
}

// Client is the outbound port to the payment gateway. Every method returns either a
// result or a *errors.GatewayError; amounts are minor units.
type Client interface {
	CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error)
	GetStatus(ctx context.Context, p GetStatusParams) (*StatusResult, error)
	Capture(ctx context.Context, p CaptureParams) (*CaptureResult, error)
	Refund(ctx context.Context, p RefundParams) (*RefundResult, error)
	Cancel(ctx context.Context, p CancelParams) (*CancelResult, error)
}

type CreatePaymentParams struct {
	IdempotencyKey string
	// Reference is our payment id; the gateway echoes it back in webhooks.
	Reference   string
	OrderID     string
	Amount      int64
	Currency    string
	CallbackURL string
}

type CreatePaymentResult struct {
	GatewayPaymentID string
	Status           Status
	ApprovalURL      string
}

type GetStatusParams struct {
	GatewayPaymentID string
}

type StatusResult struct {
	GatewayPaymentID string
	Status           Status
	Amount           int64
	CapturedAmount   int64
	Currency         string
}

type CaptureParams struct {
	IdempotencyKey   string
	GatewayPaymentID string
	Amount           int64
	Currency         string
}

type CaptureResult struct {
	GatewayPaymentID string
	Status           Status
	CapturedAmount   int64
}

type RefundParams struct {
	IdempotencyKey   string
	GatewayPaymentID string
	Amount           int64
	Currency         string
	Reason           string
}

type RefundResult struct {
	RefundID string
	Status   RefundStatus
	Amount   int64
}

type CancelParams struct {
	IdempotencyKey   string
	GatewayPaymentID string
}

type CancelResult struct {
	GatewayPaymentID string
	Status           Status
}
