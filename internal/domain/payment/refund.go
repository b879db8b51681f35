package payment

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus is the outcome of a refund attempt.
type RefundStatus string

const (
	RefundCompleted RefundStatus = "COMPLETED"
	RefundFailed    RefundStatus = "FAILED"
)

// Refund is owned by exactly one Payment. PaymentID is a lookup back-reference only.
type Refund struct {
	ID              string
	PaymentID       string
	Amount          int64
	Reason          string
	Status          RefundStatus
	GatewayRefundID string
	IdempotencyKey  string
	CreatedAt       time.Time
}

func newRefund(paymentID string, amount int64, t Transition, status RefundStatus, now time.Time) Refund {
	return Refund{
		ID:              "ref_" + uuid.NewString(),
		PaymentID:       paymentID,
		Amount:          amount,
		Reason:          t.Reason,
		Status:          status,
		GatewayRefundID: t.Reference,
		IdempotencyKey:  t.IdempotencyKey,
		CreatedAt:       now,
	}
}
