package service

import "github.com/cassiomorais/paysecure/internal/domain/payment"

// Controllers convert their HTTP DTOs to these types.

type CreatePaymentRequest struct {
	IdempotencyKey string
	OrderID        string
	Amount         int64 // minor units
	Currency       string
}

type CaptureRequest struct {
	// Amount is optional; zero captures the full amount.
	Amount int64
}

type RefundRequest struct {
	// Amount is optional; zero refunds the remaining captured amount.
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// CreatePaymentResponse reports whether the payment was created by this call
// or replayed from an earlier call with the same idempotency key.
type CreatePaymentResponse struct {
	Payment *payment.Payment
	Created bool
}

type RefundResponse struct {
	Payment *payment.Payment
	Refund  *payment.Refund
}
