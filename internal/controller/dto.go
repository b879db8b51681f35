package controller

import (
	"time"

	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/webhook"
)

// --- Request DTOs ---
// Amounts are integer minor units (4999 = 49.99 USD). Controllers convert these
// to service layer DTOs before calling business logic.

// CreatePaymentRequest holds the input for creating a payment. The idempotency
// key travels in the Idempotency-Key header.
type CreatePaymentRequest struct {
	OrderID  string `json:"order_id" validate:"required,max=128"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"required,len=3,uppercase"`
}

// CaptureRequest holds the input for capturing a payment. A zero amount captures in full.
type CaptureRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

// RefundRequest holds the input for refunding a payment. A zero amount refunds
// the remaining captured amount.
type RefundRequest struct {
	Amount int64  `json:"amount" validate:"gte=0"`
	Reason string `json:"reason" validate:"max=256"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID               string           `json:"id"`
	OrderID          string           `json:"order_id"`
	Amount           int64            `json:"amount"`
	Currency         string           `json:"currency"`
	DisplayAmount    string           `json:"display_amount"`
	Status           string           `json:"status"`
	CapturedAmount   int64            `json:"captured_amount"`
	RefundedAmount   int64            `json:"refunded_amount"`
	IdempotencyKey   string           `json:"idempotency_key"`
	GatewayPaymentID string           `json:"gateway_payment_id,omitempty"`
	ApprovalURL      string           `json:"approval_url,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	Refunds          []RefundResponse `json:"refunds,omitempty"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	AuthorizedAt     *time.Time       `json:"authorized_at,omitempty"`
	CapturedAt       *time.Time       `json:"captured_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	FailedAt         *time.Time       `json:"failed_at,omitempty"`
}

// RefundResponse represents a refund record in API responses.
type RefundResponse struct {
	ID              string    `json:"id"`
	PaymentID       string    `json:"payment_id"`
	Amount          int64     `json:"amount"`
	DisplayAmount   string    `json:"display_amount"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	GatewayRefundID string    `json:"gateway_refund_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RefundResultResponse is returned by the refund endpoint.
type RefundResultResponse struct {
	Payment *PaymentResponse `json:"payment"`
	Refund  *RefundResponse  `json:"refund,omitempty"`
}

// ListPaymentsResponse wraps a page of payments.
type ListPaymentsResponse struct {
	Payments []*PaymentResponse `json:"payments"`
	Count    int                `json:"count"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Status        string `json:"status"`
	Event         string `json:"event,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// --- Conversion helpers ---

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		DisplayAmount:    payment.FormatAmount(p.Amount, p.Currency),
		Status:           string(p.Status),
		CapturedAmount:   p.CapturedAmount,
		RefundedAmount:   p.RefundedAmount,
		IdempotencyKey:   p.IdempotencyKey,
		GatewayPaymentID: p.GatewayPaymentID,
		ApprovalURL:      p.ApprovalURL,
		FailureReason:    p.FailureReason,
		Version:          p.Version,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		AuthorizedAt:     p.AuthorizedAt,
		CapturedAt:       p.CapturedAt,
		CancelledAt:      p.CancelledAt,
		FailedAt:         p.FailedAt,
	}
	for i := range p.Refunds {
		resp.Refunds = append(resp.Refunds, *FromRefund(&p.Refunds[i], p.Currency))
	}
	return resp
}

// FromRefund converts a refund record to API response.
func FromRefund(r *payment.Refund, currency string) *RefundResponse {
	return &RefundResponse{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		Amount:          r.Amount,
		DisplayAmount:   payment.FormatAmount(r.Amount, currency),
		Status:          string(r.Status),
		Reason:          r.Reason,
		GatewayRefundID: r.GatewayRefundID,
		CreatedAt:       r.CreatedAt,
	}
}

// FromWebhookResult converts a dispatch result to the acknowledgement body.
func FromWebhookResult(res *webhook.Result) *WebhookResponse {
	resp := &WebhookResponse{Status: string(res.Outcome), Event: res.Event}
	if res.Payment != nil {
		resp.PaymentID = res.Payment.ID
		resp.PaymentStatus = string(res.Payment.Status)
	}
	return resp
}
