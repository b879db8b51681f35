package payment

import (
	"context"
	"time"
)

// Store defines the interface for payment persistence.
// All methods must be safe for concurrent use, and ApplyTransition must serialize
// transitions on the same payment id without blocking other ids.
type Store interface {
	// Create persists p unless a payment with the same idempotency key already exists,
	// in which case the existing payment is returned with created=false.
	Create(ctx context.Context, p *Payment) (stored *Payment, created bool, err error)

	// Get retrieves a payment by ID
	Get(ctx context.Context, id string) (*Payment, error)

	// GetByIdempotencyKey retrieves a payment by its create idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// ApplyTransition loads the payment under the per-id lock, applies t and persists the result.
	ApplyTransition(ctx context.Context, id string, t Transition) (*Payment, error)

	// SetGatewayReference records the gateway payment id and approval URL.
	SetGatewayReference(ctx context.Context, id, gatewayPaymentID, approvalURL string) (*Payment, error)

	// List lists payments with filters, newest first
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)
}

// ListFilter defines filters for listing payments
type ListFilter struct {
	Status        *Status
	OrderID       string
	CreatedBefore *time.Time
	Limit         int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Normalize clamps the limit into range.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

// Matches reports whether p satisfies the filter, ignoring the limit.
func (f ListFilter) Matches(p *Payment) bool {
	if f.Status != nil && p.Status != *f.Status {
		return false
	}
	if f.OrderID != "" && p.OrderID != f.OrderID {
		return false
	}
	if f.CreatedBefore != nil && !p.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}
