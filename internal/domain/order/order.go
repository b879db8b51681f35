package order

import "context"

// Status is the order status pushed to the order-management system.
type Status string

const (
	StatusPaid   Status = "PAID"
	StatusFailed Status = "FAILED"
)

// StatusUpdate is a single order status notification.
type StatusUpdate struct {
	OrderID   string `json:"orderId"`
	Status    Status `json:"status"`
	PaymentID string `json:"paymentId"`
}

// Notifier pushes order status changes to the order-management system.
type Notifier interface {
	UpdateOrderStatus(ctx context.Context, update StatusUpdate) error
}
