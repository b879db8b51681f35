package orders

import (
	"context"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/rs/zerolog"
)

// LogNotifier only logs updates. Used in local development without an order system.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) UpdateOrderStatus(_ context.Context, update order.StatusUpdate) error {
	n.logger.Info().
		Str("order_id", update.OrderID).
		Str("order_status", string(update.Status)).
		Str("payment_id", update.PaymentID).
		Msg("order status update")
	return nil
}
