package orders

import (
	"context"

	"github.com/cassiomorais/paysecure/internal/domain/order"
)

// Publisher appends order updates to a durable queue.
type Publisher interface {
	PublishOrderUpdate(ctx context.Context, update order.StatusUpdate) (string, error)
}

// StreamNotifier queues updates for the worker, which delivers them over HTTP.
type StreamNotifier struct {
	publisher Publisher
}

func NewStreamNotifier(p Publisher) *StreamNotifier {
	return &StreamNotifier{publisher: p}
}

func (n *StreamNotifier) UpdateOrderStatus(ctx context.Context, update order.StatusUpdate) error {
	_, err := n.publisher.PublishOrderUpdate(ctx, update)
	return err
}
