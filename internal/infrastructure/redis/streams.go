package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/redis/go-redis/v9"
)

const (
	OrderNotificationStream = "orders:notifications"
	OrderDLQStream          = "orders:dlq"
)

type StreamProducer struct {
	client redis.UniversalClient
}

func NewStreamProducer(client redis.UniversalClient) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishOrderUpdate appends an order status change to the notification stream.
func (p *StreamProducer) PublishOrderUpdate(ctx context.Context, update order.StatusUpdate) (string, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order update: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: OrderNotificationStream,
		Values: map[string]any{
			"payment_id": update.PaymentID,
			"order_id":   update.OrderID,
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish order update: %w", err)
	}
	return id, nil
}

// PublishToDLQ parks a message that exhausted its deliveries.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	values := map[string]any{
		"original_id": msg.ID,
		"reason":      reason,
		"timestamp":   time.Now().Unix(),
	}
	for k, v := range msg.Values {
		values[k] = v
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: OrderDLQStream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// DecodeOrderUpdate extracts the order update carried by a stream message.
func DecodeOrderUpdate(msg redis.XMessage) (order.StatusUpdate, error) {
	var update order.StatusUpdate
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return update, errors.New("message has no payload")
	}
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		return update, fmt.Errorf("decode order update: %w", err)
	}
	return update, nil
}

type StreamConsumer struct {
	client        redis.UniversalClient
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.UniversalClient,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string { return c.stream }

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns new messages for this consumer, or nil when the block times out.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer left pending for longer than minIdle.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return messages, nil
}

// DeliveryCount reports how many times messageID has been delivered to the group.
func (c *StreamConsumer) DeliveryCount(ctx context.Context, messageID string) (int64, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to inspect pending message: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[0].RetryCount, nil
}
