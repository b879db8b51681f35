package main

import (
	"context"
	"time"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paysecure/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type streamConsumer interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
	DeliveryCount(ctx context.Context, messageID string) (int64, error)
}

type deadLetterQueue interface {
	PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error
}

type paymentLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// notificationWorker delivers queued order updates. A message stays pending until
// it is delivered, and is dead-lettered once it has been tried maxDeliveries times.
type notificationWorker struct {
	consumer      streamConsumer
	dlq           deadLetterQueue
	deliverer     order.Notifier
	lock          func(paymentID string) paymentLock
	maxDeliveries int64
	claimAfter    time.Duration
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

func (w *notificationWorker) Run(ctx context.Context) error {
	lastClaim := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := w.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Failed to read from stream")
			sleep(ctx, time.Second)
			continue
		}

		// pick up messages a crashed or failing consumer left behind
		if time.Since(lastClaim) >= w.claimAfter {
			lastClaim = time.Now()
			stale, err := w.consumer.ClaimStale(ctx, w.claimAfter)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to claim stale messages")
			}
			msgs = append(msgs, stale...)
		}

		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

// handle processes one message. It returns the recorded status for tests.
func (w *notificationWorker) handle(ctx context.Context, msg redis.XMessage) string {
	start := time.Now()
	status := w.process(ctx, msg)
	if w.metrics != nil {
		w.metrics.WorkerMessagesProcessed.WithLabelValues(w.consumer.Stream(), status).Inc()
		w.metrics.WorkerProcessingDuration.WithLabelValues(w.consumer.Stream()).Observe(time.Since(start).Seconds())
	}
	return status
}

func (w *notificationWorker) process(ctx context.Context, msg redis.XMessage) string {
	log := w.logger.With().Str("message_id", msg.ID).Logger()

	update, err := infraRedis.DecodeOrderUpdate(msg)
	if err != nil {
		log.Error().Err(err).Msg("Malformed order update")
		w.deadLetter(ctx, msg, "malformed: "+err.Error(), log)
		return "dead_lettered"
	}
	log = log.With().Str("payment_id", update.PaymentID).Str("order_id", update.OrderID).Logger()

	lock := w.lock(update.PaymentID)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		// another worker is delivering an update for this payment; retried via ClaimStale
		log.Debug().Err(err).Msg("Payment locked, deferring")
		return "deferred"
	}
	err = w.deliverer.UpdateOrderStatus(ctx, update)
	if rerr := lock.Release(ctx); rerr != nil {
		log.Warn().Err(rerr).Msg("Failed to release payment lock")
	}

	if err == nil {
		if err := w.consumer.Ack(ctx, msg.ID); err != nil {
			log.Error().Err(err).Msg("Failed to ack delivered message")
		}
		log.Info().Str("status", string(update.Status)).Msg("Order status delivered")
		return "success"
	}

	deliveries, cerr := w.consumer.DeliveryCount(ctx, msg.ID)
	if cerr != nil {
		log.Error().Err(cerr).Msg("Failed to read delivery count")
	}
	if cerr == nil && w.maxDeliveries > 0 && deliveries >= w.maxDeliveries {
		log.Error().Err(err).Int64("deliveries", deliveries).Msg("Order update exhausted its deliveries")
		w.deadLetter(ctx, msg, err.Error(), log)
		return "dead_lettered"
	}

	log.Warn().Err(err).Int64("deliveries", deliveries).Msg("Order update delivery failed, will retry")
	return "retry"
}

func (w *notificationWorker) deadLetter(ctx context.Context, msg redis.XMessage, reason string, log zerolog.Logger) {
	if err := w.dlq.PublishToDLQ(ctx, msg, reason); err != nil {
		// leave it pending rather than lose it
		log.Error().Err(err).Msg("Failed to dead-letter message")
		return
	}
	if err := w.consumer.Ack(ctx, msg.ID); err != nil {
		log.Error().Err(err).Msg("Failed to ack dead-lettered message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
