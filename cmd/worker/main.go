package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/paysecure/internal/bootstrap"
	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/internal/infrastructure/orders"
	infraRedis "github.com/cassiomorais/paysecure/internal/infrastructure/redis"
	"github.com/cassiomorais/paysecure/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paysecure-worker", "paysecure_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	runNotifications := app.Redis != nil
	// other drivers are process-local, so only the api process can see their payments
	runReconciler := app.Config.Store.Driver == config.StorePostgres && workerCfg.ReconcileInterval > 0
	if !runNotifications && !runReconciler {
		app.Logger.Fatal().Msg("Nothing to do: enable redis for order notifications or use the postgres store for reconciliation")
	}

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Order notification consumer (reads from Redis Streams).
	if runNotifications {
		consumer := infraRedis.NewStreamConsumer(
			app.Redis,
			infraRedis.OrderNotificationStream,
			workerCfg.ConsumerGroup,
			app.Config.InstanceID,
			workerCfg.BatchSize,
			workerCfg.BlockDuration,
		)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
		}

		w := &notificationWorker{
			consumer:      consumer,
			dlq:           infraRedis.NewStreamProducer(app.Redis),
			deliverer:     deliverer(app.Config.Orders, app.Logger),
			lock:          func(paymentID string) paymentLock { return infraRedis.NewPaymentLock(app.Redis, paymentID, workerCfg.LockTTL) },
			maxDeliveries: workerCfg.MaxDeliveries,
			claimAfter:    workerCfg.LockTTL,
			metrics:       app.Metrics,
			logger:        app.Logger.With().Str("stream", consumer.Stream()).Logger(),
		}
		app.Logger.Info().
			Str("stream", consumer.Stream()).
			Str("group", workerCfg.ConsumerGroup).
			Str("consumer", app.Config.InstanceID).
			Msg("Order notification worker started")
		g.Go(func() error { return w.Run(gCtx) })
	}

	// 2. Reconciler (brings stale PENDING/AUTHORIZED payments in line with the gateway).
	if runReconciler {
		gw, err := app.Gateway()
		if err != nil {
			app.Logger.Fatal().Err(err).Msg("Failed to build gateway client")
		}
		svc := app.PaymentService(gw)
		g.Go(func() error {
			return runReconcileLoop(gCtx, svc, workerCfg, app.Logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// deliverer is the final hop to the order-management system. Without a base URL
// updates are only logged.
func deliverer(cfg config.OrdersConfig, logger zerolog.Logger) order.Notifier {
	if cfg.BaseURL == "" {
		logger.Warn().Msg("orders.base_url not set; order updates will only be logged")
		return orders.NewLogNotifier(logger)
	}
	return orders.NewHTTPNotifier(cfg.BaseURL, cfg.APIKey, cfg.Timeout, orders.RetryConfig(cfg), logger)
}

func runReconcileLoop(ctx context.Context, svc *service.PaymentService, cfg config.WorkerConfig, logger zerolog.Logger) error {
	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", cfg.ReconcileInterval).Dur("min_age", cfg.ReconcileMinAge).Msg("Reconciler started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		changed, err := svc.ReconcileStale(ctx, time.Now().Add(-cfg.ReconcileMinAge), int(cfg.BatchSize))
		if err != nil {
			logger.Error().Err(err).Msg("Reconciliation pass failed")
			continue
		}
		if changed > 0 {
			logger.Info().Int("changed", changed).Msg("Reconciled stale payments")
		}
	}
}
