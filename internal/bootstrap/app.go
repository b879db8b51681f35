package bootstrap

import (
	"context"
	"fmt"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/infrastructure/boltstore"
	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/internal/infrastructure/gateway"
	"github.com/cassiomorais/paysecure/internal/infrastructure/memory"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	"github.com/cassiomorais/paysecure/internal/infrastructure/orders"
	"github.com/cassiomorais/paysecure/internal/infrastructure/postgres"
	infraRedis "github.com/cassiomorais/paysecure/internal/infrastructure/redis"
	"github.com/cassiomorais/paysecure/internal/service"
	"github.com/cassiomorais/paysecure/internal/webhook"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies shared by the binaries.
// Pool is nil unless store.driver=postgres; Redis is nil unless redis.enabled.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Store   payment.Store
	Pool    *pgxpool.Pool
	Redis   *redis.Client

	tracer  *sdktrace.TracerProvider
	closers []func()
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	obs := cfg.Observability
	logger := observability.InitLogger(obs.LogLevel, observability.LogOutput(observability.FileOptions{
		Path:       obs.LogFile,
		MaxSizeMB:  obs.LogMaxSizeMB,
		MaxBackups: obs.LogMaxBackups,
		MaxAgeDays: obs.LogMaxAgeDays,
	})).With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if obs.EnableTracing {
		tp, err := observability.InitTracer(serviceName, obs.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)

	if err := app.openStore(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Redis.Enabled {
		client, err := infraRedis.NewClient(ctx, &cfg.Redis, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.Redis = client
		app.closers = append(app.closers, func() { client.Close() })
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Connected to Redis")
	}

	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, &a.Config.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.Pool = pool
		a.Store = postgres.NewPaymentStore(pool)
		a.closers = append(a.closers, pool.Close)
		a.Logger.Info().Msg("Connected to PostgreSQL")
	case config.StoreBolt:
		store, err := boltstore.Open(a.Config.Store.BoltPath)
		if err != nil {
			return fmt.Errorf("open bolt store: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, func() { store.Close() })
		a.Logger.Info().Str("path", a.Config.Store.BoltPath).Msg("Opened bolt store")
	default:
		a.Store = memory.NewPaymentStore()
		a.Logger.Warn().Msg("Using in-memory payment store; payments are lost on restart")
	}
	return nil
}

// Gateway builds the configured gateway client with its idempotency and
// resilience layers.
func (a *App) Gateway() (gateway.Client, error) {
	return gateway.New(a.Config.Gateway, a.Metrics)
}

// PaymentService wires the payment service over the store and gw.
func (a *App) PaymentService(gw gateway.Client) *service.PaymentService {
	return service.NewPaymentService(a.Store, gw, a.Config.Gateway.CallbackURL, a.Metrics, a.Logger)
}

// Notifier builds the order notifier for orders.mode. In stream mode updates are
// queued on Redis for the worker.
func (a *App) Notifier() (order.Notifier, error) {
	var publisher orders.Publisher
	if a.Redis != nil {
		publisher = infraRedis.NewStreamProducer(a.Redis)
	}
	return orders.New(a.Config.Orders, publisher, a.Logger)
}

// Dispatcher builds the webhook dispatcher. Delivery dedupe is shared through
// Redis when it is enabled and process-local otherwise.
func (a *App) Dispatcher(notifier order.Notifier) *webhook.Dispatcher {
	wc := a.Config.Webhook
	verifier := webhook.NewVerifier(wc.Secret,
		webhook.WithHeader(wc.SignatureHeader),
		webhook.WithEncoding(webhook.Encoding(wc.SignatureEncoding)),
		webhook.WithInsecureSkipVerification(wc.InsecureSkipVerification),
	)
	if verifier.Bypassed() {
		a.Logger.Warn().Msg("Webhook signature verification is DISABLED")
	} else if wc.Secret == "" {
		a.Logger.Warn().Msg("No webhook secret configured; every delivery will be rejected")
	}

	var deduper webhook.Deduper
	if a.Redis != nil {
		deduper = infraRedis.NewDeduper(a.Redis, wc.DedupeTTL)
	} else {
		deduper = webhook.NewMemoryDeduper(wc.DedupeTTL)
	}

	return webhook.NewDispatcher(verifier, a.Store, notifier, deduper, webhook.DispatcherConfig{
		NotifyWait:    wc.NotifyWait,
		NotifyTimeout: wc.NotifyTimeout,
	}, a.Metrics, a.Logger)
}

// Close releases resources in reverse order of acquisition and flushes traces.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if err := observability.ShutdownTracer(a.tracer); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to flush traces")
	}
}
