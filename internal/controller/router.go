package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/paysecure/internal/middleware"
	"github.com/cassiomorais/paysecure/internal/service"
	"github.com/cassiomorais/paysecure/internal/webhook"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type RouterDeps struct {
	PaymentService *service.PaymentService
	Dispatcher     *webhook.Dispatcher
	HealthChecks   []HealthCheck
	Metrics        *observability.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
	CORSConfig     config.CORSConfig
	JWTSecret      string
	RateLimit      int
	RequestTimeout time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 60 * time.Second
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(deps.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-ID"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Tracing("paysecure-api"))
	r.Use(chimw.Timeout(deps.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-Idempotency-Replayed"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks...)
	paymentH := NewPaymentController(deps.PaymentService)
	webhookH := NewWebhookController(deps.Dispatcher)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway deliveries authenticate by signature, not by merchant token.
		r.Post("/webhooks/payment", webhookH.Receive)

		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireAuth(deps.JWTSecret))
			r.Use(customMW.RateLimit(deps.RateLimit))

			r.Post("/payments", paymentH.CreatePayment)
			r.Get("/payments", paymentH.ListPayments)
			r.Get("/payments/{id}", paymentH.GetPayment)
			r.Post("/payments/{id}/authorize", paymentH.Authorize)
			r.Post("/payments/{id}/refresh", paymentH.RefreshStatus)
			r.Post("/payments/{id}/capture", paymentH.Capture)
			r.Post("/payments/{id}/refund", paymentH.Refund)
			r.Get("/payments/{id}/refunds", paymentH.ListRefunds)
			r.Post("/payments/{id}/cancel", paymentH.Cancel)
		})
	})

	return r
}
