package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/internal/infrastructure/gateway"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	"github.com/cassiomorais/paysecure/internal/webhook"
	"github.com/cassiomorais/paysecure/pkg/retry"
)

func main() {
	addr := flag.String("addr", ":9090", "Listen address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", "paysecure-mockgateway").Logger()

	if cfg.Webhook.Secret == "" {
		logger.Warn().Msg("webhook.secret not set; webhooks will be sent unsigned")
	}

	srv := &server{
		gw: gateway.NewMockGateway(
			gateway.WithLatency(cfg.Gateway.Mock.Latency),
			gateway.WithFailureRate(cfg.Gateway.Mock.FailureRate),
			gateway.WithTimeoutRate(cfg.Gateway.Mock.TimeoutRate),
			gateway.WithAutoApprove(cfg.Gateway.Mock.AutoApprove),
			gateway.WithApprovalBaseURL(cfg.Gateway.BaseURL),
		),
		apiKey: cfg.Gateway.APIKey,
		signer: signer{
			secret:   cfg.Webhook.Secret,
			header:   cfg.Webhook.SignatureHeader,
			encoding: webhook.Encoding(cfg.Webhook.SignatureEncoding),
		},
		client: &http.Client{Timeout: 10 * time.Second},
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		logger: logger,
	}

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      srv.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Msg("Mock gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Forced shutdown")
	}
	logger.Info().Msg("Mock gateway stopped")
}
