package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paysecure/internal/bootstrap"
	"github.com/cassiomorais/paysecure/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "paysecure-api", "paysecure")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Collaborators ---
	gw, err := app.Gateway()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build gateway client")
	}
	notifier, err := app.Notifier()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build order notifier")
	}
	paymentService := app.PaymentService(gw)
	dispatcher := app.Dispatcher(notifier)

	var checks []controller.HealthCheck
	if app.Pool != nil {
		checks = append(checks, controller.HealthCheck{Name: "database", Ping: app.Pool.Ping})
	}
	if app.Redis != nil {
		checks = append(checks, controller.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}})
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		PaymentService: paymentService,
		Dispatcher:     dispatcher,
		HealthChecks:   checks,
		Metrics:        app.Metrics,
		Logger:         app.Logger,
		CORSConfig:     app.Config.Server.CORS,
		JWTSecret:      app.Config.Auth.JWTSecret,
		RateLimit:      app.Config.RateLimit.RequestsPerMinute,
		RequestTimeout: app.Config.Server.WriteTimeout,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().
			Str("addr", addr).
			Str("store", app.Config.Store.Driver).
			Str("gateway", app.Config.Gateway.Mode).
			Str("orders", app.Config.Orders.Mode).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	// order notifications handed off to the background finish before exit
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		app.Logger.Warn().Err(err).Msg("Pending order notifications abandoned")
	}
	app.Logger.Info().Msg("Server exited")
}
