package gateway

import (
	"fmt"

	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
)

// New builds the gateway client selected by cfg.Mode, wrapped as
// idempotency -> breaker/timeout/metrics -> transport.
func New(cfg config.GatewayConfig, metrics *observability.Metrics) (Client, error) {
	var base Client
	switch cfg.Mode {
	case config.GatewayHTTP:
		base = NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	case config.GatewayMock:
		base = NewMockGateway(
			WithLatency(cfg.Mock.Latency),
			WithFailureRate(cfg.Mock.FailureRate),
			WithTimeoutRate(cfg.Mock.TimeoutRate),
			WithAutoApprove(cfg.Mock.AutoApprove),
			WithApprovalBaseURL(cfg.BaseURL),
		)
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Mode)
	}
	return Wrap(base, cfg, metrics), nil
}

// Wrap adds the idempotency and resilience layers around any Client.
func Wrap(base Client, cfg config.GatewayConfig, metrics *observability.Metrics) Client {
	guarded := newGuardedClient(base, cfg.Timeout, BreakerSettings{
		Name:      "gateway-" + cfg.Mode,
		Threshold: uint32(cfg.CircuitBreakerThreshold),
		Timeout:   cfg.CircuitBreakerTimeout,
	}, metrics)
	return NewIdempotentClient(guarded, cfg.CompletedKeyTTL)
}
