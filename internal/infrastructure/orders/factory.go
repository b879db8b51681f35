package orders

import (
	"fmt"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/pkg/retry"
	"github.com/rs/zerolog"
)

// New builds the notifier selected by cfg.Mode. publisher is required for stream mode.
func New(cfg config.OrdersConfig, publisher Publisher, logger zerolog.Logger) (order.Notifier, error) {
	switch cfg.Mode {
	case config.OrdersHTTP:
		return NewHTTPNotifier(cfg.BaseURL, cfg.APIKey, cfg.Timeout, RetryConfig(cfg), logger), nil
	case config.OrdersStream:
		if publisher == nil {
			return nil, fmt.Errorf("orders.mode=stream requires redis")
		}
		return NewStreamNotifier(publisher), nil
	case config.OrdersLog, "":
		return NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown orders mode %q", cfg.Mode)
	}
}

// RetryConfig derives the delivery retry policy from cfg.
func RetryConfig(cfg config.OrdersConfig) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		rc.InitialDelay = cfg.RetryDelay
	}
	return rc
}
