package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const updatePath = "/updateOrderStatus"

// HTTPNotifier posts order status updates to the order-management API, retrying
// transient failures with backoff. A 4xx answer is final.
type HTTPNotifier struct {
	url    string
	apiKey string
	client *http.Client
	retry  retry.Config
	logger zerolog.Logger
}

func NewHTTPNotifier(baseURL, apiKey string, timeout time.Duration, rc retry.Config, logger zerolog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{
		url:    strings.TrimRight(baseURL, "/") + updatePath,
		apiKey: apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry:  rc,
		logger: logger,
	}
}

func (n *HTTPNotifier) UpdateOrderStatus(ctx context.Context, update order.StatusUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal order update: %w", err)
	}

	rc := n.retry
	rc.OnRetry = func(attempt uint, err error) {
		n.logger.Warn().Err(err).
			Uint("attempt", attempt+1).
			Str("order_id", update.OrderID).
			Msg("retrying order status update")
	}

	return retry.Do(ctx, rc, func() error {
		return n.post(ctx, body)
	})
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build order update request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post order update: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return retry.Unrecoverable(fmt.Errorf("order system rejected update: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("order system unavailable: status %d", resp.StatusCode)
	}
}
