package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/infrastructure/config"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedClient_BreakerOpensOnNetworkFailures(t *testing.T) {
	stub := &stubClient{
		statusFn: func(ctx context.Context, p GetStatusParams) (*StatusResult, error) {
			return nil, domainErrors.NewGatewayError(domainErrors.GatewayNetwork, "connection refused")
		},
	}
	g := newGuardedClient(stub, time.Second, BreakerSettings{Threshold: 3, Timeout: time.Minute}, observability.NewTestMetrics())

	for i := 0; i < 3; i++ {
		_, err := g.GetStatus(context.Background(), GetStatusParams{GatewayPaymentID: "gw_1"})
		require.Error(t, err)
	}

	_, err := g.GetStatus(context.Background(), GetStatusParams{GatewayPaymentID: "gw_1"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayNetwork))
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(3), stub.calls.Load())
}

func TestGuardedClient_RejectionsDoNotTripBreaker(t *testing.T) {
	stub := &stubClient{
		captureFn: func(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
			return nil, rejected("Payment cannot be captured")
		},
	}
	g := newGuardedClient(stub, time.Second, BreakerSettings{Threshold: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Capture(context.Background(), CaptureParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1"})
		assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected))
	}
	assert.Equal(t, int32(5), stub.calls.Load())
}

func TestGuardedClient_DeadlineBecomesTimeout(t *testing.T) {
	stub := &stubClient{
		cancelFn: func(ctx context.Context, p CancelParams) (*CancelResult, error) {
			<-ctx.Done()
			return nil, domainErrors.NewGatewayError(domainErrors.GatewayNetwork, ctx.Err().Error())
		},
	}
	g := newGuardedClient(stub, 20*time.Millisecond, BreakerSettings{}, nil)

	_, err := g.Cancel(context.Background(), CancelParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayTimeout), "got %v", err)
}

func TestNormalize(t *testing.T) {
	ctx := context.Background()

	err := normalize(ctx, errors.New("dial tcp: refused"))
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayNetwork))

	err = normalize(ctx, context.DeadlineExceeded)
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayTimeout))

	err = normalize(ctx, rejected("nope"))
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected))
}

func TestWrap_LayersIdempotencyOverGuard(t *testing.T) {
	g := NewMockGateway()
	client := Wrap(g, testGatewayConfig(), observability.NewTestMetrics())

	p := CreatePaymentParams{IdempotencyKey: "k", OrderID: "o1", Amount: 100, Currency: "USD"}
	first, err := client.CreatePayment(context.Background(), p)
	require.NoError(t, err)

	p.Amount = 200
	_, err = client.CreatePayment(context.Background(), p)
	assert.True(t, IsKeyReuse(err))

	_, ok := g.Lookup(first.GatewayPaymentID)
	assert.True(t, ok)
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Mode:                    config.GatewayMock,
		Timeout:                 time.Second,
		CompletedKeyTTL:         time.Hour,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   time.Minute,
	}
}
