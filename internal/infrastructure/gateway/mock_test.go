package gateway

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_Lifecycle(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	created, err := g.CreatePayment(ctx, CreatePaymentParams{IdempotencyKey: "k1", OrderID: "o1", Amount: 4999, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)
	assert.Contains(t, created.ApprovalURL, "/approve/"+created.GatewayPaymentID)

	_, err = g.Approve(created.GatewayPaymentID)
	require.NoError(t, err)

	captured, err := g.Capture(ctx, CaptureParams{IdempotencyKey: "k2", GatewayPaymentID: created.GatewayPaymentID, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, int64(4999), captured.CapturedAmount)

	r1, err := g.Refund(ctx, RefundParams{IdempotencyKey: "k3", GatewayPaymentID: created.GatewayPaymentID, Amount: 2000, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, RefundCompleted, r1.Status)

	_, err = g.Refund(ctx, RefundParams{IdempotencyKey: "k4", GatewayPaymentID: created.GatewayPaymentID, Amount: 2999, Currency: "USD"})
	require.NoError(t, err)

	status, err := g.GetStatus(ctx, GetStatusParams{GatewayPaymentID: created.GatewayPaymentID})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, status.Status)
}

func TestMockGateway_ReplaysIdempotencyKey(t *testing.T) {
	g := NewMockGateway()
	ctx := context.Background()

	first, err := g.CreatePayment(ctx, CreatePaymentParams{IdempotencyKey: "same", OrderID: "o1", Amount: 100, Currency: "USD"})
	require.NoError(t, err)
	second, err := g.CreatePayment(ctx, CreatePaymentParams{IdempotencyKey: "same", OrderID: "o1", Amount: 100, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, first.GatewayPaymentID, second.GatewayPaymentID)
}

func TestMockGateway_RejectsIllegalOperations(t *testing.T) {
	g := NewMockGateway(WithAutoApprove(true))
	ctx := context.Background()

	created, err := g.CreatePayment(ctx, CreatePaymentParams{IdempotencyKey: "k1", OrderID: "o1", Amount: 100, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, created.Status)

	_, err = g.Refund(ctx, RefundParams{IdempotencyKey: "k2", GatewayPaymentID: created.GatewayPaymentID, Amount: 10, Currency: "USD"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected))

	_, err = g.Cancel(ctx, CancelParams{IdempotencyKey: "k3", GatewayPaymentID: created.GatewayPaymentID})
	require.NoError(t, err)

	_, err = g.Capture(ctx, CaptureParams{IdempotencyKey: "k4", GatewayPaymentID: created.GatewayPaymentID})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected))

	_, err = g.Approve(created.GatewayPaymentID)
	assert.Error(t, err)
}

func TestMockGateway_FailureAndTimeoutRates(t *testing.T) {
	ctx := context.Background()

	_, err := NewMockGateway(WithFailureRate(1.0)).GetStatus(ctx, GetStatusParams{GatewayPaymentID: "x"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayNetwork))

	_, err = NewMockGateway(WithTimeoutRate(1.0)).GetStatus(ctx, GetStatusParams{GatewayPaymentID: "x"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayTimeout))
}

func TestMockGateway_LatencyHonorsContext(t *testing.T) {
	g := NewMockGateway(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.GetStatus(ctx, GetStatusParams{GatewayPaymentID: "x"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayTimeout))
}
