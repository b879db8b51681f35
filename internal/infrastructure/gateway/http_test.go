package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHTTPClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "sk_test", time.Second)
}

func TestHTTPClient_CreatePayment(t *testing.T) {
	var gotBody map[string]any
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"gw_1","status":"PENDING","approval_url":"http://gw/approve/gw_1"}`))
	})

	res, err := client.CreatePayment(context.Background(), CreatePaymentParams{
		IdempotencyKey: "key-1", OrderID: "o1", Amount: 4999, Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "gw_1", res.GatewayPaymentID)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "http://gw/approve/gw_1", res.ApprovalURL)

	assert.Equal(t, "49.99", gotBody["amount"])
	assert.Equal(t, "o1", gotBody["orderId"])
}

func TestHTTPClient_StatusCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		code int
		kind domainErrors.GatewayErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, domainErrors.GatewayAuth},
		{"forbidden", http.StatusForbidden, domainErrors.GatewayAuth},
		{"bad request", http.StatusBadRequest, domainErrors.GatewayRejected},
		{"not found", http.StatusNotFound, domainErrors.GatewayRejected},
		{"server error", http.StatusInternalServerError, domainErrors.GatewayNetwork},
		{"bad gateway", http.StatusBadGateway, domainErrors.GatewayNetwork},
		{"gateway timeout", http.StatusGatewayTimeout, domainErrors.GatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(`{"error":"Payment cannot be captured"}`))
			})

			_, err := client.Capture(context.Background(), CaptureParams{
				IdempotencyKey: "k", GatewayPaymentID: "gw_1", Amount: 100, Currency: "USD",
			})
			require.Error(t, err)

			var ge *domainErrors.GatewayError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tt.kind, ge.Kind)
			assert.Equal(t, tt.code, ge.StatusCode)
			assert.Equal(t, "Payment cannot be captured", ge.Message)
		})
	}
}

func TestHTTPClient_StrictResponseMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"status":"PENDING"}`},
		{"unknown status", `{"id":"gw_1","status":"WEIRD"}`},
		{"not json", `<html>ok</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.CreatePayment(context.Background(), CreatePaymentParams{
				IdempotencyKey: "k", OrderID: "o1", Amount: 100, Currency: "USD",
			})
			assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected), "got %v", err)
		})
	}
}

func TestHTTPClient_GetStatus(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/gw_1", r.URL.Path)
		assert.Empty(t, r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"id":"gw_1","status":"CAPTURED","amount":"49.99","captured_amount":49.99,"currency":"USD"}`))
	})

	res, err := client.GetStatus(context.Background(), GetStatusParams{GatewayPaymentID: "gw_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, res.Status)
	assert.Equal(t, int64(4999), res.Amount)
	assert.Equal(t, int64(4999), res.CapturedAmount)
}

func TestHTTPClient_GetStatus_RejectsExtraPrecision(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"gw_1","status":"PENDING","amount":"49.999","currency":"USD"}`))
	})

	_, err := client.GetStatus(context.Background(), GetStatusParams{GatewayPaymentID: "gw_1"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected))
}

func TestHTTPClient_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		body string
		call func(c *HTTPClient) error
	}{
		{
			name: "capture reports zero",
			body: `{"status":"CAPTURED","amount":"0"}`,
			call: func(c *HTTPClient) error {
				_, err := c.Capture(ctx, CaptureParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1", Amount: 1000, Currency: "USD"})
				return err
			},
		},
		{
			name: "capture reports negative",
			body: `{"status":"CAPTURED","amount":"-10.00"}`,
			call: func(c *HTTPClient) error {
				_, err := c.Capture(ctx, CaptureParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1", Amount: 1000, Currency: "USD"})
				return err
			},
		},
		{
			name: "refund reports zero",
			body: `{"id":"r1","status":"COMPLETED","amount":"0"}`,
			call: func(c *HTTPClient) error {
				_, err := c.Refund(ctx, RefundParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1", Amount: 1000, Currency: "USD"})
				return err
			},
		},
		{
			name: "refund missing amount",
			body: `{"id":"r1","status":"COMPLETED"}`,
			call: func(c *HTTPClient) error {
				_, err := c.Refund(ctx, RefundParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1", Amount: 1000, Currency: "USD"})
				return err
			},
		},
		{
			name: "captured status without captured_amount",
			body: `{"id":"gw_1","status":"CAPTURED","amount":"49.99","currency":"USD"}`,
			call: func(c *HTTPClient) error {
				_, err := c.GetStatus(ctx, GetStatusParams{GatewayPaymentID: "gw_1"})
				return err
			},
		},
		{
			name: "refunded status with zero captured_amount",
			body: `{"id":"gw_1","status":"REFUNDED","amount":"49.99","captured_amount":"0","currency":"USD"}`,
			call: func(c *HTTPClient) error {
				_, err := c.GetStatus(ctx, GetStatusParams{GatewayPaymentID: "gw_1"})
				return err
			},
		},
		{
			name: "status with zero amount",
			body: `{"id":"gw_1","status":"PENDING","amount":"0","currency":"USD"}`,
			call: func(c *HTTPClient) error {
				_, err := c.GetStatus(ctx, GetStatusParams{GatewayPaymentID: "gw_1"})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			err := tt.call(client)
			assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected), "got %v", err)
		})
	}
}

func TestHTTPClient_GetStatus_PendingWithoutCapturedAmount(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"gw_1","status":"AUTHORIZED","amount":"49.99","currency":"USD"}`))
	})

	res, err := client.GetStatus(context.Background(), GetStatusParams{GatewayPaymentID: "gw_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusAuthorized, res.Status)
	assert.Zero(t, res.CapturedAmount)
}

func TestHTTPClient_Refund(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/gw_1/refund", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "20", body["amount"])
		assert.Equal(t, "duplicate", body["reason"])
		_, _ = w.Write([]byte(`{"id":"refund_1","status":"COMPLETED","amount":20}`))
	})

	res, err := client.Refund(context.Background(), RefundParams{
		IdempotencyKey: "k", GatewayPaymentID: "gw_1", Amount: 2000, Currency: "USD", Reason: "duplicate",
	})
	require.NoError(t, err)
	assert.Equal(t, "refund_1", res.RefundID)
	assert.Equal(t, RefundCompleted, res.Status)
	assert.Equal(t, int64(2000), res.Amount)
}

func TestHTTPClient_Cancel(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/gw_1/cancel", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"gw_1","status":"CANCELLED"}`))
	})

	res, err := client.Cancel(context.Background(), CancelParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
}

func TestHTTPClient_Timeout(t *testing.T) {
	client := setupHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client.client.Timeout = 20 * time.Millisecond

	_, err := client.Cancel(context.Background(), CancelParams{IdempotencyKey: "k", GatewayPaymentID: "gw_1"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayTimeout), "got %v", err)
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewHTTPClient(srv.URL, "sk", time.Second)

	_, err := client.GetStatus(context.Background(), GetStatusParams{GatewayPaymentID: "gw_1"})
	assert.True(t, domainErrors.IsGatewayKind(err, domainErrors.GatewayNetwork), "got %v", err)
}
