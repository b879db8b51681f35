package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

// HTTPClient talks to the gateway's JSON API. Amounts travel as decimal major-unit strings.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for the gateway at baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// --- wire types ---

type createRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OrderID     string          `json:"orderId"`
	Reference   string          `json:"reference,omitempty"`
	CallbackURL string          `json:"callbackUrl,omitempty"`
}

type paymentResponse struct {
	ID             *string          `json:"id"`
	Status         *Status          `json:"status"`
	ApprovalURL    *string          `json:"approval_url"`
	Amount         *decimal.Decimal `json:"amount"`
	CapturedAmount *decimal.Decimal `json:"captured_amount"`
	Currency       *string          `json:"currency"`
}

type amountRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Reason   string          `json:"reason,omitempty"`
}

type refundResponse struct {
	ID     *string          `json:"id"`
	Status *RefundStatus    `json:"status"`
	Amount *decimal.Decimal `json:"amount"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *HTTPClient) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	var resp paymentResponse
	err := c.do(ctx, http.MethodPost, "/payments", p.IdempotencyKey, createRequest{
		Amount:      payment.ToMajorUnits(p.Amount, p.Currency),
		Currency:    p.Currency,
		OrderID:     p.OrderID,
		Reference:   p.Reference,
		CallbackURL: p.CallbackURL,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.ID == nil || *resp.ID == "" {
		return nil, malformed("create response missing id")
	}
	if resp.Status == nil || !resp.Status.valid() {
		return nil, malformed("create response missing or unknown status")
	}
	result := &CreatePaymentResult{GatewayPaymentID: *resp.ID, Status: *resp.Status}
	if resp.ApprovalURL != nil {
		result.ApprovalURL = *resp.ApprovalURL
	}
	return result, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, p GetStatusParams) (*StatusResult, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(p.GatewayPaymentID), "", nil, &resp); err != nil {
		return nil, err
	}

	if resp.ID == nil || resp.Status == nil || !resp.Status.valid() {
		return nil, malformed("status response missing id or status")
	}
	if resp.Currency == nil || !payment.IsSupportedCurrency(*resp.Currency) {
		return nil, malformed("status response missing or unsupported currency")
	}
	if resp.Amount == nil {
		return nil, malformed("status response missing amount")
	}

	amount, err := payment.FromMajorUnits(*resp.Amount, *resp.Currency)
	if err != nil {
		return nil, malformed("status response amount: " + err.Error())
	}
	if amount <= 0 {
		return nil, malformed("status response amount must be positive")
	}
	result := &StatusResult{
		GatewayPaymentID: *resp.ID,
		Status:           *resp.Status,
		Amount:           amount,
		Currency:         *resp.Currency,
	}
	if resp.CapturedAmount != nil {
		captured, err := payment.FromMajorUnits(*resp.CapturedAmount, *resp.Currency)
		if err != nil {
			return nil, malformed("status response captured_amount: " + err.Error())
		}
		if captured < 0 {
			return nil, malformed("status response captured_amount is negative")
		}
		result.CapturedAmount = captured
	}
	// a settled payment must say how much was captured
	if result.Status.settled() && result.CapturedAmount <= 0 {
		return nil, malformed("status response missing captured_amount for " + string(result.Status))
	}
	return result, nil
}

func (c *HTTPClient) Capture(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
	var resp paymentResponse
	path := "/payments/" + url.PathEscape(p.GatewayPaymentID) + "/capture"
	err := c.do(ctx, http.MethodPost, path, p.IdempotencyKey, amountRequest{
		Amount:   payment.ToMajorUnits(p.Amount, p.Currency),
		Currency: p.Currency,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Status == nil || *resp.Status != StatusCaptured {
		return nil, malformed("capture response missing or unexpected status")
	}
	if resp.Amount == nil {
		return nil, malformed("capture response missing amount")
	}
	captured, err := payment.FromMajorUnits(*resp.Amount, p.Currency)
	if err != nil {
		return nil, malformed("capture response amount: " + err.Error())
	}
	if captured <= 0 {
		return nil, malformed("capture response amount must be positive")
	}
	return &CaptureResult{GatewayPaymentID: p.GatewayPaymentID, Status: *resp.Status, CapturedAmount: captured}, nil
}

func (c *HTTPClient) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	var resp refundResponse
	path := "/payments/" + url.PathEscape(p.GatewayPaymentID) + "/refund"
	err := c.do(ctx, http.MethodPost, path, p.IdempotencyKey, amountRequest{
		Amount:   payment.ToMajorUnits(p.Amount, p.Currency),
		Currency: p.Currency,
		Reason:   p.Reason,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.ID == nil || *resp.ID == "" {
		return nil, malformed("refund response missing id")
	}
	if resp.Status == nil || !resp.Status.valid() {
		return nil, malformed("refund response missing or unknown status")
	}
	if resp.Amount == nil {
		return nil, malformed("refund response missing amount")
	}
	amount, err := payment.FromMajorUnits(*resp.Amount, p.Currency)
	if err != nil {
		return nil, malformed("refund response amount: " + err.Error())
	}
	if amount <= 0 {
		return nil, malformed("refund response amount must be positive")
	}
	return &RefundResult{RefundID: *resp.ID, Status: *resp.Status, Amount: amount}, nil
}

func (c *HTTPClient) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	var resp paymentResponse
	path := "/payments/" + url.PathEscape(p.GatewayPaymentID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, p.IdempotencyKey, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Status == nil || *resp.Status != StatusCancelled {
		return nil, malformed("cancel response missing or unexpected status")
	}
	return &CancelResult{GatewayPaymentID: p.GatewayPaymentID, Status: *resp.Status}, nil
}

// do performs one request. It never retries: retry policy belongs to the caller.
func (c *HTTPClient) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return domainErrors.NewGatewayError(domainErrors.GatewayRejected, "encode request: "+err.Error())
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domainErrors.NewGatewayError(domainErrors.GatewayNetwork, "build request: "+err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &domainErrors.GatewayError{
			Kind:       domainErrors.GatewayRejected,
			Message:    "malformed response body: " + err.Error(),
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

func statusError(code int, body []byte) *domainErrors.GatewayError {
	msg := http.StatusText(code)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil {
		if er.Error != "" {
			msg = er.Error
		} else if er.Message != "" {
			msg = er.Message
		}
	}

	kind := domainErrors.GatewayNetwork
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = domainErrors.GatewayAuth
	case code == http.StatusGatewayTimeout:
		kind = domainErrors.GatewayTimeout
	case code >= 400 && code < 500:
		kind = domainErrors.GatewayRejected
	}
	return &domainErrors.GatewayError{Kind: kind, Message: msg, StatusCode: code}
}

func classifyTransportError(err error) *domainErrors.GatewayError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domainErrors.NewGatewayError(domainErrors.GatewayTimeout, err.Error())
	}
	return domainErrors.NewGatewayError(domainErrors.GatewayNetwork, err.Error())
}

func malformed(msg string) *domainErrors.GatewayError {
	return domainErrors.NewGatewayError(domainErrors.GatewayRejected, fmt.Sprintf("malformed gateway response: %s", msg))
}
