package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/google/uuid"
)

// MockGateway is an in-process gateway with the same contract as HTTPClient.
// It keeps payments in memory and replays responses for repeated idempotency keys.
type MockGateway struct {
	failureRate     float64 // 0.0 to 1.0
	latency         time.Duration
	timeoutRate     float64 // 0.0 to 1.0
	autoApprove     bool
	approvalBaseURL string

	mu       sync.Mutex
	payments map[string]*MockPayment
	replays  map[string]any
}

// MockPayment is the gateway-side record kept by MockGateway.
type MockPayment struct {
	ID             string
	Reference      string
	OrderID        string
	Amount         int64
	Currency       string
	Status         Status
	CapturedAmount int64
	RefundedAmount int64
	CallbackURL    string
}

type MockOption func(*MockGateway)

func WithFailureRate(rate float64) MockOption {
	return func(g *MockGateway) { g.failureRate = rate }
}

func WithLatency(d time.Duration) MockOption {
	return func(g *MockGateway) { g.latency = d }
}

func WithTimeoutRate(rate float64) MockOption {
	return func(g *MockGateway) { g.timeoutRate = rate }
}

// WithAutoApprove makes new payments start AUTHORIZED instead of waiting for Approve.
func WithAutoApprove(on bool) MockOption {
	return func(g *MockGateway) { g.autoApprove = on }
}

// WithApprovalBaseURL sets the base of the approval URLs handed back on create.
// An empty base keeps the default.
func WithApprovalBaseURL(base string) MockOption {
	return func(g *MockGateway) {
		if base != "" {
			g.approvalBaseURL = strings.TrimRight(base, "/")
		}
	}
}

func NewMockGateway(opts ...MockOption) *MockGateway {
	g := &MockGateway{
		latency:         0,
		approvalBaseURL: "http://localhost:9090",
		payments:        make(map[string]*MockPayment),
		replays:         make(map[string]any),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *MockGateway) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.replays["create:"+p.IdempotencyKey].(*CreatePaymentResult); ok {
		return r, nil
	}
	if p.Amount <= 0 {
		return nil, rejected("amount must be positive")
	}

	mp := &MockPayment{
		ID:          fmt.Sprintf("mock_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		Reference:   p.Reference,
		OrderID:     p.OrderID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      StatusPending,
		CallbackURL: p.CallbackURL,
	}
	if g.autoApprove {
		mp.Status = StatusAuthorized
	}
	g.payments[mp.ID] = mp

	r := &CreatePaymentResult{
		GatewayPaymentID: mp.ID,
		Status:           mp.Status,
		ApprovalURL:      fmt.Sprintf("%s/approve/%s", g.approvalBaseURL, mp.ID),
	}
	g.remember("create:"+p.IdempotencyKey, r)
	return r, nil
}

func (g *MockGateway) GetStatus(ctx context.Context, p GetStatusParams) (*StatusResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mp, ok := g.payments[p.GatewayPaymentID]
	if !ok {
		return nil, notFound()
	}
	return &StatusResult{
		GatewayPaymentID: mp.ID,
		Status:           mp.Status,
		Amount:           mp.Amount,
		CapturedAmount:   mp.CapturedAmount,
		Currency:         mp.Currency,
	}, nil
}

func (g *MockGateway) Capture(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.replays["capture:"+p.IdempotencyKey].(*CaptureResult); ok {
		return r, nil
	}
	mp, ok := g.payments[p.GatewayPaymentID]
	if !ok {
		return nil, notFound()
	}
	if mp.Status != StatusAuthorized && mp.Status != StatusPending {
		return nil, rejected("Payment cannot be captured")
	}
	amount := p.Amount
	if amount == 0 {
		amount = mp.Amount
	}
	if amount > mp.Amount {
		return nil, rejected("capture amount exceeds payment amount")
	}

	mp.Status = StatusCaptured
	mp.CapturedAmount = amount

	r := &CaptureResult{GatewayPaymentID: mp.ID, Status: mp.Status, CapturedAmount: amount}
	g.remember("capture:"+p.IdempotencyKey, r)
	return r, nil
}

func (g *MockGateway) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.replays["refund:"+p.IdempotencyKey].(*RefundResult); ok {
		return r, nil
	}
	mp, ok := g.payments[p.GatewayPaymentID]
	if !ok {
		return nil, notFound()
	}
	if mp.Status != StatusCaptured && mp.Status != StatusPartiallyRefunded {
		return nil, rejected("Payment cannot be refunded")
	}
	if p.Amount <= 0 || p.Amount > mp.CapturedAmount-mp.RefundedAmount {
		return nil, rejected("refund amount exceeds refundable balance")
	}

	mp.RefundedAmount += p.Amount
	if mp.RefundedAmount == mp.CapturedAmount {
		mp.Status = StatusRefunded
	} else {
		mp.Status = StatusPartiallyRefunded
	}

	r := &RefundResult{
		RefundID: fmt.Sprintf("refund_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		Status:   RefundCompleted,
		Amount:   p.Amount,
	}
	g.remember("refund:"+p.IdempotencyKey, r)
	return r, nil
}

func (g *MockGateway) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	if err := g.simulate(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.replays["cancel:"+p.IdempotencyKey].(*CancelResult); ok {
		return r, nil
	}
	mp, ok := g.payments[p.GatewayPaymentID]
	if !ok {
		return nil, notFound()
	}
	if mp.Status != StatusPending && mp.Status != StatusAuthorized {
		return nil, rejected("Payment cannot be cancelled")
	}
	mp.Status = StatusCancelled

	r := &CancelResult{GatewayPaymentID: mp.ID, Status: mp.Status}
	g.remember("cancel:"+p.IdempotencyKey, r)
	return r, nil
}

// Approve moves a pending payment to AUTHORIZED, as the payer approving it would.
func (g *MockGateway) Approve(id string) (MockPayment, error) {
	return g.settle(id, StatusAuthorized)
}

// Decline moves a pending payment to FAILED.
func (g *MockGateway) Decline(id string) (MockPayment, error) {
	return g.settle(id, StatusFailed)
}

// Lookup returns a copy of the gateway-side record.
func (g *MockGateway) Lookup(id string) (MockPayment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mp, ok := g.payments[id]
	if !ok {
		return MockPayment{}, false
	}
	return *mp, true
}

func (g *MockGateway) settle(id string, to Status) (MockPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mp, ok := g.payments[id]
	if !ok {
		return MockPayment{}, notFound()
	}
	if mp.Status != StatusPending {
		return *mp, rejected(fmt.Sprintf("payment is %s, not PENDING", mp.Status))
	}
	mp.Status = to
	return *mp, nil
}

// remember must be called with g.mu held. Keys without an idempotency key are not replayed.
func (g *MockGateway) remember(key string, result any) {
	if key[len(key)-1] == ':' {
		return
	}
	g.replays[key] = result
}

func (g *MockGateway) simulate(ctx context.Context) error {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return domainErrors.NewGatewayError(domainErrors.GatewayTimeout, ctx.Err().Error())
		}
	}

	if rand.Float64() < g.timeoutRate {
		return domainErrors.NewGatewayError(domainErrors.GatewayTimeout, "simulated gateway timeout")
	}
	if rand.Float64() < g.failureRate {
		return &domainErrors.GatewayError{Kind: domainErrors.GatewayNetwork, Message: "simulated gateway failure", StatusCode: 503}
	}
	return nil
}

func rejected(msg string) error {
	return &domainErrors.GatewayError{Kind: domainErrors.GatewayRejected, Message: msg, StatusCode: 400}
}

func notFound() error {
	return &domainErrors.GatewayError{Kind: domainErrors.GatewayRejected, Message: "Payment not found", StatusCode: 404}
}
