package testutil

import (
	"context"
	"sync"

	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/infrastructure/gateway"
	"github.com/cassiomorais/paysecure/internal/infrastructure/memory"
)

// --- Payment Store Mock ---

// MockPaymentStore is a payment.Store backed by the in-memory store. Any XxxFunc
// that is set replaces the corresponding method.
type MockPaymentStore struct {
	*memory.PaymentStore

	CreateFunc              func(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error)
	GetFunc                 func(ctx context.Context, id string) (*payment.Payment, error)
	GetByIdempotencyKeyFunc func(ctx context.Context, key string) (*payment.Payment, error)
	ApplyTransitionFunc     func(ctx context.Context, id string, t payment.Transition) (*payment.Payment, error)
	ListFunc                func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
}

func NewMockPaymentStore() *MockPaymentStore {
	return &MockPaymentStore{PaymentStore: memory.NewPaymentStore()}
}

func (m *MockPaymentStore) Create(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return m.PaymentStore.Create(ctx, p)
}

func (m *MockPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.PaymentStore.Get(ctx, id)
}

func (m *MockPaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	if m.GetByIdempotencyKeyFunc != nil {
		return m.GetByIdempotencyKeyFunc(ctx, key)
	}
	return m.PaymentStore.GetByIdempotencyKey(ctx, key)
}

func (m *MockPaymentStore) ApplyTransition(ctx context.Context, id string, t payment.Transition) (*payment.Payment, error) {
	if m.ApplyTransitionFunc != nil {
		return m.ApplyTransitionFunc(ctx, id, t)
	}
	return m.PaymentStore.ApplyTransition(ctx, id, t)
}

func (m *MockPaymentStore) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return m.PaymentStore.List(ctx, filter)
}

// --- Gateway Client Mock ---

// MockGatewayClient is a gateway.Client whose calls are counted. Unset funcs succeed.
type MockGatewayClient struct {
	mu    sync.Mutex
	calls map[string]int

	CreatePaymentFunc func(ctx context.Context, p gateway.CreatePaymentParams) (*gateway.CreatePaymentResult, error)
	GetStatusFunc     func(ctx context.Context, p gateway.GetStatusParams) (*gateway.StatusResult, error)
	CaptureFunc       func(ctx context.Context, p gateway.CaptureParams) (*gateway.CaptureResult, error)
	RefundFunc        func(ctx context.Context, p gateway.RefundParams) (*gateway.RefundResult, error)
	CancelFunc        func(ctx context.Context, p gateway.CancelParams) (*gateway.CancelResult, error)
}

func NewMockGatewayClient() *MockGatewayClient {
	return &MockGatewayClient{calls: make(map[string]int)}
}

// Calls returns how many times op was invoked.
func (m *MockGatewayClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockGatewayClient) count(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *MockGatewayClient) CreatePayment(ctx context.Context, p gateway.CreatePaymentParams) (*gateway.CreatePaymentResult, error) {
	m.count("create_payment")
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, p)
	}
	return &gateway.CreatePaymentResult{
		GatewayPaymentID: "gw_" + p.IdempotencyKey,
		Status:           gateway.StatusPending,
		ApprovalURL:      "http://gateway.test/approve/gw_" + p.IdempotencyKey,
	}, nil
}

func (m *MockGatewayClient) GetStatus(ctx context.Context, p gateway.GetStatusParams) (*gateway.StatusResult, error) {
	m.count("get_status")
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, p)
	}
	return &gateway.StatusResult{GatewayPaymentID: p.GatewayPaymentID, Status: gateway.StatusPending}, nil
}

func (m *MockGatewayClient) Capture(ctx context.Context, p gateway.CaptureParams) (*gateway.CaptureResult, error) {
	m.count("capture")
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, p)
	}
	return &gateway.CaptureResult{GatewayPaymentID: p.GatewayPaymentID, Status: gateway.StatusCaptured, CapturedAmount: p.Amount}, nil
}

func (m *MockGatewayClient) Refund(ctx context.Context, p gateway.RefundParams) (*gateway.RefundResult, error) {
	m.count("refund")
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, p)
	}
	return &gateway.RefundResult{RefundID: "gwref_" + p.IdempotencyKey, Status: gateway.RefundCompleted, Amount: p.Amount}, nil
}

func (m *MockGatewayClient) Cancel(ctx context.Context, p gateway.CancelParams) (*gateway.CancelResult, error) {
	m.count("cancel")
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, p)
	}
	return &gateway.CancelResult{GatewayPaymentID: p.GatewayPaymentID, Status: gateway.StatusCancelled}, nil
}

// --- Order Notifier Mock ---

// MockNotifier records every order status update it receives.
type MockNotifier struct {
	mu      sync.Mutex
	updates []order.StatusUpdate
	done    chan struct{}

	UpdateOrderStatusFunc func(ctx context.Context, update order.StatusUpdate) error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{done: make(chan struct{}, 64)}
}

func (m *MockNotifier) UpdateOrderStatus(ctx context.Context, update order.StatusUpdate) error {
	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.mu.Unlock()
	defer func() {
		select {
		case m.done <- struct{}{}:
		default:
		}
	}()

	if m.UpdateOrderStatusFunc != nil {
		return m.UpdateOrderStatusFunc(ctx, update)
	}
	return nil
}

// Updates returns a copy of the updates received so far.
func (m *MockNotifier) Updates() []order.StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.StatusUpdate(nil), m.updates...)
}

// Done receives once per completed UpdateOrderStatus call.
func (m *MockNotifier) Done() <-chan struct{} {
	return m.done
}
