package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
)

// slot owns one payment. Its mutex serializes transitions on that payment only.
type slot struct {
	mu      sync.Mutex
	payment *payment.Payment
}

// PaymentStore implements payment.Store in process memory. Records live in an
// append-only arena; the index mutex guards lookups and is never held across a transition.
type PaymentStore struct {
	mu    sync.RWMutex
	arena []*slot
	byID  map[string]int
	byKey map[string]int
	now   func() time.Time
}

// NewPaymentStore creates an empty PaymentStore.
func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		byID:  make(map[string]int),
		byKey: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores p unless its idempotency key is already taken.
func (s *PaymentStore) Create(_ context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byKey[p.IdempotencyKey]; ok {
		return s.snapshot(idx), false, nil
	}

	s.arena = append(s.arena, &slot{payment: p.Clone()})
	idx := len(s.arena) - 1
	s.byID[p.ID] = idx
	s.byKey[p.IdempotencyKey] = idx
	return s.snapshot(idx), true, nil
}

// Get retrieves a payment by ID.
func (s *PaymentStore) Get(_ context.Context, id string) (*payment.Payment, error) {
	sl, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.payment.Clone(), nil
}

// GetByIdempotencyKey retrieves a payment by idempotency key.
func (s *PaymentStore) GetByIdempotencyKey(_ context.Context, key string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byKey[key]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return s.snapshot(idx), nil
}

// ApplyTransition applies t while holding only the payment's own slot lock.
func (s *PaymentStore) ApplyTransition(_ context.Context, id string, t payment.Transition) (*payment.Payment, error) {
	return s.mutate(id, func(p *payment.Payment) error {
		return p.Apply(t, s.now())
	})
}

// SetGatewayReference records the gateway's identifiers for the payment.
func (s *PaymentStore) SetGatewayReference(_ context.Context, id, gatewayPaymentID, approvalURL string) (*payment.Payment, error) {
	return s.mutate(id, func(p *payment.Payment) error {
		p.GatewayPaymentID = gatewayPaymentID
		p.ApprovalURL = approvalURL
		p.UpdatedAt = s.now()
		return nil
	})
}

// List returns payments matching the filter, newest first.
func (s *PaymentStore) List(_ context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	f = f.Normalize()

	s.mu.RLock()
	slots := append([]*slot(nil), s.arena...)
	s.mu.RUnlock()

	var out []*payment.Payment
	for _, sl := range slots {
		sl.mu.Lock()
		if f.Matches(sl.payment) {
			out = append(out, sl.payment.Clone())
		}
		sl.mu.Unlock()
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// mutate runs fn on a working copy so a failed fn leaves the stored record untouched.
func (s *PaymentStore) mutate(id string, fn func(p *payment.Payment) error) (*payment.Payment, error) {
	sl, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	working := sl.payment.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	sl.payment = working
	return working.Clone(), nil
}

func (s *PaymentStore) lookup(id string) (*slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return s.arena[idx], nil
}

// snapshot must be called with s.mu held (read or write).
func (s *PaymentStore) snapshot(idx int) *payment.Payment {
	sl := s.arena[idx]
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.payment.Clone()
}
