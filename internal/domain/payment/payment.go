package payment

import (
	"time"

	"github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/google/uuid"
)

// Status represents the payment status in the state machine
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusAuthorized        Status = "AUTHORIZED"
	StatusCaptured          Status = "CAPTURED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
	StatusRefunded          Status = "REFUNDED"
	StatusCancelled         Status = "CANCELLED"
	StatusFailed            Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAuthorized, StatusCaptured, StatusPartiallyRefunded,
		StatusRefunded, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further status change is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded || s == StatusFailed
}

// Event is an input to the state machine.
type Event string

const (
	EventAuthorize    Event = "authorize"
	EventCapture      Event = "capture"
	EventRefund       Event = "refund"
	EventRefundFailed Event = "refund_failed"
	EventCancel       Event = "cancel"
	EventFail         Event = "fail"
)

// legalFrom lists the statuses each event may be applied from.
var legalFrom = map[Event][]Status{
	EventAuthorize:    {StatusPending},
	EventCapture:      {StatusPending, StatusAuthorized},
	EventRefund:       {StatusCaptured, StatusPartiallyRefunded},
	EventRefundFailed: {StatusCaptured, StatusPartiallyRefunded},
	EventCancel:       {StatusPending, StatusAuthorized},
	EventFail:         {StatusPending, StatusAuthorized, StatusCaptured, StatusPartiallyRefunded},
}

// CanApply reports whether event is legal from status.
func CanApply(status Status, event Event) bool {
	for _, s := range legalFrom[event] {
		if s == status {
			return true
		}
	}
	return false
}

// Payment represents a payment entity. Refunds are owned child records.
type Payment struct {
	ID               string
	OrderID          string
	Amount           int64 // minor units
	Currency         string
	Status           Status
	CapturedAmount   int64
	RefundedAmount   int64
	IdempotencyKey   string
	GatewayPaymentID string
	ApprovalURL      string
	FailureReason    string
	Refunds          []Refund
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	AuthorizedAt     *time.Time
	CapturedAt       *time.Time
	CancelledAt      *time.Time
	FailedAt         *time.Time
}

// NewPayment creates a new pending payment. The id is assigned here, never by the caller.
func NewPayment(orderID string, amount int64, currency, idempotencyKey string) (*Payment, error) {
	if err := ValidateCreate(orderID, amount, currency); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		return nil, errors.NewValidationError("idempotency_key", "cannot be empty")
	}

	now := time.Now().UTC()
	return &Payment{
		ID:             "pay_" + uuid.NewString(),
		OrderID:        orderID,
		Amount:         amount,
		Currency:       currency,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ValidateCreate checks the fields of a create request.
func ValidateCreate(orderID string, amount int64, currency string) error {
	if orderID == "" {
		return errors.NewValidationError("order_id", "cannot be empty")
	}
	if amount <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if !IsSupportedCurrency(currency) {
		return errors.NewValidationError("currency", "unsupported currency "+currency)
	}
	return nil
}

// SamePayload reports whether a create request matches this payment's original request.
func (p *Payment) SamePayload(orderID string, amount int64, currency string) bool {
	return p.OrderID == orderID && p.Amount == amount && p.Currency == currency
}

// Refundable returns the captured amount not yet refunded.
func (p *Payment) Refundable() int64 {
	return p.CapturedAmount - p.RefundedAmount
}

// FindRefund returns the refund matching a gateway reference or idempotency key.
func (p *Payment) FindRefund(gatewayRefundID, idempotencyKey string) (*Refund, bool) {
	for i := range p.Refunds {
		r := &p.Refunds[i]
		if gatewayRefundID != "" && r.GatewayRefundID == gatewayRefundID {
			return r, true
		}
		if idempotencyKey != "" && r.IdempotencyKey == idempotencyKey {
			return r, true
		}
	}
	return nil, false
}

// LastRefund returns the most recently recorded refund.
func (p *Payment) LastRefund() (*Refund, bool) {
	if len(p.Refunds) == 0 {
		return nil, false
	}
	return &p.Refunds[len(p.Refunds)-1], true
}

// Clone returns a deep copy so stores never hand out their internal record.
func (p *Payment) Clone() *Payment {
	c := *p
	c.Refunds = append([]Refund(nil), p.Refunds...)
	c.AuthorizedAt = cloneTime(p.AuthorizedAt)
	c.CapturedAt = cloneTime(p.CapturedAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	c.FailedAt = cloneTime(p.FailedAt)
	return &c
}

// Transition is a request to move a payment through the state machine.
type Transition struct {
	Event Event
	// Amount is the capture or refund amount; zero means the full remaining amount.
	Amount int64
	// Reason is the refund reason or the failure reason.
	Reason string
	// Reference is the gateway reference of the refund, if any.
	Reference      string
	IdempotencyKey string
}

// Apply runs t against the payment. It never partially mutates: on error the payment is unchanged.
func (p *Payment) Apply(t Transition, now time.Time) error {
	if !CanApply(p.Status, t.Event) {
		return errors.NewIllegalTransition(p.ID, string(p.Status), string(t.Event))
	}

	switch t.Event {
	case EventAuthorize:
		p.Status = StatusAuthorized
		setOnce(&p.AuthorizedAt, now)

	case EventCapture:
		amount := t.Amount
		if amount == 0 {
			amount = p.Amount
		}
		if amount < 0 || amount > p.Amount {
			return errors.NewValidationError("amount", "capture amount must be between 1 and the payment amount")
		}
		p.CapturedAmount = amount
		p.Status = StatusCaptured
		setOnce(&p.CapturedAt, now)

	case EventRefund:
		if _, dup := p.FindRefund(t.Reference, t.IdempotencyKey); dup {
			return errors.ErrDuplicateRefund
		}
		amount, err := p.refundAmount(t.Amount)
		if err != nil {
			return err
		}
		p.RefundedAmount += amount
		p.Refunds = append(p.Refunds, newRefund(p.ID, amount, t, RefundCompleted, now))
		if p.RefundedAmount == p.CapturedAmount {
			p.Status = StatusRefunded
		} else {
			p.Status = StatusPartiallyRefunded
		}

	case EventRefundFailed:
		if _, dup := p.FindRefund(t.Reference, t.IdempotencyKey); dup {
			return errors.ErrDuplicateRefund
		}
		amount, err := p.refundAmount(t.Amount)
		if err != nil {
			return err
		}
		p.Refunds = append(p.Refunds, newRefund(p.ID, amount, t, RefundFailed, now))

	case EventCancel:
		p.Status = StatusCancelled
		setOnce(&p.CancelledAt, now)

	case EventFail:
		p.Status = StatusFailed
		p.FailureReason = t.Reason
		setOnce(&p.FailedAt, now)
	}

	p.Version++
	p.UpdatedAt = now
	return nil
}

func (p *Payment) refundAmount(requested int64) (int64, error) {
	remaining := p.Refundable()
	if requested == 0 {
		requested = remaining
	}
	if requested <= 0 || requested > remaining {
		return 0, errors.NewValidationError("amount", "refund amount must be between 1 and the refundable remainder")
	}
	return requested, nil
}

func setOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
