package payment_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingPayment(t *testing.T, amount int64) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment("o1", amount, "USD", "key-1")
	require.NoError(t, err)
	return p
}

func apply(t *testing.T, p *payment.Payment, tr payment.Transition) {
	t.Helper()
	require.NoError(t, p.Apply(tr, time.Now().UTC()))
}

func TestNewPayment_Valid(t *testing.T) {
	p := newPendingPayment(t, 4999)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, "o1", p.OrderID)
	assert.Equal(t, int64(4999), p.Amount)
	assert.Equal(t, "key-1", p.IdempotencyKey)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1, p.Version)
}

func TestNewPayment_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		orderID  string
		amount   int64
		currency string
		key      string
		field    string
	}{
		{"zero amount", "o1", 0, "USD", "k", "amount"},
		{"negative amount", "o1", -10, "USD", "k", "amount"},
		{"unknown currency", "o1", 100, "XYZ", "k", "currency"},
		{"lowercase currency", "o1", 100, "usd", "k", "currency"},
		{"empty order", "", 100, "USD", "k", "order_id"},
		{"empty key", "o1", 100, "USD", "", "idempotency_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := payment.NewPayment(tt.orderID, tt.amount, tt.currency, tt.key)
			require.Error(t, err)
			var ve *errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

// --- State Machine Tests ---

func TestLifecycle_FullRefundScenario(t *testing.T) {
	p := newPendingPayment(t, 4999)

	apply(t, p, payment.Transition{Event: payment.EventAuthorize})
	assert.Equal(t, payment.StatusAuthorized, p.Status)
	require.NotNil(t, p.AuthorizedAt)

	apply(t, p, payment.Transition{Event: payment.EventCapture})
	assert.Equal(t, payment.StatusCaptured, p.Status)
	assert.Equal(t, int64(4999), p.CapturedAmount)

	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 2000})
	assert.Equal(t, payment.StatusPartiallyRefunded, p.Status)
	assert.Equal(t, int64(2000), p.RefundedAmount)

	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 2999})
	assert.Equal(t, payment.StatusRefunded, p.Status)
	assert.Equal(t, p.Amount, p.RefundedAmount)
	assert.Len(t, p.Refunds, 2)
	assert.True(t, p.Status.IsTerminal())
}

func TestCancel_OnCapturedIsIllegal(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	version := p.Version

	err := p.Apply(payment.Transition{Event: payment.EventCancel}, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)

	ite, ok := errors.AsIllegalTransition(err)
	require.True(t, ok)
	assert.Equal(t, string(payment.StatusCaptured), ite.Current)
	assert.Equal(t, payment.StatusCaptured, p.Status)
	assert.Equal(t, version, p.Version)
	assert.Nil(t, p.CancelledAt)
}

func TestCapture_FromPending(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture, Amount: 600})
	assert.Equal(t, payment.StatusCaptured, p.Status)
	assert.Equal(t, int64(600), p.CapturedAmount)
}

func TestCapture_ExceedsAmount(t *testing.T) {
	p := newPendingPayment(t, 1000)
	err := p.Apply(payment.Transition{Event: payment.EventCapture, Amount: 1001}, time.Now())
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Zero(t, p.CapturedAmount)
}

func TestCapture_Twice(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	err := p.Apply(payment.Transition{Event: payment.EventCapture}, time.Now())
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, int64(1000), p.CapturedAmount)
}

func TestRefund_DefaultsToRemainder(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 300})
	apply(t, p, payment.Transition{Event: payment.EventRefund})

	assert.Equal(t, payment.StatusRefunded, p.Status)
	last, ok := p.LastRefund()
	require.True(t, ok)
	assert.Equal(t, int64(700), last.Amount)
}

func TestRefund_OverRefundRejected(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 800})

	err := p.Apply(payment.Transition{Event: payment.EventRefund, Amount: 300}, time.Now())
	assert.ErrorIs(t, err, errors.ErrValidationFailed)
	assert.Equal(t, int64(800), p.RefundedAmount)
	assert.Equal(t, payment.StatusPartiallyRefunded, p.Status)
}

func TestRefund_PartialCaptureFullyRefunded(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture, Amount: 400})
	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 400})
	assert.Equal(t, payment.StatusRefunded, p.Status)
}

func TestRefund_DuplicateReference(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 100, Reference: "re_1"})

	err := p.Apply(payment.Transition{Event: payment.EventRefund, Amount: 100, Reference: "re_1"}, time.Now())
	assert.ErrorIs(t, err, errors.ErrDuplicateRefund)
	assert.Equal(t, int64(100), p.RefundedAmount)
}

func TestRefundFailed_RecordsWithoutStatusChange(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	apply(t, p, payment.Transition{Event: payment.EventRefundFailed, Amount: 500, Reason: "gateway declined"})

	assert.Equal(t, payment.StatusCaptured, p.Status)
	assert.Zero(t, p.RefundedAmount)
	require.Len(t, p.Refunds, 1)
	assert.Equal(t, payment.RefundFailed, p.Refunds[0].Status)
}

func TestFail_SetsReasonOnce(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventFail, Reason: "card declined"})
	assert.Equal(t, payment.StatusFailed, p.Status)
	assert.Equal(t, "card declined", p.FailureReason)
	require.NotNil(t, p.FailedAt)

	err := p.Apply(payment.Transition{Event: payment.EventFail}, time.Now())
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
}

func TestTimestamps_SetOnce(t *testing.T) {
	p := newPendingPayment(t, 1000)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Apply(payment.Transition{Event: payment.EventAuthorize}, first))
	require.NoError(t, p.Apply(payment.Transition{Event: payment.EventCapture}, first.Add(time.Hour)))

	assert.Equal(t, first, *p.AuthorizedAt)
	assert.Equal(t, first.Add(time.Hour), *p.CapturedAt)
}

func TestCanApply_Table(t *testing.T) {
	tests := []struct {
		from  payment.Status
		event payment.Event
		legal bool
	}{
		{payment.StatusPending, payment.EventAuthorize, true},
		{payment.StatusAuthorized, payment.EventAuthorize, false},
		{payment.StatusPending, payment.EventCapture, true},
		{payment.StatusAuthorized, payment.EventCapture, true},
		{payment.StatusCaptured, payment.EventRefund, true},
		{payment.StatusPartiallyRefunded, payment.EventRefund, true},
		{payment.StatusRefunded, payment.EventRefund, false},
		{payment.StatusPending, payment.EventCancel, true},
		{payment.StatusAuthorized, payment.EventCancel, true},
		{payment.StatusCaptured, payment.EventCancel, false},
		{payment.StatusCancelled, payment.EventCapture, false},
		{payment.StatusFailed, payment.EventAuthorize, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.event), func(t *testing.T) {
			assert.Equal(t, tt.legal, payment.CanApply(tt.from, tt.event))
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	p := newPendingPayment(t, 1000)
	apply(t, p, payment.Transition{Event: payment.EventCapture})
	apply(t, p, payment.Transition{Event: payment.EventRefund, Amount: 100})

	c := p.Clone()
	c.Refunds[0].Amount = 999
	*c.CapturedAt = time.Time{}

	assert.Equal(t, int64(100), p.Refunds[0].Amount)
	assert.False(t, p.CapturedAt.IsZero())
}

func TestSamePayload(t *testing.T) {
	p := newPendingPayment(t, 1000)
	assert.True(t, p.SamePayload("o1", 1000, "USD"))
	assert.False(t, p.SamePayload("o1", 1001, "USD"))
	assert.False(t, p.SamePayload("o2", 1000, "USD"))
}

// --- Currency Tests ---

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, "49.99", payment.ToMajorUnits(4999, "USD").String())
	assert.Equal(t, "500", payment.ToMajorUnits(500, "JPY").String())
	assert.Equal(t, "49.99 USD", payment.FormatAmount(4999, "USD"))
	assert.Equal(t, "50.00 EUR", payment.FormatAmount(5000, "EUR"))

	minor, err := payment.FromMajorUnits(decimal.RequireFromString("49.99"), "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(4999), minor)

	_, err = payment.FromMajorUnits(decimal.RequireFromString("1.005"), "USD")
	assert.Error(t, err)

	_, err = payment.FromMajorUnits(decimal.RequireFromString("1.5"), "JPY")
	assert.Error(t, err)
}

func TestListFilter(t *testing.T) {
	f := payment.ListFilter{}.Normalize()
	assert.Equal(t, payment.DefaultListLimit, f.Limit)
	assert.Equal(t, payment.MaxListLimit, payment.ListFilter{Limit: 10000}.Normalize().Limit)

	p := newPendingPayment(t, 100)
	captured := payment.StatusCaptured
	assert.True(t, payment.ListFilter{OrderID: "o1"}.Matches(p))
	assert.False(t, payment.ListFilter{Status: &captured}.Matches(p))
}
