package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/order"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Event types sent by the gateway.
const (
	EventPaymentSuccess  = "payment_success"
	EventPaymentFailed   = "payment_failed"
	EventPaymentCaptured = "payment_captured"
	EventPaymentRefunded = "payment_refunded"
)

// Envelope is the webhook body.
type Envelope struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData carries the payment the event is about. PaymentID is our payment id,
// echoed back by the gateway from the create reference.
type EventData struct {
	EventID          string           `json:"eventId,omitempty"`
	PaymentID        string           `json:"paymentId"`
	OrderID          string           `json:"orderId"`
	GatewayPaymentID string           `json:"gatewayPaymentId,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	RefundID         string           `json:"refundId,omitempty"`
	Reason           string           `json:"reason,omitempty"`
}

// Outcome describes what a delivery did.
type Outcome string

const (
	// OutcomeApplied means the delivery moved the payment.
	OutcomeApplied Outcome = "applied"
	// OutcomeAbsorbed means the payment was already where the event would take it.
	OutcomeAbsorbed Outcome = "absorbed"
	// OutcomeDuplicate means this exact delivery was processed before.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the event type is not one we act on.
	OutcomeIgnored Outcome = "ignored"
)

// Result is returned for every acknowledged delivery.
type Result struct {
	Outcome Outcome
	Event   string
	Payment *payment.Payment
}

// DispatcherConfig holds the notification timing of the Dispatcher.
type DispatcherConfig struct {
	// NotifyWait is how long a delivery waits inline for the order notification
	// before handing it off to the background.
	NotifyWait time.Duration
	// NotifyTimeout bounds the order notification itself.
	NotifyTimeout time.Duration
}

// Dispatcher verifies webhook deliveries and applies them to the payment store.
type Dispatcher struct {
	verifier *Verifier
	store    payment.Store
	notifier order.Notifier
	deduper  Deduper
	cfg      DispatcherConfig
	metrics  *observability.Metrics
	logger   zerolog.Logger

	pending sync.WaitGroup
}

// NewDispatcher returns a Dispatcher applying verified deliveries to store. A nil
// deduper falls back to an in-memory one; a nil notifier disables order updates.
func NewDispatcher(
	verifier *Verifier,
	store payment.Store,
	notifier order.Notifier,
	deduper Deduper,
	cfg DispatcherConfig,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.NotifyWait < 0 {
		cfg.NotifyWait = 0
	}
	if deduper == nil {
		deduper = NewMemoryDeduper(0)
	}
	return &Dispatcher{
		verifier: verifier,
		store:    store,
		notifier: notifier,
		deduper:  deduper,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch processes one delivery: verify the signature, look up the payment, apply
// the transition and notify the order system.
//
// Errors: ErrInvalidSignature (nothing was read or changed), ValidationError for a
// malformed body, ErrPaymentNotFound, IllegalTransitionError when the event conflicts
// with the payment's state. Redeliveries and events the payment has already reached
// are acknowledged without error.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, headers http.Header) (res *Result, err error) {
	eventType := "unknown"
	defer func() { d.record(eventType, res, err) }()

	if err := d.verifier.VerifyRequest(body, headers); err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domainErrors.NewValidationError("body", "malformed webhook payload: "+err.Error())
	}
	if env.Event == "" {
		return nil, domainErrors.NewValidationError("event", "cannot be empty")
	}
	eventType = env.Event
	log := observability.WithPayment(d.logger, env.Data.PaymentID, "webhook", "").With().
		Str("event_type", env.Event).Logger()

	if !knownEvent(env.Event) {
		log.Info().Msg("unhandled webhook event acknowledged")
		return &Result{Outcome: OutcomeIgnored, Event: env.Event}, nil
	}
	if env.Data.PaymentID == "" {
		return nil, domainErrors.NewValidationError("data.paymentId", "cannot be empty")
	}

	key := deliveryKey(env, body)
	fresh, err := d.deduper.Claim(ctx, key)
	if err != nil {
		// the state machine still absorbs repeats
		log.Warn().Err(err).Msg("webhook dedupe unavailable")
		fresh = true
	}
	if !fresh {
		p, err := d.store.Get(ctx, env.Data.PaymentID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeDuplicate, Event: env.Event, Payment: p}, nil
	}

	res, err = d.apply(ctx, env)
	if err != nil {
		// let the sender's redelivery try again
		if rerr := d.deduper.Release(ctx, key); rerr != nil {
			log.Warn().Err(rerr).Msg("release webhook dedupe key")
		}
		return nil, err
	}

	if status, ok := orderStatusFor(env.Event); ok {
		d.notify(ctx, order.StatusUpdate{
			OrderID:   res.Payment.OrderID,
			Status:    status,
			PaymentID: res.Payment.ID,
		}, log)
	}

	log.Info().Str("outcome", string(res.Outcome)).Str("status", string(res.Payment.Status)).Msg("webhook processed")
	return res, nil
}

func (d *Dispatcher) apply(ctx context.Context, env Envelope) (*Result, error) {
	p, err := d.store.Get(ctx, env.Data.PaymentID)
	if err != nil {
		return nil, err
	}

	var t payment.Transition
	var reached func(*payment.Payment) bool

	switch env.Event {
	case EventPaymentSuccess:
		t = payment.Transition{Event: payment.EventAuthorize}
		reached = func(p *payment.Payment) bool {
			switch p.Status {
			case payment.StatusAuthorized, payment.StatusCaptured, payment.StatusPartiallyRefunded, payment.StatusRefunded:
				return true
			}
			return false
		}

	case EventPaymentFailed:
		reason := env.Data.Reason
		if reason == "" {
			reason = "gateway reported payment failed"
		}
		t = payment.Transition{Event: payment.EventFail, Reason: reason}
		reached = func(p *payment.Payment) bool { return p.Status == payment.StatusFailed }

	case EventPaymentCaptured:
		amount, err := minorUnits(env.Data.Amount, p.Currency)
		if err != nil {
			return nil, err
		}
		t = payment.Transition{Event: payment.EventCapture, Amount: amount}
		reached = func(p *payment.Payment) bool {
			switch p.Status {
			case payment.StatusCaptured, payment.StatusPartiallyRefunded, payment.StatusRefunded:
				return true
			}
			return false
		}

	case EventPaymentRefunded:
		// a refund we cannot correlate is never applied; refunds made through the
		// API are already on the payment
		if env.Data.RefundID == "" {
			return &Result{Outcome: OutcomeAbsorbed, Event: env.Event, Payment: p}, nil
		}
		amount, err := minorUnits(env.Data.Amount, p.Currency)
		if err != nil {
			return nil, err
		}
		t = payment.Transition{Event: payment.EventRefund, Amount: amount, Reason: env.Data.Reason, Reference: env.Data.RefundID}
		reached = func(p *payment.Payment) bool {
			_, ok := p.FindRefund(env.Data.RefundID, "")
			return ok
		}
		if !reached(p) && amount == 0 {
			return nil, domainErrors.NewValidationError("data.amount", "required for a new refund")
		}
	}

	if reached(p) {
		return &Result{Outcome: OutcomeAbsorbed, Event: env.Event, Payment: p}, nil
	}

	updated, err := d.store.ApplyTransition(ctx, p.ID, t)
	if err == nil {
		return &Result{Outcome: OutcomeApplied, Event: env.Event, Payment: updated}, nil
	}

	// a concurrent writer may have got there first
	if errors.Is(err, domainErrors.ErrInvalidStateTransition) || errors.Is(err, domainErrors.ErrDuplicateRefund) {
		current, gerr := d.store.Get(ctx, p.ID)
		if gerr != nil {
			return nil, gerr
		}
		if reached(current) {
			return &Result{Outcome: OutcomeAbsorbed, Event: env.Event, Payment: current}, nil
		}
	}
	return nil, err
}

// notify delivers the order update, waiting at most NotifyWait for it. A slower
// notification keeps running in the background; its failure is only logged.
func (d *Dispatcher) notify(ctx context.Context, update order.StatusUpdate, log zerolog.Logger) {
	if d.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.NotifyTimeout)
	done := make(chan error, 1)

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		defer cancel()
		done <- d.notifier.UpdateOrderStatus(nctx, update)
	}()

	wait := time.NewTimer(d.cfg.NotifyWait)
	defer wait.Stop()

	select {
	case err := <-done:
		d.notified(update, err, log)
	case <-wait.C:
		d.recordNotification("deferred")
		log.Debug().Str("order_id", update.OrderID).Msg("order notification handed off")
		go func() {
			d.notified(update, <-done, log)
		}()
	}
}

func (d *Dispatcher) notified(update order.StatusUpdate, err error, log zerolog.Logger) {
	if err != nil {
		d.recordNotification("failure")
		log.Error().Err(err).
			Str("order_id", update.OrderID).
			Str("order_status", string(update.Status)).
			Msg("order status notification failed")
		return
	}
	d.recordNotification("success")
}

// Wait blocks until background notifications finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) record(eventType string, res *Result, err error) {
	if d.metrics == nil {
		return
	}
	result := "error"
	switch {
	case err == nil && res != nil:
		result = string(res.Outcome)
	case errors.Is(err, domainErrors.ErrInvalidSignature):
		result = "unauthorized"
	case errors.Is(err, domainErrors.ErrPaymentNotFound):
		result = "not_found"
	case errors.Is(err, domainErrors.ErrValidationFailed):
		result = "invalid"
	case errors.Is(err, domainErrors.ErrInvalidStateTransition):
		result = "conflict"
	}
	d.metrics.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

func (d *Dispatcher) recordNotification(result string) {
	if d.metrics != nil {
		d.metrics.OrderNotificationsTotal.WithLabelValues(result).Inc()
	}
}

func knownEvent(event string) bool {
	switch event {
	case EventPaymentSuccess, EventPaymentFailed, EventPaymentCaptured, EventPaymentRefunded:
		return true
	}
	return false
}

func orderStatusFor(event string) (order.Status, bool) {
	switch event {
	case EventPaymentSuccess:
		return order.StatusPaid, true
	case EventPaymentFailed:
		return order.StatusFailed, true
	}
	return "", false
}

// deliveryKey identifies a delivery: the gateway's event id when it sends one,
// otherwise a digest of the signed body.
func deliveryKey(env Envelope, body []byte) string {
	if env.Data.EventID != "" {
		return env.Event + ":" + env.Data.EventID
	}
	sum := sha256.Sum256(body)
	return env.Event + ":" + hex.EncodeToString(sum[:])
}

func minorUnits(amount *decimal.Decimal, currency string) (int64, error) {
	if amount == nil {
		return 0, nil
	}
	v, err := payment.FromMajorUnits(*amount, currency)
	if err != nil {
		return 0, domainErrors.NewValidationError("data.amount", err.Error())
	}
	if v < 0 {
		return 0, domainErrors.NewValidationError("data.amount", "cannot be negative")
	}
	return v, nil
}
