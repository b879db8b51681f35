package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/cassiomorais/paysecure/internal/infrastructure/gateway"
	"github.com/cassiomorais/paysecure/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentService handles payment-related business logic.
//
// Every mutating operation follows the same shape: read the payment and check the
// transition is legal, call the gateway without holding any lock, then apply the
// transition through the store, which re-checks legality under the per-id lock.
type PaymentService struct {
	store       payment.Store
	gateway     gateway.Client
	callbackURL string
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	store payment.Store,
	gw gateway.Client,
	callbackURL string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		store:       store,
		gateway:     gw,
		callbackURL: callbackURL,
		metrics:     metrics,
		logger:      logger,
	}
}

// CreatePayment creates a payment at most once per idempotency key and registers it
// with the gateway. A repeated request with the same key and payload returns the
// original payment; the same key with a different payload is a ValidationError.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (resp *CreatePaymentResponse, err error) {
	defer func() { s.record("create", err) }()

	p, err := payment.NewPayment(req.OrderID, req.Amount, req.Currency, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	stored, created, err := s.store.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}
	if !created {
		if !stored.SamePayload(req.OrderID, req.Amount, req.Currency) {
			return nil, domainErrors.NewValidationError("idempotency_key", domainErrors.ErrIdempotencyKeyReused.Error())
		}
		// registered earlier, or rejected by the gateway
		if stored.GatewayPaymentID != "" || stored.Status.IsTerminal() {
			return &CreatePaymentResponse{Payment: stored, Created: false}, nil
		}
	}

	// Either a new payment or a replay of a create whose gateway call never
	// completed. The gateway call reuses the payment's idempotency key either way.
	res, err := s.gateway.CreatePayment(ctx, gateway.CreatePaymentParams{
		IdempotencyKey: stored.IdempotencyKey,
		Reference:      stored.ID,
		OrderID:        stored.OrderID,
		Amount:         stored.Amount,
		Currency:       stored.Currency,
		CallbackURL:    s.callbackURL,
	})
	if err != nil {
		if domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected) {
			if _, ferr := s.store.ApplyTransition(ctx, stored.ID, payment.Transition{
				Event:  payment.EventFail,
				Reason: err.Error(),
			}); ferr != nil && !isIllegal(ferr) {
				return nil, fmt.Errorf("mark payment failed: %w", ferr)
			}
		}
		return nil, err
	}

	updated, err := s.store.SetGatewayReference(ctx, stored.ID, res.GatewayPaymentID, res.ApprovalURL)
	if err != nil {
		return nil, fmt.Errorf("store gateway reference: %w", err)
	}

	// the gateway may already be past PENDING (auto-approved payments)
	if t, ok := reconcileTransition(updated, res.Status, 0); ok {
		if next, err := s.store.ApplyTransition(ctx, updated.ID, t); err == nil {
			updated = next
		} else if !isIllegal(err) {
			return nil, err
		}
	}

	plog := observability.WithPayment(s.logger, updated.ID, "create", updated.IdempotencyKey)
	plog.Info().
		Str("order_id", updated.OrderID).
		Str("amount", payment.FormatAmount(updated.Amount, updated.Currency)).
		Str("gateway_payment_id", updated.GatewayPaymentID).
		Bool("created", created).
		Msg("payment registered with gateway")

	return &CreatePaymentResponse{Payment: updated, Created: created}, nil
}

// GetPayment returns a payment by id.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*payment.Payment, error) {
	return s.store.Get(ctx, id)
}

// ListPayments lists payments, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	return s.store.List(ctx, filter.Normalize())
}

// Authorize confirms with the gateway that the payer approved the payment and moves
// it to AUTHORIZED. A gateway that still reports PENDING yields ErrAuthorizationPending.
func (s *PaymentService) Authorize(ctx context.Context, id string) (p *payment.Payment, err error) {
	defer func() { s.record("authorize", err) }()

	p, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.CanApply(p.Status, payment.EventAuthorize) {
		return nil, domainErrors.NewIllegalTransition(p.ID, string(p.Status), string(payment.EventAuthorize))
	}
	if p.GatewayPaymentID == "" {
		return nil, pendingAuthorization(p.ID)
	}

	st, err := s.gateway.GetStatus(ctx, gateway.GetStatusParams{GatewayPaymentID: p.GatewayPaymentID})
	if err != nil {
		return nil, err
	}
	if st.Status == gateway.StatusPending {
		return nil, pendingAuthorization(p.ID)
	}

	t, ok := reconcileTransition(p, st.Status, st.CapturedAmount)
	if !ok {
		return nil, domainErrors.NewIllegalTransition(p.ID, string(p.Status), string(payment.EventAuthorize))
	}
	updated, err := s.store.ApplyTransition(ctx, p.ID, t)
	if err != nil {
		return nil, err
	}
	if t.Event != payment.EventAuthorize && t.Event != payment.EventCapture {
		// the gateway settled the payment some other way; report the conflict
		return nil, domainErrors.NewIllegalTransition(p.ID, string(updated.Status), string(payment.EventAuthorize))
	}
	return updated, nil
}

// RefreshStatus pulls the gateway's view of the payment and applies the transition
// that brings the local record in line, when that transition is legal. Anything else
// leaves the payment as it is.
func (s *PaymentService) RefreshStatus(ctx context.Context, id string) (p *payment.Payment, err error) {
	defer func() { s.record("refresh", err) }()

	p, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.GatewayPaymentID == "" || p.Status.IsTerminal() {
		return p, nil
	}

	st, err := s.gateway.GetStatus(ctx, gateway.GetStatusParams{GatewayPaymentID: p.GatewayPaymentID})
	if err != nil {
		return nil, err
	}

	t, ok := reconcileTransition(p, st.Status, st.CapturedAmount)
	if !ok {
		return p, nil
	}
	updated, err := s.store.ApplyTransition(ctx, p.ID, t)
	if isIllegal(err) {
		// moved underneath us; whatever it is now is newer than what we read
		return s.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	plog := observability.WithPayment(s.logger, p.ID, "refresh", "")
	plog.Info().
		Str("from", string(p.Status)).
		Str("to", string(updated.Status)).
		Msg("payment reconciled with gateway")
	return updated, nil
}

// ReconcileStale refreshes PENDING and AUTHORIZED payments created before olderThan.
// It returns how many payments changed status.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	changed := 0
	for _, status := range []payment.Status{payment.StatusPending, payment.StatusAuthorized} {
		st := status
		stale, err := s.store.List(ctx, payment.ListFilter{Status: &st, CreatedBefore: &olderThan, Limit: limit})
		if err != nil {
			return changed, fmt.Errorf("list %s payments: %w", status, err)
		}
		for _, p := range stale {
			if ctx.Err() != nil {
				return changed, ctx.Err()
			}
			updated, err := s.RefreshStatus(ctx, p.ID)
			if err != nil {
				plog := observability.WithPayment(s.logger, p.ID, "reconcile", "")
				plog.Warn().Err(err).Msg("reconcile failed")
				continue
			}
			if updated.Status != p.Status {
				changed++
			}
		}
	}
	return changed, nil
}

// Capture captures an authorized (or pending) payment. A zero amount captures the
// full payment amount.
func (s *PaymentService) Capture(ctx context.Context, id string, req CaptureRequest) (p *payment.Payment, err error) {
	defer func() { s.record("capture", err) }()

	p, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.CanApply(p.Status, payment.EventCapture) {
		return nil, domainErrors.NewIllegalTransition(p.ID, string(p.Status), string(payment.EventCapture))
	}
	amount := req.Amount
	if amount == 0 {
		amount = p.Amount
	}
	if amount < 0 || amount > p.Amount {
		return nil, domainErrors.NewValidationError("amount", "capture amount must be between 1 and the payment amount")
	}
	if p.GatewayPaymentID == "" {
		return nil, missingGatewayReference(p.ID)
	}

	res, err := s.gateway.Capture(ctx, gateway.CaptureParams{
		IdempotencyKey:   operationKey(p.ID, payment.EventCapture),
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           amount,
		Currency:         p.Currency,
	})
	if err != nil {
		return nil, err
	}
	// zero would read as "capture everything" in the state machine
	if res.CapturedAmount <= 0 {
		return nil, nonPositiveAmount("capture", res.CapturedAmount)
	}

	updated, err := s.store.ApplyTransition(ctx, p.ID, payment.Transition{
		Event:  payment.EventCapture,
		Amount: res.CapturedAmount,
	})
	if err != nil {
		return nil, err
	}

	plog := observability.WithPayment(s.logger, p.ID, "capture", "")
	plog.Info().
		Str("captured", payment.FormatAmount(updated.CapturedAmount, updated.Currency)).
		Msg("payment captured")
	return updated, nil
}

// Refund refunds part or all of the captured amount. Every attempt is recorded as a
// Refund; a refund the gateway reports as FAILED is recorded without changing totals.
// Replaying a refund idempotency key returns the refund recorded for it.
func (s *PaymentService) Refund(ctx context.Context, id string, req RefundRequest) (resp *RefundResponse, err error) {
	defer func() { s.record("refund", err) }()

	key := req.IdempotencyKey
	if key == "" {
		key = operationKey(id, payment.EventRefund) + ":" + uuid.NewString()
	}

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r, ok := p.FindRefund("", key); ok {
		if req.Amount != 0 && req.Amount != r.Amount {
			return nil, domainErrors.NewValidationError("idempotency_key", domainErrors.ErrIdempotencyKeyReused.Error())
		}
		return &RefundResponse{Payment: p, Refund: r}, nil
	}
	if !payment.CanApply(p.Status, payment.EventRefund) {
		return nil, domainErrors.NewIllegalTransition(p.ID, string(p.Status), string(payment.EventRefund))
	}

	amount := req.Amount
	if amount == 0 {
		amount = p.Refundable()
	}
	if amount <= 0 || amount > p.Refundable() {
		return nil, domainErrors.NewValidationError("amount", "refund amount must be between 1 and the refundable remainder")
	}

	res, err := s.gateway.Refund(ctx, gateway.RefundParams{
		IdempotencyKey:   key,
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           amount,
		Currency:         p.Currency,
		Reason:           req.Reason,
	})
	if err != nil {
		return nil, err
	}
	if res.Amount <= 0 {
		return nil, nonPositiveAmount("refund", res.Amount)
	}

	t := payment.Transition{
		Event:          payment.EventRefund,
		Amount:         res.Amount,
		Reason:         req.Reason,
		Reference:      res.RefundID,
		IdempotencyKey: key,
	}
	if res.Status == gateway.RefundFailed {
		t.Event = payment.EventRefundFailed
	}

	updated, err := s.store.ApplyTransition(ctx, p.ID, t)
	if errors.Is(err, domainErrors.ErrDuplicateRefund) {
		// a concurrent call with the same key recorded it first
		updated, err = s.store.Get(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}

	r, ok := updated.FindRefund(res.RefundID, key)
	if !ok {
		return nil, fmt.Errorf("refund %s missing after apply: %w", res.RefundID, domainErrors.ErrInternal)
	}

	plog := observability.WithPayment(s.logger, p.ID, "refund", key)
	plog.Info().
		Str("refund_id", r.ID).
		Str("refund_status", string(r.Status)).
		Str("amount", payment.FormatAmount(r.Amount, updated.Currency)).
		Msg("refund recorded")
	return &RefundResponse{Payment: updated, Refund: r}, nil
}

// Cancel voids a payment that has not been captured. A payment the gateway never
// registered is cancelled locally.
func (s *PaymentService) Cancel(ctx context.Context, id string) (p *payment.Payment, err error) {
	defer func() { s.record("cancel", err) }()

	p, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.CanApply(p.Status, payment.EventCancel) {
		return nil, domainErrors.NewIllegalTransition(p.ID, string(p.Status), string(payment.EventCancel))
	}

	if p.GatewayPaymentID != "" {
		if _, err := s.gateway.Cancel(ctx, gateway.CancelParams{
			IdempotencyKey:   operationKey(p.ID, payment.EventCancel),
			GatewayPaymentID: p.GatewayPaymentID,
		}); err != nil {
			return nil, err
		}
	}

	return s.store.ApplyTransition(ctx, p.ID, payment.Transition{Event: payment.EventCancel})
}

func (s *PaymentService) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.PaymentsTotal.WithLabelValues(operation, result).Inc()
}

// reconcileTransition maps a gateway status onto the local transition that reaches it
// from p's current status.
func reconcileTransition(p *payment.Payment, gw gateway.Status, capturedAmount int64) (payment.Transition, bool) {
	var t payment.Transition
	switch gw {
	case gateway.StatusAuthorized:
		t = payment.Transition{Event: payment.EventAuthorize}
	case gateway.StatusCaptured, gateway.StatusPartiallyRefunded, gateway.StatusRefunded:
		if capturedAmount <= 0 {
			// without the captured amount there is nothing safe to record
			return t, false
		}
		t = payment.Transition{Event: payment.EventCapture, Amount: capturedAmount}
	case gateway.StatusCancelled:
		t = payment.Transition{Event: payment.EventCancel}
	case gateway.StatusFailed:
		t = payment.Transition{Event: payment.EventFail, Reason: "reported failed by gateway"}
	default:
		return t, false
	}
	return t, payment.CanApply(p.Status, t.Event)
}

// operationKey is the gateway idempotency key for a payment-level operation. It is
// deterministic so that retries of the same logical request reuse it.
func operationKey(paymentID string, event payment.Event) string {
	return paymentID + ":" + string(event)
}

func isIllegal(err error) bool {
	return errors.Is(err, domainErrors.ErrInvalidStateTransition)
}

func pendingAuthorization(id string) error {
	return domainErrors.NewDomainError(
		"authorization_pending",
		fmt.Sprintf("payment %s is not yet approved at the gateway", id),
		domainErrors.ErrAuthorizationPending,
	)
}

func nonPositiveAmount(op string, amount int64) error {
	return &domainErrors.GatewayError{
		Kind:    domainErrors.GatewayRejected,
		Message: fmt.Sprintf("gateway reported %s amount %d", op, amount),
	}
}

func missingGatewayReference(id string) error {
	return domainErrors.NewDomainError(
		"gateway_reference_missing",
		fmt.Sprintf("payment %s was never registered with the gateway; retry the create request", id),
		domainErrors.ErrInvalidStateTransition,
	)
}
