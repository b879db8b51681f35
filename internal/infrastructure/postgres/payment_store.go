package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, order_id, amount, currency, status, captured_amount, refunded_amount,
	idempotency_key, gateway_payment_id, approval_url, failure_reason, version,
	created_at, updated_at, authorized_at, captured_at, cancelled_at, failed_at`

// PaymentStore implements payment.Store using PostgreSQL.
// Transitions take a row lock (SELECT ... FOR UPDATE) so concurrent writers on the
// same payment queue behind each other while other payments proceed.
type PaymentStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPaymentStore creates a new PaymentStore.
func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts p; an existing idempotency key wins and is returned instead.
func (s *PaymentStore) Create(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		p.ID, p.OrderID, p.Amount, p.Currency, string(p.Status), p.CapturedAmount, p.RefundedAmount,
		p.IdempotencyKey, p.GatewayPaymentID, p.ApprovalURL, p.FailureReason, p.Version,
		p.CreatedAt, p.UpdatedAt, p.AuthorizedAt, p.CapturedAt, p.CancelledAt, p.FailedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert payment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := s.GetByIdempotencyKey(ctx, p.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return p.Clone(), true, nil
}

// Get retrieves a payment and its refunds by ID.
func (s *PaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return p, loadRefunds(ctx, s.pool, p)
}

// GetByIdempotencyKey retrieves a payment by idempotency key.
func (s *PaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, err
	}
	return p, loadRefunds(ctx, s.pool, p)
}

// ApplyTransition runs t against the row-locked payment inside one transaction.
func (s *PaymentStore) ApplyTransition(ctx context.Context, id string, t payment.Transition) (*payment.Payment, error) {
	return s.mutate(ctx, id, func(p *payment.Payment) error {
		return p.Apply(t, s.now())
	})
}

// SetGatewayReference records the gateway's identifiers for the payment.
func (s *PaymentStore) SetGatewayReference(ctx context.Context, id, gatewayPaymentID, approvalURL string) (*payment.Payment, error) {
	return s.mutate(ctx, id, func(p *payment.Payment) error {
		p.GatewayPaymentID = gatewayPaymentID
		p.ApprovalURL = approvalURL
		p.UpdatedAt = s.now()
		return nil
	})
}

// List lists payments with optional filters, newest first.
func (s *PaymentStore) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	f = f.Normalize()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.OrderID != "" {
		query += fmt.Sprintf(" AND order_id = $%d", argIdx)
		args = append(args, f.OrderID)
		argIdx++
	}
	if f.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *f.CreatedBefore)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, f.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	for _, p := range payments {
		if err := loadRefunds(ctx, s.pool, p); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

// Ping checks database connectivity for readiness probes.
func (s *PaymentStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// mutate loads the payment under a row lock, applies fn and writes the result back
// in the same read-committed transaction.
func (s *PaymentStore) mutate(ctx context.Context, id string, fn func(p *payment.Payment) error) (*payment.Payment, error) {
	var result *payment.Payment

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := loadRefunds(ctx, tx, p); err != nil {
			return err
		}

		known := len(p.Refunds)
		if err := fn(p); err != nil {
			return err
		}

		if err := update(ctx, tx, p); err != nil {
			return err
		}
		for _, r := range p.Refunds[known:] {
			if err := insertRefund(ctx, tx, r); err != nil {
				return err
			}
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func update(ctx context.Context, q querier, p *payment.Payment) error {
	tag, err := q.Exec(ctx,
		`UPDATE payments SET
		  status=$1, captured_amount=$2, refunded_amount=$3, gateway_payment_id=$4,
		  approval_url=$5, failure_reason=$6, version=$7, updated_at=$8,
		  authorized_at=$9, captured_at=$10, cancelled_at=$11, failed_at=$12
		 WHERE id=$13`,
		string(p.Status), p.CapturedAmount, p.RefundedAmount, p.GatewayPaymentID,
		p.ApprovalURL, p.FailureReason, p.Version, p.UpdatedAt,
		p.AuthorizedAt, p.CapturedAt, p.CancelledAt, p.FailedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

func insertRefund(ctx context.Context, q querier, r payment.Refund) error {
	_, err := q.Exec(ctx,
		`INSERT INTO refunds (id, payment_id, amount, reason, status, gateway_refund_id, idempotency_key, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.PaymentID, r.Amount, r.Reason, string(r.Status), r.GatewayRefundID, r.IdempotencyKey, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

func loadRefunds(ctx context.Context, q querier, p *payment.Payment) error {
	rows, err := q.Query(ctx,
		`SELECT id, payment_id, amount, reason, status, gateway_refund_id, idempotency_key, created_at
		 FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC, id ASC`, p.ID,
	)
	if err != nil {
		return fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	p.Refunds = nil
	for rows.Next() {
		var (
			r      payment.Refund
			status string
		)
		if err := rows.Scan(&r.ID, &r.PaymentID, &r.Amount, &r.Reason, &status, &r.GatewayRefundID, &r.IdempotencyKey, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan refund: %w", err)
		}
		r.Status = payment.RefundStatus(status)
		p.Refunds = append(p.Refunds, r)
	}
	return rows.Err()
}

// scanPayment scans a payment row from any source implementing the scanner interface.
func scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var status string
	err := s.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Currency, &status, &p.CapturedAmount, &p.RefundedAmount,
		&p.IdempotencyKey, &p.GatewayPaymentID, &p.ApprovalURL, &p.FailureReason, &p.Version,
		&p.CreatedAt, &p.UpdatedAt, &p.AuthorizedAt, &p.CapturedAt, &p.CancelledAt, &p.FailedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = payment.Status(status)
	return p, nil
}
