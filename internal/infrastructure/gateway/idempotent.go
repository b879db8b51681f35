package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"golang.org/x/sync/singleflight"
)

// IdempotentClient makes sure one (operation, idempotency key) pair reaches the
// gateway at most once at a time. Concurrent duplicates share the in-flight call
// and completed results are replayed until they expire. Reusing a key with a
// different payload is rejected. Failed calls are never retried here.
type IdempotentClient struct {
	next  Client
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time

	mu        sync.Mutex
	inflight  map[string]string
	completed map[string]completedCall
}

type completedCall struct {
	fingerprint string
	result      any
	err         error
	expires     time.Time
}

const sweepThreshold = 1024

// NewIdempotentClient wraps next; completed results are kept for ttl.
func NewIdempotentClient(next Client, ttl time.Duration) *IdempotentClient {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotentClient{
		next:      next,
		ttl:       ttl,
		now:       time.Now,
		inflight:  make(map[string]string),
		completed: make(map[string]completedCall),
	}
}

func once[T any](ctx context.Context, c *IdempotentClient, op, key, fingerprint string, call func(context.Context) (*T, error)) (*T, error) {
	if key == "" {
		return nil, domainErrors.NewValidationError("idempotency_key", "required for "+op)
	}
	slot := op + ":" + key

	c.mu.Lock()
	if done, ok := c.completed[slot]; ok && c.now().Before(done.expires) {
		c.mu.Unlock()
		if done.fingerprint != fingerprint {
			return nil, keyReused(op)
		}
		if done.err != nil {
			return nil, done.err
		}
		return done.result.(*T), nil
	}
	if fp, ok := c.inflight[slot]; ok && fp != fingerprint {
		c.mu.Unlock()
		return nil, keyReused(op)
	}
	c.inflight[slot] = fingerprint
	c.mu.Unlock()

	// the shared call must not die with whichever caller happened to start it;
	// the guarded client below still bounds it with its own timeout
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(slot, func() (any, error) {
		// a call for this slot may have completed between the check above and here
		c.mu.Lock()
		if done, ok := c.completed[slot]; ok && c.now().Before(done.expires) && done.fingerprint == fingerprint {
			delete(c.inflight, slot)
			c.mu.Unlock()
			if done.err != nil {
				return nil, done.err
			}
			return done.result, nil
		}
		c.mu.Unlock()

		res, err := call(shared)

		c.mu.Lock()
		delete(c.inflight, slot)
		if cacheable(err) {
			c.completed[slot] = completedCall{
				fingerprint: fingerprint,
				result:      res,
				err:         err,
				expires:     c.now().Add(c.ttl),
			}
			c.sweepLocked()
		}
		c.mu.Unlock()

		return res, err
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*T), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domainErrors.NewGatewayError(domainErrors.GatewayTimeout, ctx.Err().Error())
		}
		return nil, ctx.Err()
	}
}

// cacheable reports whether an outcome is final. Transport failures and auth
// failures may be retried by the caller with the same key.
func cacheable(err error) bool {
	if err == nil {
		return true
	}
	return domainErrors.IsGatewayKind(err, domainErrors.GatewayRejected)
}

func (c *IdempotentClient) sweepLocked() {
	if len(c.completed) < sweepThreshold {
		return
	}
	now := c.now()
	for k, v := range c.completed {
		if !now.Before(v.expires) {
			delete(c.completed, k)
		}
	}
}

func keyReused(op string) error {
	return domainErrors.NewValidationError("idempotency_key",
		fmt.Sprintf("%s: %v", op, domainErrors.ErrIdempotencyKeyReused))
}

// IsKeyReuse reports whether err came from reusing a key with a different payload.
func IsKeyReuse(err error) bool {
	var ve *domainErrors.ValidationError
	return errors.As(err, &ve) && ve.Field == "idempotency_key"
}

func (c *IdempotentClient) CreatePayment(ctx context.Context, p CreatePaymentParams) (*CreatePaymentResult, error) {
	fp := fmt.Sprintf("%s|%s|%d|%s|%s", p.Reference, p.OrderID, p.Amount, p.Currency, p.CallbackURL)
	return once(ctx, c, "create_payment", p.IdempotencyKey, fp, func(ctx context.Context) (*CreatePaymentResult, error) {
		return c.next.CreatePayment(ctx, p)
	})
}

// GetStatus is read-only and passes straight through.
func (c *IdempotentClient) GetStatus(ctx context.Context, p GetStatusParams) (*StatusResult, error) {
	return c.next.GetStatus(ctx, p)
}

func (c *IdempotentClient) Capture(ctx context.Context, p CaptureParams) (*CaptureResult, error) {
	fp := fmt.Sprintf("%s|%d|%s", p.GatewayPaymentID, p.Amount, p.Currency)
	return once(ctx, c, "capture", p.IdempotencyKey, fp, func(ctx context.Context) (*CaptureResult, error) {
		return c.next.Capture(ctx, p)
	})
}

func (c *IdempotentClient) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	fp := fmt.Sprintf("%s|%d|%s", p.GatewayPaymentID, p.Amount, p.Currency)
	return once(ctx, c, "refund", p.IdempotencyKey, fp, func(ctx context.Context) (*RefundResult, error) {
		return c.next.Refund(ctx, p)
	})
}

func (c *IdempotentClient) Cancel(ctx context.Context, p CancelParams) (*CancelResult, error) {
	return once(ctx, c, "cancel", p.IdempotencyKey, p.GatewayPaymentID, func(ctx context.Context) (*CancelResult, error) {
		return c.next.Cancel(ctx, p)
	})
}
