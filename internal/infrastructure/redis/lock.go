package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// only the owner token may delete the key
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// PaymentLock keeps two workers from delivering order updates for the same payment
// at once, so the order system sees them in stream order. The TTL bounds how long a
// crashed holder can block the payment.
type PaymentLock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
	held   bool
}

func NewPaymentLock(client redis.UniversalClient, paymentID string, ttl time.Duration) *PaymentLock {
	return &PaymentLock{
		client: client,
		key:    "paysecure:lock:notify:" + paymentID,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire tries once; false means another holder has it.
func (l *PaymentLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire payment lock: %w", err)
	}
	l.held = ok
	return ok, nil
}

// Release is a no-op for a lock that was never taken. ErrLockNotHeld means the
// TTL ran out and someone else may have taken it meanwhile.
func (l *PaymentLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	res, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release payment lock: %w", err)
	}
	if res == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}
