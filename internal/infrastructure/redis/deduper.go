package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records webhook delivery fingerprints so repeated deliveries across
// API replicas are recognized. It satisfies webhook.Deduper.
type Deduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewDeduper creates a Deduper whose claims expire after ttl.
func NewDeduper(client redis.UniversalClient, ttl time.Duration) *Deduper {
	return &Deduper{client: client, prefix: "webhook:seen:", ttl: ttl}
}

// Claim returns true if key was not yet seen and is now claimed.
func (d *Deduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim webhook delivery: %w", err)
	}
	return ok, nil
}

// Release forgets key so a failed delivery can be processed again on redelivery.
func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("release webhook delivery: %w", err)
	}
	return nil
}
