package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/cassiomorais/paysecure/internal/domain/payment"
)

var (
	paymentsBucket = []byte("payments")
	keysBucket     = []byte("payment_idempotency_keys")
)

// PaymentStore implements payment.Store on an embedded BoltDB file.
// Bolt allows a single writer at a time, so every transition is serialized by the
// write transaction itself.
type PaymentStore struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the buckets exist.
func Open(path string) (*PaymentStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{paymentsBucket, keysBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &PaymentStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database file lock.
func (s *PaymentStore) Close() error {
	return s.db.Close()
}

// Create persists p only if its idempotency key is unused.
func (s *PaymentStore) Create(_ context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	var (
		result  *payment.Payment
		created bool
	)

	err := s.db.Update(func(tx *bolt.Tx) error {
		if id := tx.Bucket(keysBucket).Get([]byte(p.IdempotencyKey)); id != nil {
			existing, err := get(tx, string(id))
			result = existing
			return err
		}

		if err := put(tx, p); err != nil {
			return err
		}
		if err := tx.Bucket(keysBucket).Put([]byte(p.IdempotencyKey), []byte(p.ID)); err != nil {
			return err
		}
		result = p.Clone()
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create payment: %w", err)
	}
	return result, created, nil
}

// Get retrieves a payment by ID.
func (s *PaymentStore) Get(_ context.Context, id string) (*payment.Payment, error) {
	var p *payment.Payment
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		p, err = get(tx, id)
		return err
	})
	return p, err
}

// GetByIdempotencyKey retrieves a payment by idempotency key.
func (s *PaymentStore) GetByIdempotencyKey(_ context.Context, key string) (*payment.Payment, error) {
	var p *payment.Payment
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(keysBucket).Get([]byte(key))
		if id == nil {
			return domainErrors.ErrPaymentNotFound
		}
		var err error
		p, err = get(tx, string(id))
		return err
	})
	return p, err
}

// ApplyTransition loads, transitions and stores the payment in one write transaction.
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

// List scans every record; acceptable for the embedded single-node deployments this driver targets.
func (s *PaymentStore) List(_ context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	f = f.Normalize()
	var out []*payment.Payment

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(paymentsBucket).ForEach(func(_, v []byte) error {
			p, err := decode(v)
			if err != nil {
				return err
			}
			if f.Matches(p) {
				out = append(out, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *PaymentStore) mutate(id string, fn func(p *payment.Payment) error) (*payment.Payment, error) {
	var result *payment.Payment
	err := s.db.Update(func(tx *bolt.Tx) error {
		p, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		result = p
		return put(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

func get(tx *bolt.Tx, id string) (*payment.Payment, error) {
	v := tx.Bucket(paymentsBucket).Get([]byte(id))
	if v == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return decode(v)
}

func put(tx *bolt.Tx, p *payment.Payment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	return tx.Bucket(paymentsBucket).Put([]byte(p.ID), data)
}

func decode(v []byte) (*payment.Payment, error) {
	var p payment.Payment
	dec := json.NewDecoder(bytes.NewReader(v))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	return &p, nil
}
