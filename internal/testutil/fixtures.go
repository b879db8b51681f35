package testutil

import (
	"context"
	"testing"

	"github.com/cassiomorais/paysecure/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func NewTestPayment(t *testing.T, orderID string, amount int64, currency string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(orderID, amount, currency, "idem-"+uuid.NewString())
	require.NoError(t, err)
	return p
}

// SeedPayment stores a payment registered with the gateway and walks it through
// events. It returns the stored result.
func SeedPayment(t *testing.T, store payment.Store, amount int64, events ...payment.Event) *payment.Payment {
	t.Helper()
	ctx := context.Background()

	p := NewTestPayment(t, "order-"+uuid.NewString()[:8], amount, "USD")
	stored, created, err := store.Create(ctx, p)
	require.NoError(t, err)
	require.True(t, created)

	stored, err = store.SetGatewayReference(ctx, stored.ID, "gw_"+stored.ID, "http://gateway.test/approve/gw_"+stored.ID)
	require.NoError(t, err)

	for _, e := range events {
		stored, err = store.ApplyTransition(ctx, stored.ID, payment.Transition{Event: e})
		require.NoError(t, err)
	}
	return stored
}
