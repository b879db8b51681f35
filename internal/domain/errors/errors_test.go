package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "authorization_pending",
				Message: "payment not yet authorized",
				Err:     ErrAuthorizationPending,
			},
			expected: "payment not yet authorized: authorization pending at gateway",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "cannot process payment in current state",
			},
			expected: "cannot process payment in current state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	err := NewDomainError("pending", "still pending", ErrAuthorizationPending)
	assert.ErrorIs(t, err, ErrAuthorizationPending)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be greater than 0")

	assert.Equal(t, "validation failed for field amount: must be greater than 0", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)

	wrapped := fmt.Errorf("create payment: %w", err)
	var ve *ValidationError
	require.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "amount", ve.Field)
}

func TestIllegalTransitionError(t *testing.T) {
	err := NewIllegalTransition("pay_1", "CAPTURED", "cancel")

	assert.Equal(t, "cannot apply cancel to payment pay_1 in status CAPTURED", err.Error())
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	got, ok := AsIllegalTransition(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, "CAPTURED", got.Current)

	_, ok = AsIllegalTransition(ErrPaymentNotFound)
	assert.False(t, ok)
}

func TestGatewayError_UnwrapsToKindSentinel(t *testing.T) {
	tests := []struct {
		kind     GatewayErrorKind
		sentinel error
	}{
		{GatewayNetwork, ErrProviderUnavailable},
		{GatewayTimeout, ErrProviderTimeout},
		{GatewayAuth, ErrProviderAuth},
		{GatewayRejected, ErrProviderRejected},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewGatewayError(tt.kind, "boom")
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, IsGatewayKind(fmt.Errorf("call: %w", err), tt.kind))
		})
	}
}

func TestGatewayError_Message(t *testing.T) {
	err := &GatewayError{Kind: GatewayRejected, Message: "payment cannot be captured", StatusCode: 400}
	assert.Equal(t, "gateway rejected_by_gateway (status 400): payment cannot be captured", err.Error())

	err = NewGatewayError(GatewayTimeout, "deadline exceeded")
	assert.Equal(t, "gateway timeout: deadline exceeded", err.Error())
}

func TestInvalidSignature_IsUnauthorized(t *testing.T) {
	assert.ErrorIs(t, ErrInvalidSignature, ErrUnauthorized)
}

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrPaymentNotFound, ErrInvalidStateTransition,
		ErrAuthorizationPending, ErrDuplicateRefund, ErrProviderUnavailable, ErrProviderTimeout,
		ErrProviderRejected, ErrProviderAuth, ErrIdempotencyKeyReused, ErrUnauthorized,
		ErrLockNotHeld, ErrValidationFailed, ErrInternal,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}
