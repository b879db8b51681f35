package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAuthorizationPending   = errors.New("authorization pending at gateway")
	ErrDuplicateRefund        = errors.New("refund already recorded")

	// Gateway errors, one per GatewayErrorKind
	ErrProviderUnavailable = errors.New("payment gateway unavailable")
	ErrProviderTimeout     = errors.New("payment gateway timeout")
	ErrProviderRejected    = errors.New("payment rejected by gateway")
	ErrProviderAuth        = errors.New("payment gateway rejected credentials")

	// Idempotency errors
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different payload")

	// Webhook / auth errors
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = fmt.Errorf("invalid webhook signature: %w", ErrUnauthorized)

	// Lock errors
	ErrLockNotHeld = errors.New("lock not held")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")

	ErrInternal = errors.New("internal error")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IllegalTransitionError is returned when an event is applied to a payment whose
// current status is not a legal source for that event.
type IllegalTransitionError struct {
	PaymentID string
	Current   string
	Event     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to payment %s in status %s", e.Event, e.PaymentID, e.Current)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// NewIllegalTransition creates a new IllegalTransitionError.
func NewIllegalTransition(paymentID, current, event string) *IllegalTransitionError {
	return &IllegalTransitionError{PaymentID: paymentID, Current: current, Event: event}
}

// AsIllegalTransition extracts an IllegalTransitionError from err.
func AsIllegalTransition(err error) (*IllegalTransitionError, bool) {
	var ite *IllegalTransitionError
	if errors.As(err, &ite) {
		return ite, true
	}
	return nil, false
}

// GatewayErrorKind classifies upstream gateway failures.
type GatewayErrorKind string

const (
	GatewayNetwork  GatewayErrorKind = "network"
	GatewayAuth     GatewayErrorKind = "auth"
	GatewayRejected GatewayErrorKind = "rejected_by_gateway"
	GatewayTimeout  GatewayErrorKind = "timeout"
)

// GatewayError is the only error shape the gateway client returns.
type GatewayError struct {
	Kind       GatewayErrorKind
	Message    string
	StatusCode int
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	switch e.Kind {
	case GatewayTimeout:
		return ErrProviderTimeout
	case GatewayAuth:
		return ErrProviderAuth
	case GatewayRejected:
		return ErrProviderRejected
	default:
		return ErrProviderUnavailable
	}
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(kind GatewayErrorKind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

// IsGatewayKind reports whether err is a GatewayError of the given kind.
func IsGatewayKind(err error, kind GatewayErrorKind) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == kind
}
