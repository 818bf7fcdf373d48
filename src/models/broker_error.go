package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed taxonomy every adapter maps vendor failures into.
// Calling code branches on kinds, never on vendor-specific strings.
type ErrorKind string

const (
	ErrorKindConfiguration     ErrorKind = "CONFIGURATION"
	ErrorKindValidation        ErrorKind = "VALIDATION"
	ErrorKindAuthentication    ErrorKind = "AUTHENTICATION"
	ErrorKindTokenExpired      ErrorKind = "TOKEN_EXPIRED"
	ErrorKindRateLimited       ErrorKind = "RATE_LIMITED"
	ErrorKindOrderRejected     ErrorKind = "ORDER_REJECTED"
	ErrorKindOrderNotFound     ErrorKind = "ORDER_NOT_FOUND"
	ErrorKindTimeout           ErrorKind = "TIMEOUT"
	ErrorKindVendorUnavailable ErrorKind = "VENDOR_UNAVAILABLE"
	ErrorKindIntegrity         ErrorKind = "INTEGRITY"
)

type BrokerError struct {
	Kind    ErrorKind
	Broker  string
	Message string

	// RetryAfter is set on RATE_LIMITED errors so callers can back off
	// instead of busy-retrying.
	RetryAfter time.Duration

	// Uncertain marks failures where the vendor may have accepted the
	// operation despite the error (e.g. a timed-out createOrder). Callers
	// must reconcile via order status before retrying.
	Uncertain bool

	// VendorReason carries the vendor's raw rejection text for display.
	VendorReason string

	Err error
}

func (e *BrokerError) Error() string {
	if e.VendorReason != "" {
		return fmt.Sprintf("%s [%s]: %s (vendor: %s)", e.Broker, e.Kind, e.Message, e.VendorReason)
	}

	return fmt.Sprintf("%s [%s]: %s", e.Broker, e.Kind, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the failure is expected to clear on its own.
// Transient failures are safe to retry for read-only operations.
func (e *BrokerError) IsTransient() bool {
	switch e.Kind {
	case ErrorKindTimeout, ErrorKindVendorUnavailable, ErrorKindRateLimited:
		return true
	default:
		return false
	}
}

func NewConfigurationError(broker, message string) *BrokerError {
	return &BrokerError{Kind: ErrorKindConfiguration, Broker: broker, Message: message}
}

func NewValidationError(broker, message string) *BrokerError {
	return &BrokerError{Kind: ErrorKindValidation, Broker: broker, Message: message}
}

func NewAuthenticationError(broker, message string) *BrokerError {
	return &BrokerError{Kind: ErrorKindAuthentication, Broker: broker, Message: message}
}

func NewTokenExpiredError(broker, message string) *BrokerError {
	return &BrokerError{Kind: ErrorKindTokenExpired, Broker: broker, Message: message}
}

func NewRateLimitedError(broker, message string, retryAfter time.Duration) *BrokerError {
	return &BrokerError{Kind: ErrorKindRateLimited, Broker: broker, Message: message, RetryAfter: retryAfter}
}

func NewOrderRejectedError(broker, message, vendorReason string) *BrokerError {
	return &BrokerError{Kind: ErrorKindOrderRejected, Broker: broker, Message: message, VendorReason: vendorReason}
}

func NewOrderNotFoundError(broker, orderID string) *BrokerError {
	return &BrokerError{Kind: ErrorKindOrderNotFound, Broker: broker, Message: fmt.Sprintf("order %s not found", orderID)}
}

func NewTimeoutError(broker, message string, err error) *BrokerError {
	return &BrokerError{Kind: ErrorKindTimeout, Broker: broker, Message: message, Err: err}
}

func NewVendorUnavailableError(broker, message string) *BrokerError {
	return &BrokerError{Kind: ErrorKindVendorUnavailable, Broker: broker, Message: message}
}

func NewIntegrityError(message string, err error) *BrokerError {
	return &BrokerError{Kind: ErrorKindIntegrity, Message: message, Err: err}
}

// ErrorKindOf extracts the taxonomy kind from any error in the chain, or ""
// when the error did not originate from an adapter.
func ErrorKindOf(err error) ErrorKind {
	var brokerErr *BrokerError
	if errors.As(err, &brokerErr) {
		return brokerErr.Kind
	}

	return ""
}

// IsTransient reports whether any error in the chain is a transient
// BrokerError.
func IsTransient(err error) bool {
	var brokerErr *BrokerError
	if errors.As(err, &brokerErr) {
		return brokerErr.IsTransient()
	}

	return false
}
