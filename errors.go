package orderhub

import (
	"errors"
	"fmt"
)

// Standard OrderHub SDK error definitions

var (
	// ErrInvalidAddress indicates a malformed address or identifier.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidSignature indicates a malformed or non-recoverable signature.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidOrderID indicates a malformed order identifier.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidAmount indicates a malformed or non-positive amount string.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDeadlineOrder indicates the primary filler deadline does not
	// precede the order deadline.
	ErrDeadlineOrder = errors.New("deadline ordering violation")

	// ErrNoAccount indicates the signer capability has no usable account bound.
	ErrNoAccount = errors.New("no account bound to signer")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidKeystore indicates an invalid or undecryptable keystore file.
	ErrInvalidKeystore = errors.New("invalid keystore")

	// ErrInvalidMnemonic indicates an invalid BIP-39 mnemonic phrase.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrSigningFailed indicates the signer capability failed to produce a
	// signature.
	ErrSigningFailed = errors.New("signing failed")

	// ErrSubscriptionFailed indicates a pub/sub channel subscription was
	// rejected or never confirmed.
	ErrSubscriptionFailed = errors.New("channel subscription failed")

	// ErrTimeout indicates a quote request received no terminal event in time.
	ErrTimeout = errors.New("quote request timed out")

	// ErrQuoteRejected indicates the solver network rejected the request.
	ErrQuoteRejected = errors.New("quote request rejected")

	// ErrClosed indicates the helper has been disposed and may not be reused.
	ErrClosed = errors.New("client closed")

	// ErrSubmissionFailed indicates the bot endpoint rejected the order.
	ErrSubmissionFailed = errors.New("order submission failed")
)

// ErrorCode classifies an SDK failure per the error taxonomy.
type ErrorCode string

const (
	// ErrCodeValidation marks synchronous formatting and invariant failures.
	ErrCodeValidation ErrorCode = "validation_failed"

	// ErrCodeTransport marks subscription and publish failures.
	ErrCodeTransport ErrorCode = "transport_error"

	// ErrCodeProtocol marks remote failed statuses, error events and reply
	// timeouts.
	ErrCodeProtocol ErrorCode = "protocol_error"

	// ErrCodeSigning marks signer capability failures.
	ErrCodeSigning ErrorCode = "signing_failed"

	// ErrCodeSubmission marks bot endpoint rejections.
	ErrCodeSubmission ErrorCode = "submission_failed"

	// ErrCodeTimeout marks reply and confirmation timeouts.
	ErrCodeTimeout ErrorCode = "timeout"
)

// OrderHubError wraps an SDK failure with its taxonomy code and optional
// structured details.
type OrderHubError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any
}

// NewError creates an OrderHubError wrapping err.
func NewError(code ErrorCode, message string, err error) *OrderHubError {
	return &OrderHubError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func (e *OrderHubError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OrderHubError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair to the error and returns it for
// chaining.
func (e *OrderHubError) WithDetails(key string, value any) *OrderHubError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
