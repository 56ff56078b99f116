package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationKind identifies why an amount or currency was rejected.
type ValidationKind string

const (
	InvalidFormat       ValidationKind = "invalid_format"
	NotPositive         ValidationKind = "not_positive"
	ExceedsMaximum      ValidationKind = "exceeds_maximum"
	LimitExceeded       ValidationKind = "limit_exceeded"
	UnsupportedCurrency ValidationKind = "unsupported_currency"
)

// ValidationError is returned before any network call is made.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches another ValidationError of the same kind, so the sentinels
// below can be used with errors.Is.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidFormat       = &ValidationError{Kind: InvalidFormat, Message: "invalid amount format"}
	ErrNotPositive         = &ValidationError{Kind: NotPositive, Message: "amount must be positive"}
	ErrExceedsMaximum      = &ValidationError{Kind: ExceedsMaximum, Message: "amount exceeds maximum"}
	ErrLimitExceeded       = &ValidationError{Kind: LimitExceeded, Message: "amount exceeds transfer limit"}
	ErrUnsupportedCurrency = &ValidationError{Kind: UnsupportedCurrency, Message: "unsupported currency"}
)

// StructuredError is a single entry of the errors array in an error body.
type StructuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"traceId,omitempty"`
}

// TransportError wraps connection-level failures (dial, TLS, timeouts).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is returned for HTTP responses with status >= 400. A zero
// Status means the error did not come from an HTTP response but was
// wrapped into this kind by the caller.
type UpstreamError struct {
	Status  int
	Message string
	Errors  []StructuredError
	Err     error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrorCodes returns the codes of the structured errors.
func (e *UpstreamError) ErrorCodes() []string {
	codes := make([]string, 0, len(e.Errors))
	for _, se := range e.Errors {
		codes = append(codes, se.Code)
	}
	return codes
}

// TraceIDs returns the non-empty trace ids of the structured errors.
func (e *UpstreamError) TraceIDs() []string {
	var ids []string
	for _, se := range e.Errors {
		if se.TraceID != "" {
			ids = append(ids, se.TraceID)
		}
	}
	return ids
}

// IsAuthFailure reports whether the bank rejected the credentials.
func (e *UpstreamError) IsAuthFailure() bool {
	return e.Status == 401 || e.Status == 403
}

// RateLimitError is an UpstreamError for HTTP 429.
type RateLimitError struct {
	*UpstreamError
	RetryAfter time.Duration
}

func (e *RateLimitError) Unwrap() error {
	return e.UpstreamError
}

// BackoffReason names the kind of backoff window that is active.
type BackoffReason string

const (
	BackoffRateLimit   BackoffReason = "rate_limit"
	BackoffAuthFailure BackoffReason = "auth_failure"
)

// BackoffActiveError is returned locally, without a network call, while a
// backoff window is open.
type BackoffActiveError struct {
	Reason    BackoffReason
	Until     time.Time
	Remaining time.Duration
}

func (e *BackoffActiveError) Error() string {
	return fmt.Sprintf("%s backoff active, %d seconds remaining before next attempt",
		strings.ReplaceAll(string(e.Reason), "_", " "), int(e.Remaining.Seconds()))
}

// IsAPIError reports whether err belongs to the API error kinds
// (upstream, rate limit or transport).
func IsAPIError(err error) bool {
	var upstream *UpstreamError
	var transport *TransportError
	return errors.As(err, &upstream) || errors.As(err, &transport)
}
