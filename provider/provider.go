package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CompletionEndpoint is the one contract every backend adapter satisfies.
// The router never branches on the concrete type, only on tier position.
type CompletionEndpoint interface {
	// Complete sends the prompt and returns the completion text. Failures
	// are returned as *Error so the router can classify them.
	Complete(ctx context.Context, prompt string) (string, error)

	// Provider returns the tier identifier this endpoint serves, e.g.
	// "gemini-a".
	Provider() string

	Shutdown() error
}

// ErrorKind is the failure taxonomy exposed upward by every adapter.
type ErrorKind string

const (
	RateLimited  ErrorKind = "rate_limited"
	BillingError ErrorKind = "billing_error"
	Timeout      ErrorKind = "timeout"
	HardFailure  ErrorKind = "hard_failure"
)

// Error is a typed adapter failure carrying an HTTP-status-like code and a
// diagnostic message.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// FromStatus builds an Error from an upstream HTTP status and response body.
func FromStatus(statusCode int, body string) *Error {
	kind := HardFailure
	switch statusCode {
	case http.StatusTooManyRequests:
		kind = RateLimited
	case http.StatusPaymentRequired:
		kind = BillingError
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = Timeout
	}
	return &Error{Kind: kind, StatusCode: statusCode, Message: body}
}

// FromErr normalizes an arbitrary error into an *Error. Context deadlines
// and errors that advertise a Timeout() method become Timeout; messages that
// read like quota complaints become RateLimited; everything else is a hard
// failure.
func FromErr(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Message: err.Error()}
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return &Error{Kind: Timeout, Message: err.Error()}
	}
	if LooksLikeQuotaError(err.Error()) {
		return &Error{Kind: RateLimited, StatusCode: http.StatusTooManyRequests, Message: err.Error()}
	}
	return &Error{Kind: HardFailure, Message: err.Error()}
}

// KindOf classifies any error into the adapter failure taxonomy.
func KindOf(err error) ErrorKind {
	return FromErr(err).Kind
}

// LooksLikeQuotaError reports whether an upstream message reads like a rate
// limit or quota exhaustion. Some SDKs bury the status code in free text.
func LooksLikeQuotaError(message string) bool {
	lowered := strings.ToLower(message)
	return strings.Contains(lowered, "429") ||
		strings.Contains(lowered, "quota") ||
		strings.Contains(lowered, "rate limit") ||
		strings.Contains(lowered, "exceeded") ||
		strings.Contains(lowered, "exhausted") ||
		strings.Contains(lowered, "throughput")
}
