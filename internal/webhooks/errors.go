package webhooks

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrMissingSignature  = errors.New("missing signature")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnknownEndpoint   = errors.New("unknown endpoint")
	ErrDownstreamTimeout = errors.New("downstream timeout")
	ErrDownstreamFailure = errors.New("downstream failure")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// RateLimitError carries the client's quota alongside ErrRateLimited.
type RateLimitError struct {
	Quota Quota
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter is the time left until the client's window resets, rounded up
// to whole seconds.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.Quota.Reset.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}

// Failure is the caller-facing rendering of an error.
type Failure struct {
	Status  int
	Code    string
	Message string
}

// Classify maps an error to the response the caller sees. Internal detail
// never leaves this function; unknown errors become a generic 500.
func Classify(err error) Failure {
	switch {
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrSignatureMismatch):
		return Failure{http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid signature"}
	case errors.Is(err, ErrRateLimited):
		return Failure{http.StatusTooManyRequests, "RATE_LIMITED", "rate limited"}
	case errors.Is(err, ErrUnknownEndpoint):
		return Failure{http.StatusNotFound, "UNKNOWN_ENDPOINT", "unknown endpoint"}
	case errors.Is(err, ErrDownstreamTimeout):
		return Failure{http.StatusServiceUnavailable, "DOWNSTREAM_TIMEOUT", "downstream unavailable"}
	case errors.Is(err, ErrDownstreamFailure):
		return Failure{http.StatusServiceUnavailable, "DOWNSTREAM_FAILURE", "downstream unavailable"}
	case errors.Is(err, ErrMalformedPayload):
		return Failure{http.StatusBadRequest, "MALFORMED_PAYLOAD", "malformed payload"}
	default:
		return Failure{http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"}
	}
}
