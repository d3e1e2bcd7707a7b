package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an upstream failure so callers can map it without inspecting error text.
type Kind int

const (
	// KindTransport covers network errors, timeouts, non-2xx replies and an open circuit.
	KindTransport Kind = iota + 1
	// KindLogic covers well-delivered replies whose payload has an unexpected shape.
	KindLogic
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindLogic:
		return "logic"
	default:
		return "unknown"
	}
}

// Sentinels wrapped by UpstreamError; match them with errors.Is.
var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrUpstreamRejected  = errors.New("upstream rejected request")
	ErrTimeout           = errors.New("request timeout")
	ErrNetwork           = errors.New("network error")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrMalformedResponse = errors.New("malformed response")
)

// UpstreamError is returned by every collaborator client. StatusCode is set when the
// upstream answered with a non-2xx status.
type UpstreamError struct {
	Upstream   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (HTTP %d): %v", e.Upstream, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Upstream, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AsUpstreamError returns the *UpstreamError in err's chain, if any.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

func transportError(upstream string, err error) *UpstreamError {
	switch {
	case isTimeout(err):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		// caller went away; keep the cancellation visible
	default:
		err = fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return &UpstreamError{Upstream: upstream, Kind: KindTransport, Err: err}
}

func logicError(upstream string, format string, args ...interface{}) *UpstreamError {
	return &UpstreamError{
		Upstream: upstream,
		Kind:     KindLogic,
		Err:      fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)),
	}
}

// statusError maps a non-2xx status to a transport UpstreamError. Returns nil for 2xx.
func statusError(upstream string, statusCode int) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	var cause error
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		cause = ErrInvalidAPIKey
	case statusCode == http.StatusNotFound:
		cause = ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		cause = ErrRateLimited
	case statusCode >= 500:
		cause = ErrUpstreamFailure
	default:
		cause = ErrUpstreamRejected
	}
	return &UpstreamError{Upstream: upstream, Kind: KindTransport, StatusCode: statusCode, Err: cause}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
