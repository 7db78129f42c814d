package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrGenerationUnavailable marks a provider outage: timeout, network
	// failure, rate limiting, 5xx, or an open circuit. Callers may retry
	// later.
	ErrGenerationUnavailable = errors.New("llm: generation unavailable")

	// ErrMalformedOutput marks output that could not be decoded into the
	// requested structure.
	ErrMalformedOutput = errors.New("llm: malformed output")
)

// HTTPError is a non-2xx provider response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrGenerationUnavailable for transient
// statuses.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return ErrGenerationUnavailable
	}
	return nil
}

// classify wraps transport-level failures with ErrGenerationUnavailable.
// Caller cancellation is passed through untouched.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGenerationUnavailable) || errors.Is(err, ErrMalformedOutput) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", provider, ErrGenerationUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", provider, ErrGenerationUnavailable, err)
	}
	return err
}

// IsUnavailable reports whether err is a transient provider outage.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrGenerationUnavailable)
}
