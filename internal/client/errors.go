package client

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by gateways and the reconciler.
var (
	ErrNotFound        = errors.New("client: link does not exist")
	ErrUnauthenticated = errors.New("client: sign in to like")
	ErrInvalidInput    = errors.New("client: invalid request")
	ErrTransient       = errors.New("client: engagement temporarily unavailable")

	// ErrToggleInFlight is returned when a toggle on the same link is still unresolved.
	ErrToggleInFlight = errors.New("client: toggle already in flight")
	// ErrDegraded means the like was kept locally because the server could not be reached.
	ErrDegraded = errors.New("client: like kept locally until the server is reachable")
)

// GatewayError describes a failed engagement request.
type GatewayError struct {
	Kind       error
	Status     int
	Message    string
	LikesCount *int64
}

func (e *GatewayError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.Status, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Kind
}

// BestKnownLikes extracts the like count a failed response carried, if any.
func BestKnownLikes(err error) (int64, bool) {
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) || gatewayErr.LikesCount == nil {
		return 0, false
	}
	return *gatewayErr.LikesCount, true
}

// IsRetryable reports whether a second transport attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// isCallerError reports failures a retry or a healthier server cannot fix.
func isCallerError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrInvalidInput)
}
