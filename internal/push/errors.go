package push

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Predefined errors.
var (
	// ErrMissingTokenProvider is returned by SetUserID when Start was not given a TokenProvider.
	ErrMissingTokenProvider = errors.New("token provider is not configured")

	// ErrUserIDConflict is returned when a different user id is already bound to the device.
	ErrUserIDConflict = errors.New("a different user id is already set for this device; clear all state first")

	// ErrMissingDeviceOrInstanceID is returned when an operation needs a registered
	// device and a started instance but one of them is absent.
	ErrMissingDeviceOrInstanceID = errors.New("device id or instance id is missing")

	// ErrMissingDeviceToken is returned by ClearAllState when no device token was
	// ever supplied, so the device cannot be re-registered.
	ErrMissingDeviceToken = errors.New("device token is missing")

	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("push client is closed")
)

// InvalidInterestError is returned when an interest name does not match InterestNamePattern.
type InvalidInterestError struct {
	Name string
}

func (e *InvalidInterestError) Error() string {
	return fmt.Sprintf("invalid interest name %q: must match %s", e.Name, InterestNamePattern)
}

// MultipleInvalidInterestsError is returned by SetSubscriptions when one or more
// names are invalid. Nothing is applied in that case.
type MultipleInvalidInterestsError struct {
	Names []string
}

func (e *MultipleInvalidInterestsError) Error() string {
	return fmt.Sprintf("invalid interest names [%s]: must match %s", strings.Join(e.Names, ", "), InterestNamePattern)
}

// NetworkError wraps a failed call to the push vendor.
type NetworkError struct {
	// Op is the vendor operation, e.g. "subscribe".
	Op string

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Err is the underlying transport error, if any.
	Err error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("push %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("push %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("push %s: unexpected status %d (%s)", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is, or wraps, a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
