package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPollInFlight is returned when a poll is requested while another poll
	// of the same integration instance has not finished yet.
	ErrPollInFlight = errors.New("poll already in flight")

	// ErrPollFailure wraps any failure of a single poll tick. Previously
	// published readings stay in place and are marked stale.
	ErrPollFailure = errors.New("poll failed")

	// ErrConnectivity wraps a failed handshake with a remote client.
	ErrConnectivity = errors.New("remote client unreachable")

	// ErrNotConnected is returned by remote clients used before Connect.
	ErrNotConnected = errors.New("remote client not connected")

	// ErrUnknownIntegration is returned when a request names no configured instance.
	ErrUnknownIntegration = errors.New("unknown integration")
)

// ConfigValidationError reports malformed configuration. It is raised before
// any network activity and is never retried.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func NewConfigValidationError(field, reason string) *ConfigValidationError {
	return &ConfigValidationError{Field: field, Reason: reason}
}

// IsConfigValidationError reports whether err is, or wraps, a ConfigValidationError.
func IsConfigValidationError(err error) bool {
	var cve *ConfigValidationError
	return errors.As(err, &cve)
}
