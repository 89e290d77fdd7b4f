package harbourmaster

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable is returned when the build service is unreachable
	// or answers with a 5xx status.
	ErrUpstreamUnavailable = errors.New("build service unavailable")

	// ErrWhitelistRejected is returned when the build service refuses a
	// cleanup whitelist.
	ErrWhitelistRejected = errors.New("whitelist not accepted by harbourmaster")

	// ErrBuildFailed is returned when an image build finished without the
	// Docker success marker in its output.
	ErrBuildFailed = errors.New("could not build image from dockerfile")
)

// StatusError carries a non-success status the build service returned so it
// can be passed through to API clients.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// upstreamError wraps ErrUpstreamUnavailable with the failing operation and
// the diagnostic body or transport error.
type upstreamError struct {
	op     string
	status int
	detail string
}

func (e *upstreamError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("%s: %s: status %d: %s", e.op, ErrUpstreamUnavailable, e.status, e.detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.op, ErrUpstreamUnavailable, e.detail)
}

func (e *upstreamError) Unwrap() error { return ErrUpstreamUnavailable }
