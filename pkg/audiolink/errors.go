package audiolink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrEmptyResult is returned when a provider answered but listed no audio-only formats.
	// Age-restricted or region-locked media commonly produce it.
	ErrEmptyResult = errors.New("no audio formats in provider response")
	// ErrUnknownFamily is returned by the registry for a family it was not built with.
	ErrUnknownFamily = errors.New("unknown provider family")
)

// TransportErrorKind distinguishes the ways an outbound request can fail.
type TransportErrorKind string

const (
	// ConnectFailed covers DNS, dial, TLS and read failures.
	ConnectFailed TransportErrorKind = "connect_failed"
	// Timeout means the per-attempt timeout expired.
	Timeout TransportErrorKind = "timeout"
	// BadStatus means the host answered with a non-2xx status.
	BadStatus TransportErrorKind = "bad_status"
)

// TransportError is returned when an outbound request could not produce a body.
type TransportError struct {
	Kind   TransportErrorKind
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Kind == BadStatus {
		return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.URL)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseErrorKind distinguishes schema violations.
type ParseErrorKind string

const (
	// UnexpectedShape means the body was not the JSON shape the family promises.
	UnexpectedShape ParseErrorKind = "unexpected_shape"
)

// ParseError is returned when a provider body does not match its family schema.
type ParseError struct {
	Kind   ParseErrorKind
	Family string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s response: %s: %v", e.Family, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AllRelaysFailedError is returned by the relay fetcher when the direct request
// and every relay failed.
type AllRelaysFailedError struct {
	Target string
	Tried  int
	Last   error
}

func (e *AllRelaysFailedError) Error() string {
	return fmt.Sprintf("direct fetch and %d relays failed for %s: %v", e.Tried, e.Target, e.Last)
}

func (e *AllRelaysFailedError) Unwrap() error {
	return e.Last
}

// ExhaustedError is the aggregate failure returned when every configured
// (family, mirror) pair failed.
type ExhaustedError struct {
	ID       string
	Reason   Outcome
	Attempts []AttemptRecord
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("resolve %s: all providers exhausted (%s) before any attempt", e.ID, e.Reason)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Backend()+" "+string(a.Outcome))
	}
	return fmt.Sprintf("resolve %s: all providers exhausted (%s): %s", e.ID, e.Reason, strings.Join(parts, ", "))
}

// AttemptedBackends lists every attempted backend in attempt order.
func (e *ExhaustedError) AttemptedBackends() []string {
	backends := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		backends = append(backends, a.Backend())
	}
	return backends
}

// LastErrors maps each attempted backend to its failure reason.
func (e *ExhaustedError) LastErrors() map[string]string {
	reasons := make(map[string]string, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons[a.Backend()] = a.Reason()
	}
	return reasons
}

// classify maps an adapter error onto an attempt outcome.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrEmptyResult) {
		return OutcomeNoCandidates
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return OutcomeParseError
	}

	if errors.Is(err, context.Canceled) {
		return OutcomeCanceled
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.Kind == Timeout {
		return OutcomeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	return OutcomeTransportError
}
