package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a terminal forecast failure.
type ErrorKind string

const (
	KindInvalidMetric       ErrorKind = "invalid_metric"
	KindInvalidTimestamp    ErrorKind = "invalid_timestamp"
	KindNoHistory           ErrorKind = "no_history"
	KindBundleNotFound      ErrorKind = "bundle_not_found"
	KindMalformedBundle     ErrorKind = "malformed_bundle"
	KindHorizonTooSmall     ErrorKind = "horizon_too_small"
	KindHorizonTooLarge     ErrorKind = "horizon_too_large"
	KindInsufficientHistory ErrorKind = "insufficient_history"
)

var (
	ErrInvalidMetric       = errors.New("invalid metric")
	ErrInvalidTimestamp    = errors.New("invalid timestamp")
	ErrNoHistory           = errors.New("no history")
	ErrBundleNotFound      = errors.New("bundle not found")
	ErrMalformedBundle     = errors.New("malformed bundle")
	ErrHorizonTooSmall     = errors.New("horizon too small")
	ErrHorizonTooLarge     = errors.New("horizon too large")
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInvalidArgument marks caller input errors outside the forecast pipeline.
	ErrInvalidArgument = errors.New("invalid argument")
)

var sentinels = map[ErrorKind]error{
	KindInvalidMetric:       ErrInvalidMetric,
	KindInvalidTimestamp:    ErrInvalidTimestamp,
	KindNoHistory:           ErrNoHistory,
	KindBundleNotFound:      ErrBundleNotFound,
	KindMalformedBundle:     ErrMalformedBundle,
	KindHorizonTooSmall:     ErrHorizonTooSmall,
	KindHorizonTooLarge:     ErrHorizonTooLarge,
	KindInsufficientHistory: ErrInsufficientHistory,
}

// ForecastError is returned by every stage of the forecast pipeline.
// errors.Is matches it against the sentinel of its Kind.
type ForecastError struct {
	Kind    ErrorKind
	Message string

	// Missing lists feature columns that could not be computed.
	Missing []string
	// Samples holds offending raw values for timestamp errors.
	Samples []string
	// Requested and Bound describe horizon errors, in minutes.
	Requested int
	Bound     int

	Err error
}

// NewForecastError creates an error of the given kind.
func NewForecastError(kind ErrorKind, msg string) *ForecastError {
	return &ForecastError{Kind: kind, Message: msg}
}

func (e *ForecastError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ForecastError) Unwrap() error { return e.Err }

// Is matches the sentinel error of the same kind.
func (e *ForecastError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// WithError wraps an underlying cause.
func (e *ForecastError) WithError(err error) *ForecastError {
	e.Err = err
	return e
}

// KindOf extracts the kind of a forecast error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var fe *ForecastError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// InvalidTimestampError reports unparseable timestamps with sample offenders.
func InvalidTimestampError(what string, samples []string) *ForecastError {
	quoted := make([]string, len(samples))
	for i, s := range samples {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return &ForecastError{
		Kind:    KindInvalidTimestamp,
		Message: fmt.Sprintf("invalid %s: %s", what, strings.Join(quoted, ", ")),
		Samples: samples,
	}
}

// InvalidArgumentf builds a caller input error.
func InvalidArgumentf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, a...))
}
