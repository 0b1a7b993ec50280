package model

import (
	"context"
	"errors"
	"net"
)

// Error taxonomy shared by the crawler and the lookup pipeline.
//
// Design decision: Failures are classified by wrapping one of these sentinels
// rather than by concrete error types. Any layer can add context with
// fmt.Errorf("...: %w", ErrX) and callers still route on errors.Is.
var (
	// ErrTransientNetwork marks a retryable failure such as a dropped
	// connection, a timeout or a 5xx/429 response.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrMalformedResponse marks a response that cannot be used. Items that
	// fail this way are quarantined for manual review.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrConfiguration marks a fatal setup problem, for example a credential
	// count that does not match the partitioned work.
	ErrConfiguration = errors.New("configuration error")

	// ErrContentNotYetPublished marks a page without a count marker. It is
	// expected and skipped, never reported as a failure.
	ErrContentNotYetPublished = errors.New("content not yet published")
)

// ErrorKind is the taxonomy bucket of an error.
type ErrorKind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown ErrorKind = iota
	// KindTransient is a retryable network failure.
	KindTransient
	// KindMalformed is a non-retryable response problem.
	KindMalformed
	// KindConfiguration is a fatal configuration problem.
	KindConfiguration
	// KindNotPublished is an expected skip.
	KindNotPublished
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindConfiguration:
		return "configuration"
	case KindNotPublished:
		return "not_published"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the taxonomy.
// Raw network errors and deadline expiry count as transient even when no
// layer wrapped them.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrContentNotYetPublished):
		return KindNotPublished
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrTransientNetwork):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsRetryable reports whether the error should be retried by the coordinator.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}
