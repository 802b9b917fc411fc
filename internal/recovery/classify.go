// Package recovery contains failures of individual surfaces: it classifies
// errors, retries transient ones, supervises rendering, reports incidents and
// substitutes synthetic data when live data cannot be fetched.
package recovery

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
)

// ErrTransient marks failures that may succeed if retried.
var ErrTransient = errors.New("transient failure")

type transientError struct{ err error }

func (e *transientError) Error() string        { return e.err.Error() }
func (e *transientError) Unwrap() error        { return e.err }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

// MarkTransient wraps err so Classify reports it as transient.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

var transientMessage = regexp.MustCompile(`(?i)network|timeout|timed out|connection|fetch|offline|unreachable`)

// Classify decides whether err is worth retrying. Cancellation is never transient.
func Classify(err error) domain.ErrorClass {
	if err == nil {
		return domain.ClassOther
	}
	if errors.Is(err, context.Canceled) {
		return domain.ClassOther
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ClassTransient
	}
	var coded StatusCoder
	if errors.As(err, &coded) {
		if TransientStatus(coded.StatusCode()) {
			return domain.ClassTransient
		}
		return domain.ClassOther
	}
	if transientMessage.MatchString(err.Error()) {
		return domain.ClassTransient
	}
	return domain.ClassOther
}

// IsTransient is shorthand for Classify(err) == ClassTransient.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == domain.ClassTransient
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return code >= 500 && code != http.StatusNotImplemented
}
