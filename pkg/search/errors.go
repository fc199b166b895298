package search

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrUnknownCore is returned when a core name is not configured or the
	// engine does not host it.
	ErrUnknownCore = errors.New("unknown search core")

	// ErrWrongCoreKind is returned when an operation targets a core that
	// holds a different kind of document.
	ErrWrongCoreKind = errors.New("core holds a different document kind")

	// ErrTransient marks failures worth retrying: timeouts, 5xx responses,
	// rate limiting and dropped connections.
	ErrTransient = errors.New("transient search engine failure")

	// ErrBackendUnavailable is returned when the engine cannot be reached at
	// all during setup.
	ErrBackendUnavailable = errors.New("search backend unavailable")

	// ErrRejected is returned for requests the engine refused outright.
	ErrRejected = errors.New("request rejected by search engine")

	// ErrMissingKey is reported for documents lacking their core's key field.
	ErrMissingKey = errors.New("document is missing its key field")
)

// Error represents a search engine error with the operation that failed.
type Error struct {
	Op  string // Operation that failed (e.g., "BulkUpsert", "Query")
	Err error  // Underlying error
	Msg string // Additional context
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Op + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried. Context deadline
// expiry and network timeouts count as transient; cancellation does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
