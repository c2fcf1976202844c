// Package errs defines the error kinds the sync pipeline distinguishes.
//
// Callers classify failures with errors.As:
//
//	var authErr *errs.AuthError
//	if errors.As(err, &authErr) {
//		// account needs to be reconnected
//	}
package errs

import (
	"fmt"
	"time"
)

// AuthError means the platform rejected the account credentials and the
// refresh grant could not recover them. The account must be reconnected.
type AuthError struct {
	AccountID int64
	Reason    string
	Err       error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed for account %d: %s", e.AccountID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (reconnect account)"
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError is returned when the platform keeps answering 429.
type RateLimitError struct {
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts", e.Attempts)
}

// TransientNetworkError wraps timeouts, resets and 5xx answers.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// ValidationError reports a platform payload that cannot be stored.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// PersistenceError wraps a failed write or transaction.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFoundError is returned by lookups that match no row.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// ConflictError reports an operation that cannot run in the current state,
// such as a sync already running for an account.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
