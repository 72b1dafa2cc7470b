package session

import (
	"errors"
	"fmt"
)

// NotAuthenticatedError means the user has no credential on file. AuthURL is
// the authorization link the caller should surface so the user can connect.
type NotAuthenticatedError struct {
	UserID  string
	AuthURL string
}

func (e *NotAuthenticatedError) Error() string {
	return fmt.Sprintf("user %s not authenticated", e.UserID)
}

// ReauthRequiredError means a refresh failed permanently (revoked or expired
// grant). The stored record is kept; only the user re-authorizing via AuthURL
// can recover.
type ReauthRequiredError struct {
	UserID  string
	AuthURL string
	Cause   error
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("user %s must re-authorize: %v", e.UserID, e.Cause)
}

func (e *ReauthRequiredError) Unwrap() error { return e.Cause }

// ErrMonitorLimit is returned by Monitor.Start when the configured cap on
// concurrent per-user monitors is reached.
var ErrMonitorLimit = errors.New("monitor limit reached")
