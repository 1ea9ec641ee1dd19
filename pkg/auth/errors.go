package auth

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCookies = errors.New("missing required cookies")
	ErrSignedOut      = errors.New("browser session is signed out")
	ErrNoToken        = errors.New("no token field in bootstrap response")
)

// AuthError covers every authentication failure: absent or expired
// cookies, a bootstrap redirect, or a missing token field. It is not
// retried automatically beyond the dispatcher's single
// re-authenticate-and-retry.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func authErr(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}
