package client

import (
	"errors"
	"fmt"
)

// ErrAborted reports that a batch operation observed a cancelled context
// before issuing its next call. No partial network work happened for the
// aborted step.
var ErrAborted = errors.New("operation aborted")

// TransportError is a non-auth HTTP failure from the service. The
// dispatcher never retries these.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s returned status %d: %.200s", e.Endpoint, e.StatusCode, e.Body)
}

// PaginationError reports pagination parameters that can never produce a
// valid page, caught before any call is issued.
type PaginationError struct {
	Reason string
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination error: %s", e.Reason)
}
