package wire

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedBody = errors.New("malformed response body")
	ErrMissingField  = errors.New("missing required field")
)

// ProtocolError indicates the external wire contract was violated: an
// unparseable body, a missing required field, or an unrecognized shape.
// It is never retried; it usually means the service changed its format.
type ProtocolError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("protocol error (%s): %s", e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErr(endpoint, reason string, err error) *ProtocolError {
	return &ProtocolError{Endpoint: endpoint, Reason: reason, Err: err}
}
