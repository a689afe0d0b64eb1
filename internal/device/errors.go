package device

import (
	"errors"
	"fmt"
)

// Response tokens the recovery server answers with.
const (
	TokenCommitAccepted = "commit_accepted"
	TokenUploadFail     = "fail"
	TokenMACSaved       = "success"
	TokenLayoutError    = "error"
)

// TransportError means the request never produced a usable answer: the
// connection failed, timed out, or the server replied with a non-200 status.
type TransportError struct {
	Endpoint string
	Status   int
	Cause    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: transport failure: %v", e.Endpoint, e.Cause)
	case e.Status != 0:
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Status)
	default:
		return fmt.Sprintf("%s: transport failure", e.Endpoint)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// RejectedError means the endpoint was reachable but answered with
// something other than its success token.
type RejectedError struct {
	Endpoint string
	Token    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected with %q", e.Endpoint, e.Token)
}

// IsTransport reports whether err carries a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejected reports whether err carries a *RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
