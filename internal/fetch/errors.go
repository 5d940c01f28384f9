package fetch

import (
	"errors"
	"fmt"
)

// Fetch stages reported in Error.Stage.
const (
	StageRequest   = "request"
	StageTransport = "transport"
	StageStatus    = "status"
	StageRead      = "read"
)

var (
	ErrTooLarge  = errors.New("response exceeds size limit")
	ErrBadScheme = errors.New("only http and https URLs are allowed")
)

// Error represents a failed fetch
type Error struct {
	Stage  string // The stage where the error occurred
	URL    string // Requested URL
	Status int    // HTTP status, zero when no response was received
	Err    error  // Original error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Stage, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Stage {
	case StageTransport:
		return true
	case StageStatus:
		return e.Status >= 500 || e.Status == 429
	default:
		return false
	}
}

func newError(stage, url string, status int, err error) *Error {
	return &Error{
		Stage:  stage,
		URL:    url,
		Status: status,
		Err:    err,
	}
}
