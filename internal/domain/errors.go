package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrBusy              = errors.New("request already in flight")
	ErrStaleFlow         = errors.New("stale flow version")
	ErrMissingDetails    = errors.New("missing booking details")
)

// UpstreamError carries a non-2xx outcome from the booking API. Message is
// the server-provided text, empty when the body had none.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}
