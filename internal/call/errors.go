package call

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/media"
)

var (
	ErrNoRoom        = errors.New("no paired room")
	ErrNotReady      = errors.New("call negotiator not initialized")
	ErrCallActive    = errors.New("a call is already in progress")
	ErrOfferPending  = errors.New("an offer is already outstanding")
	ErrStraySignal   = errors.New("signal received outside its expected state")
	ErrEnded         = errors.New("negotiation ended")
	ErrAnswerTimeout = errors.New("no answer from peer")
	ErrConnection    = errors.New("peer connection failed")

	// ErrPermissionDenied is media.ErrPermissionDenied, re-exported so callers
	// of this package can match on it directly.
	ErrPermissionDenied = media.ErrPermissionDenied
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
