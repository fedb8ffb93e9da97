package session

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation reports an inbound message illegal for the
	// session's current state. Fatal: the session closes, no retry.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrAuthTimeout reports that no auth arrived within the configured
	// idle window while Connecting. Fatal.
	ErrAuthTimeout = fmt.Errorf("%w: no auth before deadline", ErrProtocolViolation)
	// ErrIntentOverflow reports that the bounded buffer of intents received
	// while Syncing overflowed. Fatal.
	ErrIntentOverflow = fmt.Errorf("%w: intent buffer overflow while syncing", ErrProtocolViolation)
	// ErrEmptyIntent reports an intent envelope carrying no intent body.
	// Fatal.
	ErrEmptyIntent = fmt.Errorf("%w: intent envelope without intent body", ErrProtocolViolation)
)

// Reject is a policy-level refusal: reported to the client as an error
// envelope while the session stays live. Applications return it from Apply
// and Depart (e.g. unknown destination, restricted action).
type Reject struct {
	Code    string
	Message string
}

func (r *Reject) Error() string { return r.Code + ": " + r.Message }

// Fatal is a session-terminating error carrying the wire code flushed to
// the client (best effort) before the transport closes.
type Fatal struct {
	Code string
	Err  error
}

func (f *Fatal) Error() string { return f.Err.Error() }
func (f *Fatal) Unwrap() error { return f.Err }

func fatal(code string, err error) *Fatal { return &Fatal{Code: code, Err: err} }
