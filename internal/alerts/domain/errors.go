package alerts

import "errors"

// ErrNotFound indicates a missing alert record or a tenant mismatch that
// must be indistinguishable from one.
var ErrNotFound = errors.New("alert: not found")

// ErrTerminalState indicates a transition on a resolved or ignored alert.
var ErrTerminalState = errors.New("alert: already in terminal state")

// ErrNotEscalatable indicates escalation of a non-critical alert.
var ErrNotEscalatable = errors.New("alert: escalation requires critical severity")
