package session

import "errors"

// Error taxonomy for session state machine operations. Every operation returns
// typed errors; nothing in this package panics or logs-and-continues.
var (
	// ErrSessionBusy is returned when an external call (submit, end, start) is
	// already in flight for this session. The second attempt performs no
	// mutation; it is rejected, not queued.
	ErrSessionBusy = errors.New("session: another call is in flight")

	// ErrEvaluationFailed wraps failures (including timeouts) of the external
	// evaluation collaborator. State has been reverted when this is returned.
	ErrEvaluationFailed = errors.New("session: evaluation failed")

	// ErrNoSession is returned when an operation requires a created or loaded
	// session and none exists.
	ErrNoSession = errors.New("session: no interview session")

	// ErrInvalidTransition is returned when a session cannot legally enter the
	// requested state, e.g. when Load adopts a persisted session carrying a
	// state the machine does not recognize.
	ErrInvalidTransition = errors.New("session: invalid state transition")
)
