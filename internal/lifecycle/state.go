package lifecycle

import "errors"

// State is the controller's position in a session's lifecycle.
type State string

// Controller states.
const (
	StateIdle     State = "idle"     // Nothing built
	StateBuilding State = "building" // Graph loaded, not started
	StatePlaying  State = "playing"  // Capturing
	StatePaused   State = "paused"   // Capturing suspended
	StateStopping State = "stopping" // Waiting for the sinks to drain
	StateFlushed  State = "flushed"  // Output complete
	StateFailed   State = "failed"   // Engine error
)

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateFlushed || s == StateFailed
}

// Active reports whether an engine pipeline is running or suspended.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused || s == StateStopping
}

var (
	// ErrInvalidState is returned when an operation's precondition does
	// not hold. The controller state is unchanged.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrUnsupported is returned for pause and resume in screenshot mode.
	ErrUnsupported = errors.New("operation not supported in this mode")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// FlushResult is delivered once per session when it reaches a terminal
// state. Path is empty for broadcasts. Err is a runtime error for failed
// sessions; the partial output at Path is kept.
type FlushResult struct {
	Path string
	Err  error
}
