package process

// State represents the current state of a supervised process.
type State string

// Process states.
const (
	StateIdle      State = "idle"      // Not started
	StateRunning   State = "running"   // Active
	StateSuspended State = "suspended" // Stopped with SIGSTOP
	StateStopping  State = "stopping"  // Interrupted, waiting for exit
	StateExited    State = "exited"    // Exited or failed to start
)
