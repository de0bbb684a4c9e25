package events

// Event type constants for kelindar/event.
const (
	TypeSessionCreated uint32 = iota + 1
	TypeSessionStateChanged
	TypeFlushDone
	TypeSessionSaved
	TypeSessionDiscarded
	TypeSessionMetrics
	TypeConfigReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionCreatedEvent is published once a session's pipeline is built.
type SessionCreatedEvent struct {
	SessionID string   `json:"session_id" example:"5f0c6a2e-8d0f-4c55-9b7e-3f1a2b4c5d6e" doc:"Session identifier"`
	Mode      string   `json:"mode" example:"screencast" doc:"Capture mode"`
	Codec     string   `json:"codec" example:"vp8" doc:"Video codec"`
	TempFile  string   `json:"temp_file,omitempty" example:"/tmp/screencap_123.movie" doc:"Output file while recording"`
	Warnings  []string `json:"warnings,omitempty" doc:"Non-fatal resolution warnings"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionCreatedEvent.
func (e SessionCreatedEvent) Type() uint32 { return TypeSessionCreated }

// SessionStateChangedEvent is published on every controller transition.
type SessionStateChangedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	From      string `json:"from" example:"playing" doc:"Previous state"`
	To        string `json:"to" example:"paused" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// FlushDoneEvent is published once when a session reaches a terminal state.
type FlushDoneEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Path      string `json:"path,omitempty" example:"/tmp/screencap_123.movie" doc:"Finished output file, empty for broadcasts"`
	Error     string `json:"error,omitempty" doc:"Runtime error that ended the session"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FlushDoneEvent.
func (e FlushDoneEvent) Type() uint32 { return TypeFlushDone }

// SessionSavedEvent is published when a finished output is moved to its
// final name.
type SessionSavedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Path      string `json:"path" example:"/home/user/Videos/screencast_00001.webm" doc:"Saved file"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionSavedEvent.
func (e SessionSavedEvent) Type() uint32 { return TypeSessionSaved }

// SessionDiscardedEvent is published when a session's files are deleted.
type SessionDiscardedEvent struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionDiscardedEvent.
func (e SessionDiscardedEvent) Type() uint32 { return TypeSessionDiscarded }

// SessionMetricsEvent carries periodic recording statistics.
type SessionMetricsEvent struct {
	EventType string `json:"type"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Elapsed   string `json:"elapsed_seconds"`
	FileSize  string `json:"file_size_bytes"`
}

// Type returns the event type identifier for SessionMetricsEvent.
func (e SessionMetricsEvent) Type() uint32 { return TypeSessionMetrics }

// ConfigReloadedEvent is published after the config file changed on disk.
type ConfigReloadedEvent struct {
	Path      string `json:"path" doc:"Config file"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }
