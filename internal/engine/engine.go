// Package engine defines the contract between the lifecycle controller and a
// media engine that runs pipeline graphs.
//
// Implementations:
//   - launch: runs gst-launch-1.0 as a supervised child process
//   - native: drives GStreamer in process through go-gst (requires cgo)
//   - enginetest: a scripted fake for tests
package engine

import (
	"errors"
	"fmt"

	"github.com/smazurov/screencap/internal/pipeline"
)

// State is the engine's playback state.
type State int

// Engine states
const (
	StateNull State = iota
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageKind identifies an engine message.
type MessageKind int

// Message kinds
const (
	MessageEOS MessageKind = iota
	MessageError
	MessageStateChanged
	MessageWindowHandle
)

func (k MessageKind) String() string {
	switch k {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageStateChanged:
		return "state-changed"
	case MessageWindowHandle:
		return "prepare-window-handle"
	default:
		return fmt.Sprintf("message(%d)", int(k))
	}
}

// Message is an asynchronous notification from the engine.
type Message struct {
	Kind MessageKind
	// Source is the stage ID that raised the message, when known.
	Source string

	// Error messages.
	Reason string
	Debug  string

	// State changes of the whole pipeline.
	Old State
	New State

	// Reply answers a window handle request. The engine blocks the
	// requesting sink until Reply is called or its wait expires.
	Reply func(handle uintptr)
}

// EOS returns an end-of-stream message.
func EOS() Message {
	return Message{Kind: MessageEOS}
}

// Error returns an error message raised by source.
func Error(source, reason, debug string) Message {
	return Message{Kind: MessageError, Source: source, Reason: reason, Debug: debug}
}

// StateChanged returns a pipeline state change message.
func StateChanged(from, to State) Message {
	return Message{Kind: MessageStateChanged, Old: from, New: to}
}

// Registry reports which element factories the engine provides.
type Registry = pipeline.Registry

// Engine runs one pipeline graph. Implementations deliver messages on the
// channel returned by Messages until Close, which closes it.
type Engine interface {
	// Load instantiates g with artifact paths from files. The engine is
	// left in StateNull.
	Load(g *pipeline.Graph, files pipeline.Files) error
	SetState(s State) error
	// SendEOS asks the sources to finish; a MessageEOS follows once every
	// sink has drained.
	SendEOS() error
	Messages() <-chan Message
	Close() error
}

// Factory creates a fresh engine for each session.
type Factory func() (Engine, error)

// Sentinel errors shared by implementations.
var (
	ErrNotLoaded = errors.New("engine: no pipeline loaded")
	ErrLoaded    = errors.New("engine: pipeline already loaded")
	ErrClosed    = errors.New("engine: closed")
)
