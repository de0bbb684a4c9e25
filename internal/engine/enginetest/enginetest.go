// Package enginetest provides a scripted engine for tests.
package enginetest

import (
	"sync"

	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/pipeline"
)

// Engine records requests and emits messages on demand. With AutoEOS set,
// SendEOS is answered with an EOS message.
type Engine struct {
	AutoEOS bool
	LoadErr error
	// StateErr fails every SetState to the given state.
	StateErr map[engine.State]error

	mu       sync.Mutex
	graph    *pipeline.Graph
	files    pipeline.Files
	state    engine.State
	history  []engine.State
	eosCount int
	closed   bool
	msgs     chan engine.Message
}

// New returns an engine that answers EOS requests.
func New() *Engine {
	return &Engine{AutoEOS: true, msgs: make(chan engine.Message, 64)}
}

// Factory returns an engine.Factory that always yields e.
func (e *Engine) Factory() engine.Factory {
	return func() (engine.Engine, error) { return e, nil }
}

func (e *Engine) Load(g *pipeline.Graph, files pipeline.Files) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LoadErr != nil {
		return e.LoadErr
	}
	if e.graph != nil {
		return engine.ErrLoaded
	}
	e.graph = g
	e.files = files
	return nil
}

func (e *Engine) SetState(s engine.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	if err := e.StateErr[s]; err != nil {
		return err
	}
	old := e.state
	e.state = s
	e.history = append(e.history, s)
	if old != s {
		e.emit(engine.StateChanged(old, s))
	}
	return nil
}

func (e *Engine) SendEOS() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return engine.ErrNotLoaded
	}
	e.eosCount++
	if e.AutoEOS {
		e.emit(engine.EOS())
	}
	return nil
}

func (e *Engine) Messages() <-chan engine.Message {
	return e.msgs
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.msgs)
	}
	return nil
}

// Emit delivers m as if the pipeline raised it.
func (e *Engine) Emit(m engine.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(m)
}

func (e *Engine) emit(m engine.Message) {
	if !e.closed {
		e.msgs <- m
	}
}

// State returns the last requested state.
func (e *Engine) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// History returns every requested state in order.
func (e *Engine) History() []engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.State(nil), e.history...)
}

// EOSCount returns how many times SendEOS was called.
func (e *Engine) EOSCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eosCount
}

// Graph returns the loaded graph and artifact paths.
func (e *Engine) Graph() (*pipeline.Graph, pipeline.Files) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph, e.files
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Registry is a set of unavailable factories; everything else exists.
type Registry map[string]bool

func (r Registry) HasElement(factory string) bool {
	return !r[factory]
}
