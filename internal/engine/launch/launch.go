// Package launch runs pipeline graphs through gst-launch-1.0.
//
// The child is started with -e so an interrupt drains the pipeline: SIGINT
// becomes end-of-stream and a clean exit is reported as EOS. Pausing stops
// the process group.
package launch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/pipeline"
	"github.com/smazurov/screencap/internal/process"
)

// DefaultBinary is the launcher looked up in PATH.
const DefaultBinary = "gst-launch-1.0"

// Options configures the engine.
type Options struct {
	Binary string
	// StopTimeout bounds the wait for a drained exit before the child is
	// killed.
	StopTimeout time.Duration
	Logger      *slog.Logger
	// OutputLogger receives the child's output.
	OutputLogger *slog.Logger
}

// Engine is an engine.Engine backed by a gst-launch child process.
type Engine struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	args     []string
	proc     *process.Process
	state    engine.State
	stopping bool
	closed   bool
	lastErr  *engine.Message
	debugFor *engine.Message

	msgs chan engine.Message
	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		opts:   opts,
		logger: opts.Logger,
		msgs:   make(chan engine.Message, 32),
		quit:   make(chan struct{}),
	}
}

// Factory returns an engine.Factory producing launch engines.
func Factory(opts Options) engine.Factory {
	return func() (engine.Engine, error) { return New(opts), nil }
}

// Load renders g into launcher arguments.
func (e *Engine) Load(g *pipeline.Graph, files pipeline.Files) error {
	args, err := pipeline.Args(g, files)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	if e.args != nil {
		return engine.ErrLoaded
	}
	e.args = append([]string{e.opts.Binary, "-e"}, args...)
	e.logger.Debug("Pipeline loaded", "args", len(e.args))
	return nil
}

// CommandLine returns the launcher invocation.
func (e *Engine) CommandLine() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.args...)
}

// SetState starts, suspends, resumes or stops the child.
func (e *Engine) SetState(s engine.State) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engine.ErrClosed
	}
	if e.args == nil {
		e.mu.Unlock()
		return engine.ErrNotLoaded
	}

	old := e.state
	var err error
	switch s {
	case engine.StatePlaying:
		err = e.play()
	case engine.StatePaused:
		if e.proc != nil && e.proc.State() == process.StateRunning {
			err = e.proc.Suspend()
		}
	case engine.StateNull:
		proc := e.proc
		e.stopping = true
		e.mu.Unlock()
		if proc != nil {
			code := proc.Stop()
			e.logger.Debug("Launcher stopped", "exit_code", code)
		}
		e.mu.Lock()
	default:
		err = fmt.Errorf("unknown state %d", s)
	}
	if err == nil {
		e.state = s
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if old != s {
		e.notify(engine.StateChanged(old, s))
	}
	return nil
}

// play must be called with e.mu held.
func (e *Engine) play() error {
	if e.proc != nil {
		if e.proc.State() == process.StateSuspended {
			return e.proc.Resume()
		}
		return nil
	}

	proc := process.NewWithOutput("gst-launch", e.args, e.logger, e)
	proc.SetTimeouts(e.opts.StopTimeout, 5*time.Second)
	if e.opts.OutputLogger != nil {
		proc.SetLogParser(e.opts.OutputLogger, ParseLogLevel)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start %s: %w", e.opts.Binary, err)
	}
	e.proc = proc
	e.stopping = false

	e.wg.Add(1)
	go e.supervise(proc)
	return nil
}

// SendEOS interrupts the child, which drains the pipeline and exits.
func (e *Engine) SendEOS() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return engine.ErrNotLoaded
	}
	if e.proc.State() == process.StateSuspended {
		if err := e.proc.Resume(); err != nil {
			return err
		}
	}
	return e.proc.Interrupt()
}

func (e *Engine) Messages() <-chan engine.Message {
	return e.msgs
}

// Close stops the child and closes the message channel.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	proc := e.proc
	e.stopping = true
	e.closed = true
	e.mu.Unlock()

	if proc != nil {
		proc.Stop()
	}
	close(e.quit)
	e.wg.Wait()
	close(e.msgs)
	return nil
}

// HandleLine implements process.OutputHandler. The first error line and
// the debug line following it become the error reported on exit.
func (e *Engine) HandleLine(_, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.debugFor != nil {
		if line == "Additional debug info:" {
			return
		}
		e.debugFor.Debug = line
		e.debugFor = nil
		return
	}
	source, reason, ok := parseError(line)
	if !ok || e.lastErr != nil {
		return
	}
	m := engine.Error(source, reason, "")
	e.lastErr = &m
	e.debugFor = e.lastErr
}

// supervise reports the child's exit: a clean exit is EOS, anything else an
// error. Exits requested through StateNull or Close are not reported.
func (e *Engine) supervise(proc *process.Process) {
	defer e.wg.Done()
	<-proc.Done()

	e.mu.Lock()
	stopping := e.stopping
	code := proc.ExitCode()
	lastErr := e.lastErr
	e.mu.Unlock()

	if stopping {
		return
	}
	if code == 0 {
		e.send(engine.EOS())
		return
	}
	if lastErr == nil {
		m := engine.Error("", fmt.Sprintf("%s exited with code %d", e.opts.Binary, code), "")
		lastErr = &m
	}
	e.send(*lastErr)
}

func (e *Engine) send(m engine.Message) {
	select {
	case e.msgs <- m:
	case <-e.quit:
	}
}

// notify delivers state changes without blocking the caller.
func (e *Engine) notify(m engine.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.msgs <- m:
	default:
		e.logger.Warn("Dropped engine message", "kind", m.Kind.String())
	}
}
