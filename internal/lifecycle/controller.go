// Package lifecycle drives one capture pipeline through build, record,
// pause and stop, and reports when its output is complete.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/metrics"
	"github.com/smazurov/screencap/internal/pipeline"
)

// Publisher receives session events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options contains options for creating a Controller.
type Options struct {
	SessionID string
	Builder   *pipeline.Builder
	Engine    engine.Factory
	EventBus  Publisher
	Logger    *slog.Logger
	// WindowHandle is given to preview sinks that ask for a window.
	// Zero lets the sink open its own.
	WindowHandle uintptr
}

type op int

const (
	opBuild op = iota
	opStart
	opPause
	opResume
	opStop
	opDiscard
	opHandOff
)

func (o op) String() string {
	return [...]string{"build", "start", "pause", "resume", "stop", "discard", "hand off"}[o]
}

type command struct {
	op    op
	req   capture.Request
	reply chan reply
}

type reply struct {
	path string
	err  error
}

// Controller owns at most one pipeline at a time. Every command and
// engine message is handled on a single goroutine that owns the state;
// State reads an atomic snapshot.
type Controller struct {
	id       string
	builder  *pipeline.Builder
	factory  engine.Factory
	eventBus Publisher
	logger   *slog.Logger
	window   uintptr

	state atomic.Value

	cmds      chan command
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	done      chan struct{}
	result    *FlushResult
	callbacks []func(FlushResult)
	graph     *pipeline.Graph
	files     pipeline.Files

	// Owned by the loop goroutine.
	mode      capture.Mode
	eng       engine.Engine
	msgs      <-chan engine.Message
	handedOff bool
	// shooting is set once a screenshot pipeline runs. Screenshots stay
	// in StateBuilding until their single frame is written.
	shooting bool
}

// New creates a controller in StateIdle and starts its event loop.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("lifecycle")
	}
	c := &Controller{
		id:       opts.SessionID,
		builder:  opts.Builder,
		factory:  opts.Engine,
		eventBus: opts.EventBus,
		logger:   logger.With("session_id", opts.SessionID),
		window:   opts.WindowHandle,
		cmds:     make(chan command),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.state.Store(StateIdle)
	go c.run()
	return c
}

// Build creates the session's temp files, builds the graph for req and
// loads it into a fresh engine. On error the files are removed and the
// controller returns to StateIdle.
func (c *Controller) Build(ctx context.Context, req capture.Request) error {
	_, err := c.do(ctx, command{op: opBuild, req: req})
	return err
}

// Start begins capturing.
func (c *Controller) Start() error {
	_, err := c.do(context.Background(), command{op: opStart})
	return err
}

// Pause suspends capture.
func (c *Controller) Pause() error {
	_, err := c.do(context.Background(), command{op: opPause})
	return err
}

// Resume continues a paused capture.
func (c *Controller) Resume() error {
	_, err := c.do(context.Background(), command{op: opResume})
	return err
}

// Stop ends capture. File sessions drain asynchronously and finish when
// the engine reports end-of-stream; broadcasts finish before Stop returns.
func (c *Controller) Stop() error {
	_, err := c.do(context.Background(), command{op: opStop})
	return err
}

// Discard deletes the session's temp files. IO errors are logged only.
func (c *Controller) Discard() error {
	_, err := c.do(context.Background(), command{op: opDiscard})
	return err
}

// HandOff transfers ownership of a finished output file to the caller,
// so Close no longer deletes it. It returns the output path.
func (c *Controller) HandOff() (string, error) {
	return c.do(context.Background(), command{op: opHandOff})
}

// Close tears down the engine and deletes temp files that were not
// handed off. A failed session's partial output stays on disk. An
// unfinished session completes with ErrClosed.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.stopped
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

// TempFile returns the output path. It is empty before Build and for
// broadcasts.
func (c *Controller) TempFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[pipeline.ArtifactOutput]
}

// Describe renders the loaded graph as a gst-launch description.
func (c *Controller) Describe() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.graph == nil {
		return ""
	}
	return pipeline.Describe(c.graph, c.files)
}

// Done is closed when the current session reaches a terminal state.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Result returns the flush result once Done is closed.
func (c *Controller) Result() (FlushResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return FlushResult{}, false
	}
	return *c.result, true
}

// OnFlushDone registers fn to run once with the session's result. If the
// session already finished, fn runs immediately. Otherwise it runs on the
// controller goroutine and must not call back into the controller.
func (c *Controller) OnFlushDone(fn func(FlushResult)) {
	c.mu.Lock()
	if c.result != nil {
		res := *c.result
		c.mu.Unlock()
		fn(res)
		return
	}
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

func (c *Controller) do(ctx context.Context, cmd command) (string, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case c.cmds <- cmd:
	case <-c.quit:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-cmd.reply:
		return r.path, r.err
	case <-c.stopped:
		return "", ErrClosed
	}
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case cmd := <-c.cmds:
			path, err := c.handle(cmd)
			cmd.reply <- reply{path: path, err: err}
		case msg, ok := <-c.msgs:
			if !ok {
				c.msgs = nil
				continue
			}
			c.handleMessage(msg)
		case <-c.quit:
			c.teardown()
			return
		}
	}
}

func (c *Controller) handle(cmd command) (string, error) {
	switch cmd.op {
	case opBuild:
		return "", c.build(cmd.req)
	case opStart:
		return "", c.start()
	case opPause:
		return "", c.pause()
	case opResume:
		return "", c.resume()
	case opStop:
		return "", c.stop()
	case opDiscard:
		return "", c.discard()
	case opHandOff:
		return c.handOff()
	}
	return "", fmt.Errorf("unknown command %d", cmd.op)
}

func (c *Controller) invalid(o op, s State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, o, s)
}

func (c *Controller) build(req capture.Request) error {
	s := c.State()
	if s != StateIdle && !s.Terminal() {
		return c.invalid(opBuild, s)
	}
	if s.Terminal() {
		c.release()
	}

	c.setState(StateBuilding)

	g, err := c.builder.Build(req)
	if err != nil {
		return c.abortBuild(err, nil)
	}
	files, err := createFiles(req, g)
	if err != nil {
		return c.abortBuild(err, nil)
	}
	eng, err := c.factory()
	if err != nil {
		return c.abortBuild(capture.NewBuildError("create engine", err), files)
	}
	if err := eng.Load(g, files); err != nil {
		if closeErr := eng.Close(); closeErr != nil {
			c.logger.Debug("Failed to close engine", "error", closeErr)
		}
		if capture.KindOf(err) == "" {
			err = capture.NewBuildError("load pipeline", err)
		}
		return c.abortBuild(err, files)
	}

	c.mu.Lock()
	c.graph = g
	c.files = files
	c.done = make(chan struct{})
	c.result = nil
	c.mu.Unlock()

	c.eng = eng
	c.msgs = eng.Messages()
	c.mode = req.Mode
	c.handedOff = false
	c.shooting = false

	output := files[pipeline.ArtifactOutput]
	metrics.SessionStarted(c.id, string(req.Mode), output)
	metrics.SetSessionState(c.id, string(StateBuilding))

	c.logger.Info("Pipeline built", "mode", req.Mode, "codec", req.Codec, "temp_file", output)
	if c.eventBus != nil {
		c.eventBus.Publish(events.SessionCreatedEvent{
			SessionID: c.id,
			Mode:      string(req.Mode),
			Codec:     req.Codec.String(),
			TempFile:  output,
			Warnings:  req.Warnings,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return nil
}

func (c *Controller) abortBuild(err error, files pipeline.Files) error {
	c.removeFiles(files)
	metrics.BuildFailed(string(capture.KindOf(err)))
	c.logger.Error("Pipeline build failed", "error", err)
	c.setState(StateIdle)
	return err
}

// release drops a finished session's engine before the next build.
func (c *Controller) release() {
	if c.eng != nil {
		if err := c.eng.Close(); err != nil {
			c.logger.Debug("Failed to close engine", "error", err)
		}
	}
	c.eng = nil
	c.msgs = nil
	c.dropFiles(c.State())
	c.mu.Lock()
	c.graph = nil
	c.files = nil
	c.mu.Unlock()
}

func (c *Controller) start() error {
	if s := c.State(); s != StateBuilding || c.shooting {
		return c.invalid(opStart, s)
	}
	if err := c.eng.SetState(engine.StatePlaying); err != nil {
		return c.fail(capture.NewRuntimeError("start pipeline", err))
	}
	if c.mode == capture.ModeScreenshot {
		c.shooting = true
		c.logger.Debug("Screenshot pipeline running")
		return nil
	}
	c.setState(StatePlaying)
	return nil
}

func (c *Controller) pause() error {
	if c.mode == capture.ModeScreenshot {
		return ErrUnsupported
	}
	if s := c.State(); s != StatePlaying {
		return c.invalid(opPause, s)
	}
	if err := c.eng.SetState(engine.StatePaused); err != nil {
		return c.fail(capture.NewRuntimeError("pause pipeline", err))
	}
	c.setState(StatePaused)
	return nil
}

func (c *Controller) resume() error {
	if c.mode == capture.ModeScreenshot {
		return ErrUnsupported
	}
	if s := c.State(); s != StatePaused {
		return c.invalid(opResume, s)
	}
	if err := c.eng.SetState(engine.StatePlaying); err != nil {
		return c.fail(capture.NewRuntimeError("resume pipeline", err))
	}
	c.setState(StatePlaying)
	return nil
}

func (c *Controller) stop() error {
	s := c.State()
	if s != StatePlaying && s != StatePaused {
		return c.invalid(opStop, s)
	}

	if !c.mode.FileSink() {
		if err := c.eng.SetState(engine.StateNull); err != nil {
			c.logger.Warn("Failed to stop pipeline", "error", err)
		}
		c.setState(StateFlushed)
		c.finish(FlushResult{}, "flushed")
		return nil
	}

	if s == StatePaused {
		if err := c.eng.SetState(engine.StatePlaying); err != nil {
			return c.fail(capture.NewRuntimeError("resume before stop", err))
		}
	}
	c.setState(StateStopping)
	if err := c.eng.SendEOS(); err != nil {
		return c.fail(capture.NewRuntimeError("send end-of-stream", err))
	}
	return nil
}

func (c *Controller) discard() error {
	if s := c.State(); s.Active() || c.shooting && s == StateBuilding {
		return c.invalid(opDiscard, s)
	}
	c.removeFiles(c.files)
	c.handedOff = true
	return nil
}

func (c *Controller) handOff() (string, error) {
	if s := c.State(); !s.Terminal() {
		return "", c.invalid(opHandOff, s)
	}
	c.handedOff = true
	return c.files[pipeline.ArtifactOutput], nil
}

func (c *Controller) handleMessage(msg engine.Message) {
	switch msg.Kind {
	case engine.MessageEOS:
		if s := c.State(); s.Active() || (s == StateBuilding && c.shooting) {
			c.finalize()
		} else {
			c.logger.Debug("Ignoring end-of-stream", "state", s)
		}

	case engine.MessageError:
		s := c.State()
		if s != StateBuilding && !s.Active() {
			c.logger.Debug("Ignoring engine error", "state", s, "reason", msg.Reason)
			return
		}
		message := msg.Reason
		if msg.Source != "" {
			message = fmt.Sprintf("element %s: %s", msg.Source, msg.Reason)
		}
		var cause error
		if msg.Debug != "" {
			cause = errors.New(msg.Debug)
		}
		_ = c.fail(capture.NewRuntimeError(message, cause))

	case engine.MessageStateChanged:
		c.logger.Debug("Engine state changed", "from", msg.Old, "to", msg.New)

	case engine.MessageWindowHandle:
		if msg.Reply != nil {
			msg.Reply(c.window)
		}
	}
}

// finalize completes a drained file session.
func (c *Controller) finalize() {
	if err := c.eng.SetState(engine.StateNull); err != nil {
		c.logger.Warn("Failed to stop pipeline", "error", err)
	}
	c.removeFile(c.files[pipeline.ArtifactScratch])
	c.setState(StateFlushed)
	c.finish(FlushResult{Path: c.files[pipeline.ArtifactOutput]}, "flushed")
}

// fail moves to StateFailed keeping any partial output, and returns err.
func (c *Controller) fail(err error) error {
	if setErr := c.eng.SetState(engine.StateNull); setErr != nil {
		c.logger.Warn("Failed to stop pipeline", "error", setErr)
	}
	c.logger.Error("Session failed", "error", err)
	c.setState(StateFailed)
	c.finish(FlushResult{Path: c.files[pipeline.ArtifactOutput], Err: err}, "failed")
	return err
}

func (c *Controller) finish(res FlushResult, outcome string) {
	c.mu.Lock()
	c.result = &res
	callbacks := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()

	metrics.SessionFinished(c.id, outcome)

	if c.eventBus != nil {
		ev := events.FlushDoneEvent{
			SessionID: c.id,
			Path:      res.Path,
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		c.eventBus.Publish(ev)
	}
	c.logger.Info("Flush done", "path", res.Path, "outcome", outcome)

	for _, fn := range callbacks {
		fn(res)
	}
}

func (c *Controller) setState(to State) {
	from := c.State()
	if from == to {
		return
	}
	c.state.Store(to)
	c.logger.Debug("Session state changed", "from", from, "to", to)
	metrics.SetSessionState(c.id, string(to))
	if c.eventBus != nil {
		c.eventBus.Publish(events.SessionStateChangedEvent{
			SessionID: c.id,
			From:      string(from),
			To:        string(to),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

func (c *Controller) teardown() {
	s := c.State()
	if c.eng != nil {
		if s == StateBuilding || s.Active() {
			if err := c.eng.SetState(engine.StateNull); err != nil {
				c.logger.Debug("Failed to stop pipeline", "error", err)
			}
		}
		if err := c.eng.Close(); err != nil {
			c.logger.Debug("Failed to close engine", "error", err)
		}
	}
	c.dropFiles(s)

	switch {
	case s == StateBuilding || s.Active():
		c.setState(StateIdle)
		c.finish(FlushResult{Err: ErrClosed}, "cancelled")
	case s == StateIdle:
		c.mu.Lock()
		if c.result == nil {
			c.result = &FlushResult{Err: ErrClosed}
			close(c.done)
		}
		c.mu.Unlock()
	}
}

// dropFiles deletes the files of a session in state s unless they were
// handed off. Failed sessions keep their partial output.
func (c *Controller) dropFiles(s State) {
	if c.handedOff {
		return
	}
	if s != StateFailed {
		c.removeFiles(c.files)
		return
	}
	c.removeFile(c.files[pipeline.ArtifactScratch])
	if out := c.files[pipeline.ArtifactOutput]; out != "" {
		c.logger.Warn("Keeping partial output of failed session", "temp_file", out)
	}
	c.handedOff = true
}

func (c *Controller) removeFiles(files pipeline.Files) {
	c.removeFile(files[pipeline.ArtifactScratch])
	c.removeFile(files[pipeline.ArtifactOutput])
}

func (c *Controller) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("Failed to remove temp file", "path", path,
			"error", capture.NewIOError("remove temp file", err))
	}
}

// createFiles reserves the artifacts g refers to. The output file is
// created empty with a unique name; the scratch path sits next to it and
// is created by the muxer.
func createFiles(req capture.Request, g *pipeline.Graph) (pipeline.Files, error) {
	var needOutput, needScratch bool
	for _, a := range g.Artifacts() {
		switch a {
		case pipeline.ArtifactOutput:
			needOutput = true
		case pipeline.ArtifactScratch:
			needScratch = true
		}
	}

	files := pipeline.Files{}
	if !needOutput && !needScratch {
		return files, nil
	}

	dir := req.DestDir
	if dir == "" {
		dir = os.TempDir()
	}
	pattern := "screencap_*.movie"
	if req.Mode == capture.ModeScreenshot {
		pattern = "screencap_*.png"
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, capture.NewIOError("create temp file", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, capture.NewIOError("create temp file", err)
	}

	if needOutput {
		files[pipeline.ArtifactOutput] = f.Name()
	}
	if needScratch {
		files[pipeline.ArtifactScratch] = f.Name() + ".mux"
		if !needOutput {
			_ = os.Remove(f.Name())
		}
	}
	return files, nil
}
