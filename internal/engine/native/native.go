//go:build cgo

// Package native runs pipeline graphs inside the process through go-gst.
package native

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/pipeline"
)

// Available reports whether this build can run the native engine.
const Available = true

// windowHandleWait bounds how long a video sink waits for its window.
const windowHandleWait = time.Second

var initOnce sync.Once

// Init initializes GStreamer once per process.
func Init() {
	initOnce.Do(func() { gst.Init(nil) })
}

// Engine is an engine.Engine driving a GStreamer pipeline directly.
type Engine struct {
	logger *slog.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	elements map[string]*gst.Element
	closed   bool

	out  *outbox
	msgs <-chan engine.Message
}

// New creates an engine, initializing GStreamer on first use.
func New(logger *slog.Logger) (*Engine, error) {
	Init()
	if logger == nil {
		logger = slog.Default()
	}
	out := newOutbox(32)
	return &Engine{
		logger:   logger,
		elements: make(map[string]*gst.Element),
		out:      out,
		msgs:     out.msgs,
	}, nil
}

// Factory returns an engine.Factory producing native engines.
func Factory(logger *slog.Logger) engine.Factory {
	return func() (engine.Engine, error) { return New(logger) }
}

// Load creates one element per stage, sets its properties and links the
// edges. Nothing is kept when any step fails.
func (e *Engine) Load(g *pipeline.Graph, files pipeline.Files) error {
	if err := pipeline.CheckFiles(g, files); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	if e.pipeline != nil {
		return engine.ErrLoaded
	}

	p, err := gst.NewPipeline("screencap")
	if err != nil {
		return capture.NewBuildError("create pipeline", err)
	}

	resolve := func(a pipeline.Artifact) string { return files[a] }
	elements := make(map[string]*gst.Element)
	for _, s := range g.Stages() {
		elem, err := gst.NewElementWithName(s.Factory, s.ID)
		if err != nil {
			return capture.NewBuildError(fmt.Sprintf("create %s", s.Factory), err)
		}
		for _, k := range s.Keys() {
			if !setArg(elem, k, pipeline.Value(s.Props[k], resolve)) {
				return capture.NewBuildError(fmt.Sprintf("%s has no property %q", s.Factory, k), nil)
			}
		}
		if err := p.Add(elem); err != nil {
			return capture.NewBuildError(fmt.Sprintf("add %s", s.ID), err)
		}
		elements[s.ID] = elem
	}

	for _, edge := range g.Edges() {
		if err := elements[edge.From].Link(elements[edge.To]); err != nil {
			return capture.NewLinkError(fmt.Sprintf("link %s -> %s", edge.From, edge.To), err)
		}
	}

	e.pipeline = p
	e.elements = elements

	bus := p.GetPipelineBus()
	bus.SetSyncHandler(e.syncHandler)
	if e.out.enter() {
		go e.watch(bus)
	}

	e.logger.Debug("Pipeline loaded", "stages", len(elements))
	return nil
}

func (e *Engine) SetState(s engine.State) error {
	e.mu.Lock()
	p := e.pipeline
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return engine.ErrClosed
	}
	if p == nil {
		return engine.ErrNotLoaded
	}
	if err := p.SetState(toGst(s)); err != nil {
		return fmt.Errorf("set state %s: %w", s, err)
	}
	return nil
}

func (e *Engine) SendEOS() error {
	e.mu.Lock()
	p := e.pipeline
	e.mu.Unlock()
	if p == nil {
		return engine.ErrNotLoaded
	}
	if !p.SendEvent(gst.NewEOSEvent()) {
		return fmt.Errorf("end-of-stream event not handled")
	}
	return nil
}

func (e *Engine) Messages() <-chan engine.Message {
	return e.msgs
}

// Close stops the bus watch, sets the pipeline to null and closes the
// message channel once no sync handler is running.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	p := e.pipeline
	e.mu.Unlock()

	e.out.shutdown()
	var err error
	if p != nil {
		err = p.SetState(gst.StateNull)
	}
	e.out.close()
	return err
}

// watch polls the bus until Close.
func (e *Engine) watch(bus *gst.Bus) {
	defer e.out.leave()
	for {
		select {
		case <-e.out.quit:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			e.out.send(engine.EOS())

		case gst.MessageError:
			gerr := msg.ParseError()
			e.logger.Error("Pipeline error",
				"source", msg.Source(),
				"error", gerr.Error(),
				"debug", gerr.DebugString())
			e.out.send(engine.Error(msg.Source(), gerr.Error(), gerr.DebugString()))

		case gst.MessageStateChanged:
			if msg.Source() == "screencap" {
				from, to := msg.ParseStateChanged()
				e.logger.Debug("Pipeline state changed", "from", from, "to", to)
				e.out.send(engine.StateChanged(fromGst(from), fromGst(to)))
			}
		}
	}
}

// syncHandler answers prepare-window-handle on the streaming thread.
func (e *Engine) syncHandler(msg *gst.Message) gst.BusSyncReply {
	if msg.Type() != gst.MessageElement {
		return gst.BusPass
	}
	st := msg.GetStructure()
	if st == nil || st.Name() != "prepare-window-handle" {
		return gst.BusPass
	}

	e.mu.Lock()
	p := e.pipeline
	e.mu.Unlock()
	if p == nil {
		return gst.BusPass
	}
	sink, err := p.GetElementByName(msg.Source())
	if err != nil {
		return gst.BusPass
	}

	h := e.out.requestWindow(msg.Source(), windowHandleWait)
	if h != 0 && setWindowHandle(sink, h) {
		return gst.BusDrop
	}
	e.logger.Debug("No window handle for sink", "sink", msg.Source())
	return gst.BusPass
}

func toGst(s engine.State) gst.State {
	switch s {
	case engine.StatePlaying:
		return gst.StatePlaying
	case engine.StatePaused:
		return gst.StatePaused
	default:
		return gst.StateNull
	}
}

func fromGst(s gst.State) engine.State {
	switch s {
	case gst.StatePlaying:
		return engine.StatePlaying
	case gst.StatePaused:
		return engine.StatePaused
	default:
		return engine.StateNull
	}
}

// Registry answers element availability from the GStreamer registry.
type Registry struct{}

// NewRegistry initializes GStreamer and returns its registry.
func NewRegistry() (Registry, error) {
	Init()
	return Registry{}, nil
}

// HasElement implements engine.Registry.
func (Registry) HasElement(factory string) bool {
	return gst.Find(factory) != nil
}
