// Package recorder runs capture sessions: it resolves selections, builds
// and drives the pipeline, and hands finished output over to its final
// name. At most one session is active at a time.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/lifecycle"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/metrics"
	"github.com/smazurov/screencap/internal/pipeline"
	"github.com/smazurov/screencap/internal/resolver"
)

var (
	// ErrNoSession is returned when no session exists.
	ErrNoSession = errors.New("no capture session")
	// ErrBusy is returned when a new session is requested while one is
	// still running.
	ErrBusy = errors.New("a capture session is already active")
	// ErrNotFinished is returned when saving a session that has not
	// flushed its output yet.
	ErrNotFinished = errors.New("capture session has not finished")
	// ErrNothingToSave is returned for sessions without a local file.
	ErrNothingToSave = errors.New("capture session has no output file")
)

// Defaults fill in selections the caller left empty. They can be replaced
// while serving when the config file changes. Codec and CaptureCursor
// are read by callers that build selections.
type Defaults struct {
	Codec         capture.CodecID
	Framerate     int
	CaptureCursor bool
	AllowAdvanced bool
	// DestDir holds temp output; SaveDir receives saved files. Both
	// default to the OS temp dir and the current directory.
	DestDir string
	SaveDir string
	// Prefix starts every autosave name, followed by the mode.
	Prefix string
}

// Options contains options for creating a Service.
type Options struct {
	Resolver     *resolver.Resolver
	Builder      *pipeline.Builder
	Engine       engine.Factory
	EventBus     *events.Bus
	Defaults     Defaults
	WindowHandle uintptr
	Logger       *slog.Logger
}

// Session is one capture from build to save or discard.
type Session struct {
	ID        string
	Request   capture.Request
	CreatedAt time.Time

	controller *lifecycle.Controller

	mu        sync.Mutex
	savedPath string
}

// Controller returns the session's lifecycle controller.
func (s *Session) Controller() *lifecycle.Controller {
	return s.controller
}

// SavedPath returns where the output was saved, if it was.
func (s *Session) SavedPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedPath
}

// SessionInfo is a snapshot of a session for display.
type SessionInfo struct {
	ID        string    `json:"id" doc:"Session identifier"`
	Mode      string    `json:"mode" example:"screencast" doc:"Capture mode"`
	Codec     string    `json:"codec" example:"vp8" doc:"Video codec"`
	State     string    `json:"state" example:"playing" doc:"Lifecycle state"`
	TempFile  string    `json:"temp_file,omitempty" doc:"Output file while recording"`
	SavedPath string    `json:"saved_path,omitempty" doc:"Final file after save"`
	Pipeline  string    `json:"pipeline" doc:"gst-launch description of the pipeline"`
	Warnings  []string  `json:"warnings,omitempty" doc:"Non-fatal resolution warnings"`
	Error     string    `json:"error,omitempty" doc:"Runtime error that ended the session"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:        s.ID,
		Mode:      string(s.Request.Mode),
		Codec:     s.Request.Codec.String(),
		State:     string(s.controller.State()),
		TempFile:  s.controller.TempFile(),
		SavedPath: s.SavedPath(),
		Pipeline:  s.controller.Describe(),
		Warnings:  s.Request.Warnings,
		CreatedAt: s.CreatedAt,
	}
	if res, ok := s.controller.Result(); ok && res.Err != nil {
		info.Error = res.Err.Error()
	}
	return info
}

// Service owns the current session.
type Service struct {
	resolver     *resolver.Resolver
	builder      *pipeline.Builder
	engine       engine.Factory
	eventBus     *events.Bus
	windowHandle uintptr
	logger       *slog.Logger

	mu       sync.Mutex
	defaults Defaults
	current  *Session
}

// NewService creates a recorder service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("recorder")
	}
	return &Service{
		resolver:     opts.Resolver,
		builder:      opts.Builder,
		engine:       opts.Engine,
		eventBus:     opts.EventBus,
		windowHandle: opts.WindowHandle,
		logger:       logger,
		defaults:     opts.Defaults,
	}
}

// Defaults returns the current defaults.
func (s *Service) Defaults() Defaults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// SetDefaults replaces the defaults for sessions created afterwards.
func (s *Service) SetDefaults(d Defaults) {
	s.mu.Lock()
	s.defaults = d
	s.mu.Unlock()
	s.logger.Info("Capture defaults updated", "codec", d.Codec.String(), "framerate", d.Framerate)
}

// Create resolves sel and builds a new session. A finished previous
// session is closed first; its unsaved output is deleted.
func (s *Service) Create(ctx context.Context, sel resolver.Selections) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if st := s.current.controller.State(); !st.Terminal() && st != lifecycle.StateIdle {
			return nil, ErrBusy
		}
		s.closeLocked()
	}

	sel = s.applyDefaults(sel)
	req, err := s.resolver.Resolve(ctx, sel)
	if err != nil {
		metrics.BuildFailed(string(capture.KindOf(err)))
		return nil, err
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: time.Now(),
	}
	sess.controller = lifecycle.New(lifecycle.Options{
		SessionID:    sess.ID,
		Builder:      s.builder,
		Engine:       s.engine,
		EventBus:     s.eventBus,
		WindowHandle: s.windowHandle,
	})
	if err := sess.controller.Build(ctx, req); err != nil {
		_ = sess.controller.Close()
		metrics.DeleteSessionMetrics(sess.ID)
		return nil, err
	}

	s.current = sess
	s.logger.Info("Session created", "session_id", sess.ID, "mode", req.Mode, "codec", req.Codec.String())
	return sess, nil
}

func (s *Service) applyDefaults(sel resolver.Selections) resolver.Selections {
	d := s.defaults
	if sel.Framerate == 0 {
		sel.Framerate = d.Framerate
	}
	if sel.DestDir == "" {
		sel.DestDir = d.DestDir
	}
	if d.AllowAdvanced {
		sel.AllowAdvanced = true
	}
	return sel
}

// Current returns the current session.
func (s *Service) Current() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoSession
	}
	return s.current, nil
}

// Control applies a lifecycle action to the current session.
func (s *Service) Control(action string) error {
	sess, err := s.Current()
	if err != nil {
		return err
	}
	c := sess.controller
	switch action {
	case "start":
		return c.Start()
	case "pause":
		return c.Pause()
	case "resume":
		return c.Resume()
	case "stop":
		return c.Stop()
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// Wait blocks until the current session finishes or ctx is done.
func (s *Service) Wait(ctx context.Context) (lifecycle.FlushResult, error) {
	sess, err := s.Current()
	if err != nil {
		return lifecycle.FlushResult{}, err
	}
	select {
	case <-sess.controller.Done():
		res, _ := sess.controller.Result()
		return res, nil
	case <-ctx.Done():
		return lifecycle.FlushResult{}, ctx.Err()
	}
}

// Save moves the finished output to the first free autosave name in the
// save directory and returns that path. The partial output of a failed
// session can be saved too.
func (s *Service) Save() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", ErrNoSession
	}
	sess := s.current
	if saved := sess.SavedPath(); saved != "" {
		return saved, nil
	}
	res, ok := sess.controller.Result()
	switch st := sess.controller.State(); {
	case !ok || !st.Terminal():
		return "", ErrNotFinished
	case res.Path == "":
		return "", ErrNothingToSave
	}

	dir := s.defaults.SaveDir
	if dir == "" {
		dir = "."
	}
	prefix := s.defaults.Prefix
	if prefix == "" {
		prefix = "screencap"
	}
	target, err := capture.NextFilename(dir, prefix+"_"+string(sess.Request.Mode), sess.Request.Extension())
	if err != nil {
		return "", err
	}
	// The controller keeps the file until the move succeeds.
	if err := moveFile(res.Path, target); err != nil {
		return "", capture.NewIOError("save output", err)
	}
	if _, err := sess.controller.HandOff(); err != nil {
		s.logger.Warn("Saved output was not handed off", "session_id", sess.ID, "error", err)
	}

	sess.mu.Lock()
	sess.savedPath = target
	sess.mu.Unlock()

	s.logger.Info("Session saved", "session_id", sess.ID, "path", target)
	if s.eventBus != nil {
		s.eventBus.Publish(events.SessionSavedEvent{
			SessionID: sess.ID,
			Path:      target,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return target, nil
}

// Discard stops the current session if needed, deletes its files and
// forgets it.
func (s *Service) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoSession
	}
	sess := s.current
	if sess.SavedPath() == "" {
		if err := sess.controller.Discard(); err != nil && !errors.Is(err, lifecycle.ErrInvalidState) {
			return err
		}
	}
	s.closeLocked()

	s.logger.Info("Session discarded", "session_id", sess.ID)
	if s.eventBus != nil {
		s.eventBus.Publish(events.SessionDiscardedEvent{
			SessionID: sess.ID,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return nil
}

// Close tears down the current session.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.closeLocked()
	}
}

func (s *Service) closeLocked() {
	if err := s.current.controller.Close(); err != nil {
		s.logger.Warn("Failed to close session", "session_id", s.current.ID, "error", err)
	}
	metrics.DeleteSessionMetrics(s.current.ID)
	s.current = nil
}

// moveFile renames src to dst, copying when they sit on different
// filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
