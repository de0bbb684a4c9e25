package launch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/pipeline"
)

func testGraph(t *testing.T) *pipeline.Graph {
	t.Helper()
	g := pipeline.NewGraph(capture.ModeScreencast)
	require.NoError(t, g.Add(&pipeline.Stage{ID: "video_src", Kind: pipeline.KindSource, Factory: "videotestsrc"}))
	require.NoError(t, g.Add(&pipeline.Stage{ID: "sink", Kind: pipeline.KindSink, Factory: "filesink",
		Props: pipeline.Props{"location": pipeline.ArtifactOutput}}))
	require.NoError(t, g.Link("video_src", "sink"))
	return g
}

// fakeLauncher writes a shell script standing in for gst-launch-1.0.
func fakeLauncher(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gst-launch")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestEngine(t *testing.T, script string) *Engine {
	t.Helper()
	e := New(Options{
		Binary:      fakeLauncher(t, script),
		StopTimeout: 500 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func next(t *testing.T, e *Engine, kind engine.MessageKind) engine.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-e.Messages():
			if m.Kind == kind {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s message", kind)
		}
	}
}

func TestLoadRendersArguments(t *testing.T) {
	e := newTestEngine(t, "exit 0")
	err := e.Load(testGraph(t), pipeline.Files{pipeline.ArtifactOutput: "/tmp/out.movie"})
	require.NoError(t, err)

	args := e.CommandLine()
	require.GreaterOrEqual(t, len(args), 3)
	assert.Equal(t, "-e", args[1])
	assert.Contains(t, args, "location=/tmp/out.movie")
	assert.Contains(t, args, "name=video_src")

	assert.ErrorIs(t, e.Load(testGraph(t), pipeline.Files{pipeline.ArtifactOutput: "/x"}), engine.ErrLoaded)
}

func TestLoadRequiresArtifacts(t *testing.T) {
	e := newTestEngine(t, "exit 0")
	err := e.Load(testGraph(t), nil)
	assert.Equal(t, capture.KindBuild, capture.KindOf(err))
}

func TestSetStateBeforeLoad(t *testing.T) {
	e := newTestEngine(t, "exit 0")
	assert.ErrorIs(t, e.SetState(engine.StatePlaying), engine.ErrNotLoaded)
	assert.ErrorIs(t, e.SendEOS(), engine.ErrNotLoaded)
}

// lineWaiter is an output log handler that closes seen once a line
// equal to msg is logged.
type lineWaiter struct {
	msg  string
	seen chan struct{}
	once sync.Once
}

func (w *lineWaiter) Enabled(context.Context, slog.Level) bool { return true }

func (w *lineWaiter) Handle(_ context.Context, r slog.Record) error {
	if r.Message == w.msg {
		w.once.Do(func() { close(w.seen) })
	}
	return nil
}

func (w *lineWaiter) WithAttrs([]slog.Attr) slog.Handler { return w }
func (w *lineWaiter) WithGroup(string) slog.Handler      { return w }

func TestInterruptReportsEOS(t *testing.T) {
	ready := &lineWaiter{msg: "ready", seen: make(chan struct{})}
	e := New(Options{
		Binary:       fakeLauncher(t, "trap 'exit 0' INT; echo ready; while :; do sleep 0.05; done"),
		StopTimeout:  2 * time.Second,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		OutputLogger: slog.New(ready),
	})
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Load(testGraph(t), pipeline.Files{pipeline.ArtifactOutput: "/tmp/out.movie"}))

	require.NoError(t, e.SetState(engine.StatePlaying))
	m := next(t, e, engine.MessageStateChanged)
	assert.Equal(t, engine.StateNull, m.Old)
	assert.Equal(t, engine.StatePlaying, m.New)

	// The trap must be installed before the interrupt arrives.
	select {
	case <-ready.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("launcher never became ready")
	}

	require.NoError(t, e.SetState(engine.StatePaused))
	require.NoError(t, e.SendEOS())
	next(t, e, engine.MessageEOS)
}

func TestErrorExitReportsElement(t *testing.T) {
	e := newTestEngine(t, `echo "Setting pipeline to PAUSED ..." >&2
echo "ERROR: from element /GstPipeline:pipeline0/GstXImageSrc:video_src: Could not open X Display for reading." >&2
echo "Additional debug info:" >&2
echo "ximagesrc.c(172): gst_ximage_src_open (): cannot open display" >&2
exit 1`)
	require.NoError(t, e.Load(testGraph(t), pipeline.Files{pipeline.ArtifactOutput: "/tmp/out.movie"}))
	require.NoError(t, e.SetState(engine.StatePlaying))

	m := next(t, e, engine.MessageError)
	assert.Equal(t, "video_src", m.Source)
	assert.Equal(t, "Could not open X Display for reading.", m.Reason)
	assert.Contains(t, m.Debug, "cannot open display")
}

func TestRequestedStopIsSilent(t *testing.T) {
	e := newTestEngine(t, "trap 'exit 3' INT; while :; do sleep 0.05; done")
	require.NoError(t, e.Load(testGraph(t), pipeline.Files{pipeline.ArtifactOutput: "/tmp/out.movie"}))
	require.NoError(t, e.SetState(engine.StatePlaying))
	require.NoError(t, e.SetState(engine.StateNull))

	require.NoError(t, e.Close())
	for m := range e.Messages() {
		assert.Equal(t, engine.MessageStateChanged, m.Kind)
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		line   string
		source string
		reason string
		ok     bool
	}{
		{
			line:   "ERROR: from element /GstPipeline:pipeline0/GstX264Enc:video_enc: Can not initialize x264 encoder.",
			source: "video_enc",
			reason: "Can not initialize x264 encoder.",
			ok:     true,
		},
		{
			line:   `ERROR: pipeline could not be constructed: no element "vp8enc".`,
			reason: `pipeline could not be constructed: no element "vp8enc".`,
			ok:     true,
		},
		{line: "Setting pipeline to PLAYING ..."},
	}
	for _, tt := range tests {
		source, reason, ok := parseError(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.source, source, tt.line)
		assert.Equal(t, tt.reason, reason, tt.line)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line  string
		level string
		msg   string
	}{
		{"ERROR: from element x: y", "error", "from element x: y"},
		{"WARNING: erroneous pipeline: no element", "warning", "erroneous pipeline: no element"},
		{"Setting pipeline to PLAYING ...", "debug", "Setting pipeline to PLAYING ..."},
		{"Got EOS from element \"pipeline0\".", "debug", "Got EOS from element \"pipeline0\"."},
		{"Execution ended after 0:00:05.0", "debug", "Execution ended after 0:00:05.0"},
		{"some other line", "info", "some other line"},
	}
	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		assert.Equal(t, tt.level, level, tt.line)
		assert.Equal(t, tt.msg, msg, tt.line)
	}
}

func TestInspectorCaches(t *testing.T) {
	calls := map[string]int{}
	run := func(_ context.Context, name string, args ...string) error {
		require.Equal(t, "gst-inspect-1.0", name)
		require.Equal(t, "--exists", args[0])
		calls[args[1]]++
		if args[1] == "vp8enc" {
			return errors.New("exit status 1")
		}
		return nil
	}
	reg := NewInspector("", run)

	assert.True(t, reg.HasElement("x264enc"))
	assert.True(t, reg.HasElement("x264enc"))
	assert.False(t, reg.HasElement("vp8enc"))
	assert.False(t, reg.HasElement("vp8enc"))
	assert.Equal(t, map[string]int{"x264enc": 1, "vp8enc": 1}, calls)
}
