package recorder

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/display"
	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/engine/enginetest"
	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/lifecycle"
	"github.com/smazurov/screencap/internal/pipeline"
	"github.com/smazurov/screencap/internal/resolver"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	svc     *Service
	bus     *events.Bus
	engines []*enginetest.Engine
	saveDir string
	tempDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:     events.New(),
		saveDir: t.TempDir(),
		tempDir: t.TempDir(),
	}
	res := resolver.New(resolver.Context{
		Monitors: display.Static{{Name: "DP-1", Width: 1920, Height: 1080, Primary: true}},
	}, discard)
	f.svc = NewService(Options{
		Resolver: res,
		Builder:  pipeline.NewBuilder(pipeline.Env{Cores: 4}, nil, discard),
		Engine: func() (engine.Engine, error) {
			e := enginetest.New()
			f.engines = append(f.engines, e)
			return e, nil
		},
		EventBus: f.bus,
		Defaults: Defaults{
			Codec:     capture.CodecVP8,
			Framerate: 25,
			DestDir:   f.tempDir,
			SaveDir:   f.saveDir,
		},
		Logger: discard,
	})
	t.Cleanup(f.svc.Close)
	return f
}

func vp8Selection() resolver.Selections {
	return resolver.Selections{
		Mode:   capture.ModeScreencast,
		Target: resolver.TargetSelection{Kind: resolver.SelectFull},
		Codec:  capture.CodecVP8,
	}
}

func record(t *testing.T, f *fixture) *Session {
	t.Helper()
	sess, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)
	require.NoError(t, f.svc.Control("start"))
	require.NoError(t, f.svc.Control("stop"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.svc.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	return sess
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 25, sess.Request.Framerate)
	assert.Equal(t, f.tempDir, filepath.Dir(sess.Controller().TempFile()))

	info := sess.Info()
	assert.Equal(t, "building", info.State)
	assert.Equal(t, "vp8", info.Codec)
	assert.Contains(t, info.Pipeline, "vp8enc")
}

func TestCreateRejectedWhileActive(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)
	require.NoError(t, f.svc.Control("start"))

	_, err = f.svc.Create(context.Background(), vp8Selection())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestCreateReplacesFinishedSession(t *testing.T) {
	f := newFixture(t)
	first := record(t, f)
	firstTemp := first.Controller().TempFile()

	second, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NoFileExists(t, firstTemp)
	assert.True(t, f.engines[0].Closed())
}

func TestCreateResolveError(t *testing.T) {
	f := newFixture(t)
	sel := vp8Selection()
	sel.Target.Monitor = 3

	_, err := f.svc.Create(context.Background(), sel)
	assert.ErrorIs(t, err, capture.ErrConfig)

	_, err = f.svc.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSaveUsesAutosaveNames(t *testing.T) {
	f := newFixture(t)

	saved := make(chan events.SessionSavedEvent, 1)
	unsub := f.bus.Subscribe(func(e events.SessionSavedEvent) { saved <- e })
	defer unsub()

	// Index 0 is taken already.
	taken := filepath.Join(f.saveDir, "screencap_screencast_00000.webm")
	require.NoError(t, os.WriteFile(taken, nil, 0o600))

	sess := record(t, f)
	temp := sess.Controller().TempFile()

	path, err := f.svc.Save()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.saveDir, "screencap_screencast_00001.webm"), path)
	assert.FileExists(t, path)
	assert.NoFileExists(t, temp)
	assert.Equal(t, path, sess.SavedPath())

	again, err := f.svc.Save()
	require.NoError(t, err)
	assert.Equal(t, path, again)

	select {
	case e := <-saved:
		assert.Equal(t, sess.ID, e.SessionID)
		assert.Equal(t, path, e.Path)
	case <-time.After(time.Second):
		t.Fatal("saved event not published")
	}

	// Closing the service keeps the saved file.
	f.svc.Close()
	assert.FileExists(t, path)
}

func TestSaveBeforeFinish(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Save()
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)
	require.NoError(t, f.svc.Control("start"))

	_, err = f.svc.Save()
	assert.ErrorIs(t, err, ErrNotFinished)
}

func TestSaveRetriesAfterMoveFailure(t *testing.T) {
	f := newFixture(t)
	sess := record(t, f)
	temp := sess.Controller().TempFile()

	d := f.svc.Defaults()
	d.SaveDir = filepath.Join(f.saveDir, "missing")
	f.svc.SetDefaults(d)

	_, err := f.svc.Save()
	assert.ErrorIs(t, err, capture.ErrIO)
	assert.FileExists(t, temp)
	assert.Empty(t, sess.SavedPath())

	d.SaveDir = f.saveDir
	f.svc.SetDefaults(d)
	path, err := f.svc.Save()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.NoFileExists(t, temp)
}

func TestFailedSessionOutputIsKept(t *testing.T) {
	fail := func(t *testing.T, f *fixture) *Session {
		t.Helper()
		sess, err := f.svc.Create(context.Background(), vp8Selection())
		require.NoError(t, err)
		require.NoError(t, f.svc.Control("start"))
		f.engines[0].Emit(engine.Error("video_enc", "Could not encode", ""))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		res, err := f.svc.Wait(ctx)
		require.NoError(t, err)
		require.ErrorIs(t, res.Err, capture.ErrRuntime)
		return sess
	}

	t.Run("close", func(t *testing.T) {
		f := newFixture(t)
		sess := fail(t, f)
		temp := sess.Controller().TempFile()
		assert.Contains(t, sess.Info().Error, "video_enc")

		f.svc.Close()
		assert.FileExists(t, temp)
	})

	t.Run("next create", func(t *testing.T) {
		f := newFixture(t)
		temp := fail(t, f).Controller().TempFile()

		_, err := f.svc.Create(context.Background(), vp8Selection())
		require.NoError(t, err)
		assert.FileExists(t, temp)
	})

	t.Run("save", func(t *testing.T) {
		f := newFixture(t)
		sess := fail(t, f)
		temp := sess.Controller().TempFile()

		path, err := f.svc.Save()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(f.saveDir, "screencap_screencast_00000.webm"), path)
		assert.FileExists(t, path)
		assert.NoFileExists(t, temp)
	})
}

func TestDiscard(t *testing.T) {
	f := newFixture(t)
	sess := record(t, f)
	temp := sess.Controller().TempFile()

	require.NoError(t, f.svc.Discard())
	assert.NoFileExists(t, temp)
	_, err := f.svc.Current()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, f.svc.Discard(), ErrNoSession)
}

func TestDiscardWhileRecording(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)
	require.NoError(t, f.svc.Control("start"))
	temp := sess.Controller().TempFile()

	require.NoError(t, f.svc.Discard())
	assert.NoFileExists(t, temp)
	assert.Equal(t, lifecycle.StateIdle, sess.Controller().State())
}

func TestControl(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Control("start"), ErrNoSession)

	_, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Control("pause"), lifecycle.ErrInvalidState)
	require.NoError(t, f.svc.Control("start"))
	require.NoError(t, f.svc.Control("pause"))
	require.NoError(t, f.svc.Control("resume"))
	assert.Error(t, f.svc.Control("rewind"))
}

func TestSetDefaults(t *testing.T) {
	f := newFixture(t)
	d := f.svc.Defaults()
	d.Framerate = 30
	f.svc.SetDefaults(d)

	sess, err := f.svc.Create(context.Background(), vp8Selection())
	require.NoError(t, err)
	assert.Equal(t, 30, sess.Request.Framerate)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.movie")
	dst := filepath.Join(dir, "b.webm")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))

	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
