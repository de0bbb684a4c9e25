package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[Settings]) *Watcher[Settings] {
	t.Helper()
	opts = append([]WatcherOption[Settings]{WithDebounce[Settings](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, LoadSettings, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return w
}

func receive(t *testing.T, ch <-chan Settings) Settings {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
		return Settings{}
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[capture]\nframerate = 15\n")
	w := startWatcher(t, path)

	received := make(chan Settings, 4)
	w.OnReload(func(s Settings) { received <- s })

	if err := os.WriteFile(path, []byte("[capture]\nframerate = 24\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if s := receive(t, received); s.Capture.Framerate != 24 {
		t.Errorf("Framerate = %d, want 24", s.Capture.Framerate)
	}
}

func TestWatcherSeesAtomicReplace(t *testing.T) {
	path := writeConfig(t, "[capture]\nprefix = \"old\"\n")
	w := startWatcher(t, path)

	received := make(chan Settings, 4)
	w.OnReload(func(s Settings) { received <- s })

	tmp := filepath.Join(filepath.Dir(path), ".screencap.toml.swp")
	if err := os.WriteFile(tmp, []byte("[capture]\nprefix = \"new\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	if s := receive(t, received); s.Capture.Prefix != "new" {
		t.Errorf("Prefix = %q, want new", s.Capture.Prefix)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "")
	w := startWatcher(t, path)

	received := make(chan Settings, 4)
	w.OnReload(func(s Settings) { received <- s })

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-received:
		t.Error("reload triggered by unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeConfig(t, "")
	w := startWatcher(t, path)

	received := make(chan Settings, 10)
	w.OnReload(func(s Settings) { received <- s })

	for i := 1; i <= 5; i++ {
		content := []byte("[capture]\nframerate = " + string(rune('0'+i)) + "\n")
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if s := receive(t, received); s.Capture.Framerate != 5 {
		t.Errorf("Framerate = %d, want 5", s.Capture.Framerate)
	}
	select {
	case <-received:
		t.Error("expected a single reload for a burst of writes")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := writeConfig(t, "")
	w := startWatcher(t, path)

	first := make(chan Settings, 4)
	second := make(chan Settings, 4)
	unsub := w.OnReload(func(s Settings) { first <- s })
	w.OnReload(func(s Settings) { second <- s })
	unsub()

	if err := os.WriteFile(path, []byte("[capture]\nframerate = 20\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	receive(t, second)
	select {
	case <-first:
		t.Error("unsubscribed handler was called")
	default:
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := writeConfig(t, "")
	errs := make(chan error, 4)
	w := startWatcher(t, path, WithErrorHandler[Settings](func(err error) { errs <- err }))

	received := make(chan Settings, 4)
	w.OnReload(func(s Settings) { received <- s })

	if err := os.WriteFile(path, []byte("[capture\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	select {
	case <-received:
		t.Error("handler called with invalid config")
	default:
	}
}

func TestWatcherStopBeforeStart(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "x.toml"), func(string) (int, error) {
		return 0, errors.New("unused")
	}, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
}
