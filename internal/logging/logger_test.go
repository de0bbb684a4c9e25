package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetForTest(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer

	mu.Lock()
	modules = make(map[string]*moduleLogger)
	initialized = false
	current = Config{}
	prev := output
	output = &buf
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		output = prev
		mu.Unlock()
	})
	return &buf
}

func TestModuleLevelOverride(t *testing.T) {
	resetForTest(t)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"lifecycle": "debug",
			"api":       "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"lifecycle", true, true, true},
		{"api", false, false, true},
		{"pipeline", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestReinitializeKeepsLoggerIdentity(t *testing.T) {
	buf := resetForTest(t)

	Initialize(Config{Level: "info", Format: "text"})
	logger := GetLogger("recorder")

	logger.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatal("debug message logged at info level")
	}

	Initialize(Config{Level: "info", Format: "text", Modules: map[string]string{"recorder": "debug"}})
	if GetLogger("recorder") != logger {
		t.Fatal("GetLogger returned a different logger after Initialize")
	}

	logger.Debug("visible", "session_id", "abc")
	out := buf.String()
	if !strings.Contains(out, "visible") || !strings.Contains(out, "module=recorder") || !strings.Contains(out, "session_id=abc") {
		t.Errorf("unexpected output: %q", out)
	}
	if Level("recorder") != slog.LevelDebug {
		t.Errorf("Level(recorder) = %v, want debug", Level("recorder"))
	}
}

func TestFormatSwitch(t *testing.T) {
	buf := resetForTest(t)

	logger := GetLogger("api")
	Initialize(Config{Level: "info", Format: "json"})

	logger.Info("listening", "addr", ":8090")
	if !strings.Contains(buf.String(), `"msg":"listening"`) {
		t.Errorf("expected json output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

type recordingHandler struct {
	level   slog.Level
	records []string
}

func (h *recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r.Message)
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandler(t *testing.T) {
	debug := &recordingHandler{level: slog.LevelDebug}
	warn := &recordingHandler{level: slog.LevelWarn}
	logger := slog.New(NewMultiHandler(debug, warn))

	logger.Debug("d")
	logger.Warn("w")

	if len(debug.records) != 2 {
		t.Errorf("debug handler got %v", debug.records)
	}
	if len(warn.records) != 1 || warn.records[0] != "w" {
		t.Errorf("warn handler got %v", warn.records)
	}
}

func TestJournalFields(t *testing.T) {
	fields := map[string]string{}
	journalFields(fields, slog.String("session_id", "abc"), nil)
	journalFields(fields, slog.Int("frames", 42), []string{"stats"})
	journalFields(fields, slog.Group("rect", slog.Int("w", 1920)), nil)

	want := map[string]string{
		"SESSION_ID":   "abc",
		"STATS_FRAMES": "42",
		"RECT_W":       "1920",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, fields[k], v)
		}
	}
}
