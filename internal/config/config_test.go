package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	Config string

	Port          int           `toml:"server.port" env:"PORT"`
	Engine        string        `toml:"capture.engine" env:"ENGINE"`
	AllowAdvanced bool          `toml:"capture.allow_advanced" env:"ALLOW_ADVANCED"`
	StopTimeout   time.Duration `toml:"capture.stop_timeout" env:"STOP_TIMEOUT"`
	ExcludeWindow []string      `toml:"capture.exclude_windows" env:"EXCLUDE_WINDOWS"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screencap.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
[server]
port = 9000

[capture]
engine = "launch"
allow_advanced = true
stop_timeout = "3s"
exclude_windows = ["Screencap", "Panel"]
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &serveOptions{Config: writeConfig(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != 9000 {
		t.Errorf("Port = %d, want 9000", opts.Port)
	}
	if opts.Engine != "launch" {
		t.Errorf("Engine = %q, want launch", opts.Engine)
	}
	if !opts.AllowAdvanced {
		t.Error("AllowAdvanced = false, want true")
	}
	if opts.StopTimeout != 3*time.Second {
		t.Errorf("StopTimeout = %v, want 3s", opts.StopTimeout)
	}
	if want := []string{"Screencap", "Panel"}; !reflect.DeepEqual(opts.ExcludeWindow, want) {
		t.Errorf("ExcludeWindow = %v, want %v", opts.ExcludeWindow, want)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("SCREENCAP_PORT", "9100")
	t.Setenv("SCREENCAP_STOP_TIMEOUT", "250ms")
	t.Setenv("SCREENCAP_EXCLUDE_WINDOWS", "A, B")

	opts := &serveOptions{Config: writeConfig(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Port != 9100 {
		t.Errorf("Port = %d, want 9100", opts.Port)
	}
	if opts.StopTimeout != 250*time.Millisecond {
		t.Errorf("StopTimeout = %v, want 250ms", opts.StopTimeout)
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(opts.ExcludeWindow, want) {
		t.Errorf("ExcludeWindow = %v, want %v", opts.ExcludeWindow, want)
	}
	if opts.Engine != "launch" {
		t.Errorf("Engine = %q, want launch from file", opts.Engine)
	}
}

func TestLoadConfigChangedFlagWins(t *testing.T) {
	t.Setenv("SCREENCAP_PORT", "9100")

	opts := &serveOptions{Config: writeConfig(t, sampleConfig)}
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().IntVar(&opts.Port, "port", 8090, "")
	cmd.Flags().StringVar(&opts.Engine, "engine", "auto", "")
	if err := cmd.Flags().Parse([]string{"--port", "7000"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != 7000 {
		t.Errorf("Port = %d, want 7000 from flag", opts.Port)
	}
	// Unchanged flags still take file values.
	if opts.Engine != "launch" {
		t.Errorf("Engine = %q, want launch", opts.Engine)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &serveOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, want default 8090", opts.Port)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	opts := &serveOptions{Config: writeConfig(t, "[server\nport = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Error("expected parse error")
	}

	opts = &serveOptions{Config: writeConfig(t, "[server]\nport = \"high\"\n")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Error("expected type error for string port")
	}

	t.Setenv("SCREENCAP_ALLOW_ADVANCED", "maybe")
	opts = &serveOptions{}
	if err := LoadConfig(opts, nil); err == nil {
		t.Error("expected error for invalid bool in environment")
	}
}

func TestDurationAsSeconds(t *testing.T) {
	opts := &serveOptions{Config: writeConfig(t, "[capture]\nstop_timeout = 4\n")}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatal(err)
	}
	if opts.StopTimeout != 4*time.Second {
		t.Errorf("StopTimeout = %v, want 4s", opts.StopTimeout)
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
		"top": int64(1),
	}
	tests := []struct {
		path string
		want any
	}{
		{"a.b.c", "deep"},
		{"top", int64(1)},
		{"a.x.c", nil},
		{"top.x", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"AllowAdvanced":     "allow-advanced",
		"LoggingLevel":      "logging-level",
		"LoggingAPI":        "logging-api",
		"SSEEnabled":        "sse-enabled",
		"MetricsSSEEnabled": "metrics-sse-enabled",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
