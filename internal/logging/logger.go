package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mu          sync.RWMutex
	current     Config
	initialized bool
	modules     = make(map[string]*moduleLogger)
	rootLevel   = &slog.LevelVar{}

	// output is replaced in tests.
	output io.Writer = os.Stdout
)

// Initialize applies config. Module loggers created earlier keep their
// identity; their levels follow the new config.
func Initialize(config Config) {
	mu.Lock()
	defer mu.Unlock()

	formatChanged := !initialized || config.Format != current.Format
	current = config
	initialized = true

	rootLevel.Set(levelOr(config.Level, slog.LevelInfo))
	for name, m := range modules {
		m.level.Set(moduleLevel(config, name))
		if formatChanged {
			*m.logger = *slog.New(newHandler(config.Format, m.level)).With("module", name)
		}
	}

	slog.SetDefault(slog.New(newHandler(config.Format, rootLevel)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	m, ok := modules[module]
	mu.RUnlock()
	if ok {
		return m.logger
	}

	mu.Lock()
	defer mu.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	format := "text"
	if initialized {
		level.Set(moduleLevel(current, module))
		format = current.Format
	}
	m = &moduleLogger{
		logger: slog.New(newHandler(format, level)).With("module", module),
		level:  level,
	}
	modules[module] = m
	return m.logger
}

// Level returns the effective level of module.
func Level(module string) slog.Level {
	mu.RLock()
	defer mu.RUnlock()
	if m, ok := modules[module]; ok {
		return m.level.Level()
	}
	return moduleLevel(current, module)
}

func moduleLevel(config Config, module string) slog.Level {
	if s, ok := config.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	return levelOr(config.Level, slog.LevelInfo)
}

// newHandler builds the output chain: stdout when usable, journald when
// reachable.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var primary slog.Handler
	if format == "json" {
		primary = slog.NewJSONHandler(output, opts)
	} else {
		primary = slog.NewTextHandler(output, opts)
	}

	var handlers []slog.Handler
	if output != os.Stdout || stdoutUsable() {
		handlers = append(handlers, primary)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return primary
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// stdoutUsable is false when stdout is closed or /dev/null, as under a
// systemd unit with StandardOutput=null.
func stdoutUsable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return fallback
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
