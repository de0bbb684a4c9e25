package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/screencap/cmd"
	"github.com/smazurov/screencap/internal/api"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/config"
	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/metrics/exporters"
	"github.com/smazurov/screencap/internal/recorder"
	"github.com/smazurov/screencap/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port        string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	WatchConfig bool   `help:"Apply config file changes while serving" default:"true" toml:"server.watch_config" env:"SERVER_WATCH_CONFIG"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Engine settings
	Engine       string `help:"Media engine (auto, native, launch)" default:"auto" toml:"capture.engine" env:"ENGINE"`
	LaunchBinary string `help:"gst-launch binary for the launch engine" default:"" toml:"capture.launch_binary" env:"LAUNCH_BINARY"`
	StopTimeout  string `help:"Wait for a drained exit before killing the launcher" default:"10s" toml:"capture.stop_timeout" env:"STOP_TIMEOUT"`

	// Discovery settings
	Display        string `help:"Monitor discovery (auto, mutter, xrandr)" default:"auto" toml:"capture.display" env:"DISPLAY_BACKEND"`
	AudioBackend   string `help:"Audio backend (pulse, alsa)" default:"pulse" toml:"capture.audio_backend" env:"AUDIO_BACKEND"`
	ExcludeWindows string `help:"Comma separated window name fragments never picked by point" default:"" toml:"capture.exclude_windows" env:"EXCLUDE_WINDOWS"`

	// Capture defaults
	Codec         string `help:"Default video codec" default:"vp8" toml:"capture.codec" env:"CODEC"`
	Framerate     int    `help:"Default frames per second" default:"15" toml:"capture.framerate" env:"FRAMERATE"`
	CaptureCursor bool   `help:"Draw the mouse pointer by default" default:"true" toml:"capture.capture_cursor" env:"CAPTURE_CURSOR"`
	AllowAdvanced bool   `help:"Permit advanced codecs" default:"false" toml:"capture.allow_advanced" env:"ALLOW_ADVANCED"`
	DestDir       string `help:"Directory for in-progress output" default:"" toml:"capture.dest_dir" env:"DEST_DIR"`
	SaveDir       string `help:"Directory receiving saved files" default:"." toml:"capture.save_dir" env:"SAVE_DIR"`
	Prefix        string `help:"Saved file name prefix" default:"screencap" toml:"capture.prefix" env:"PREFIX"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool `help:"Publish session metrics on /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingRecorder  string `help:"Recorder logging level" default:"info" toml:"logging.recorder" env:"LOGGING_RECORDER"`
	LoggingLifecycle string `help:"Lifecycle logging level" default:"info" toml:"logging.lifecycle" env:"LOGGING_LIFECYCLE"`
	LoggingEngine    string `help:"Engine logging level" default:"info" toml:"logging.engine" env:"LOGGING_ENGINE"`
	LoggingGstreamer string `help:"GStreamer output logging level" default:"warn" toml:"logging.gstreamer" env:"LOGGING_GSTREAMER"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"api":       o.LoggingAPI,
			"http":      o.LoggingAPI,
			"recorder":  o.LoggingRecorder,
			"lifecycle": o.LoggingLifecycle,
			"engine":    o.LoggingEngine,
			"gstreamer": o.LoggingGstreamer,
		},
	}
}

func (o *Options) stackOptions() (cmd.StackOptions, error) {
	stopTimeout, err := time.ParseDuration(o.StopTimeout)
	if err != nil {
		return cmd.StackOptions{}, err
	}
	codec, err := capture.ParseCodec(o.Codec)
	if err != nil {
		return cmd.StackOptions{}, err
	}
	return cmd.StackOptions{
		Engine:         o.Engine,
		LaunchBinary:   o.LaunchBinary,
		StopTimeout:    stopTimeout,
		Display:        o.Display,
		AudioBackend:   o.AudioBackend,
		ExcludeWindows: cmd.SplitList(o.ExcludeWindows),
		Defaults: recorder.Defaults{
			Codec:         codec,
			Framerate:     o.Framerate,
			CaptureCursor: o.CaptureCursor,
			AllowAdvanced: o.AllowAdvanced,
			DestDir:       o.DestDir,
			SaveDir:       o.SaveDir,
			Prefix:        o.Prefix,
		},
	}, nil
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		// Everything below only runs for the server; subcommands build
		// their own stack.
		var (
			server    *api.Server
			stack     *cmd.Stack
			watcher   *config.Watcher[config.Settings]
			sseExport *exporters.SSEExporter
			cancel    context.CancelFunc = func() {}
		)

		hooks.OnStart(func() {
			stackOpts, err := opts.stackOptions()
			if err != nil {
				logger.Error("Invalid capture options", "error", err)
				os.Exit(1)
			}

			eventBus := events.New()
			stackOpts.EventBus = eventBus
			stack, err = cmd.NewStack(stackOpts)
			if err != nil {
				logger.Error("Failed to set up capture stack", "error", err)
				os.Exit(1)
			}
			logger.Info("Capture stack ready", "engine", stack.EngineName, "audio_backend", stack.Audio.Backend())

			apiOpts := &api.Options{
				AuthUsername: opts.AuthUsername,
				AuthPassword: opts.AuthPassword,
				Recorder:     stack.Recorder,
				EventBus:     eventBus,
				Monitors:     stack.Monitors,
				Audio:        stack.Audio,
			}
			if opts.MetricsPrometheusEnabled {
				apiOpts.PrometheusHandler = exporters.HTTPHandler()
			}
			server = api.NewServer(apiOpts)

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			if opts.MetricsSSEEnabled {
				sseExport = exporters.NewSSEExporter(eventBus)
				sseExport.Start(ctx)
			}

			if opts.WatchConfig && opts.Config != "" {
				watcher = config.NewConfigWatcher(opts.Config, config.LoadSettings, logging.GetLogger("config"))
				watcher.OnReload(func(s config.Settings) {
					applySettings(s, opts.Config, stack.Recorder, eventBus, logger)
				})
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to watch config file", "path", opts.Config, "error", startErr)
				}
			}

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("sd_notify failed", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}

			// Sessions are torn down after the server stops taking requests.
			if stack != nil {
				stack.Recorder.Close()
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
			if sseExport != nil {
				sseExport.Stop()
			}
			cancel()
		})
	})

	cli.Root().Use = "screencap"
	cli.Root().Short = "Screen and webcam capture service"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateScreenshotCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateValidateCmd())

	// Run the CLI
	cli.Run()
}

// applySettings pushes reloaded config into the running service. Settings
// that shape the stack itself (engine, display, audio backend) need a
// restart.
func applySettings(s config.Settings, path string, rec *recorder.Service, bus *events.Bus, logger *slog.Logger) {
	logging.Initialize(s.Logging)

	defaults, err := s.Capture.Defaults()
	if err != nil {
		logger.Warn("Ignoring reloaded capture settings", "error", err)
	} else {
		if defaults.SaveDir == "" {
			defaults.SaveDir = rec.Defaults().SaveDir
		}
		if defaults.Prefix == "" {
			defaults.Prefix = rec.Defaults().Prefix
		}
		rec.SetDefaults(defaults)
	}

	bus.Publish(events.ConfigReloadedEvent{
		Path:      path,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	logger.Info("Configuration reloaded", "path", path)
}
