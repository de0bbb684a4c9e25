package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/config"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/recorder"
	"github.com/smazurov/screencap/internal/resolver"
)

// captureOptions are shared by the capture subcommands. Tagged fields can
// also come from the config file or SCREENCAP_* variables; flag names are
// the kebab-case field names.
type captureOptions struct {
	Config string

	Engine         string        `toml:"capture.engine" env:"ENGINE"`
	LaunchBinary   string        `toml:"capture.launch_binary" env:"LAUNCH_BINARY"`
	StopTimeout    time.Duration `toml:"capture.stop_timeout" env:"STOP_TIMEOUT"`
	Display        string        `toml:"capture.display" env:"DISPLAY_BACKEND"`
	AudioBackend   string        `toml:"capture.audio_backend" env:"AUDIO_BACKEND"`
	ExcludeWindows []string      `toml:"capture.exclude_windows" env:"EXCLUDE_WINDOWS"`
	Codec          string        `toml:"capture.codec" env:"CODEC"`
	Framerate      int           `toml:"capture.framerate" env:"FRAMERATE"`
	Cursor         bool          `toml:"capture.capture_cursor" env:"CAPTURE_CURSOR"`
	AllowAdvanced  bool          `toml:"capture.allow_advanced" env:"ALLOW_ADVANCED"`
	DestDir        string        `toml:"capture.dest_dir" env:"DEST_DIR"`
	SaveDir        string        `toml:"capture.save_dir" env:"SAVE_DIR"`
	Prefix         string        `toml:"capture.prefix" env:"PREFIX"`
	LogJSON        bool

	// Per-invocation choices, flags only.
	Target     string
	Monitor    int
	Area       string
	Window     string
	Point      string
	Device     string
	Resolution string
	Audio      []string
	Borders    bool
	Preview    bool
	TestSource bool
	Server     string
	StreamKey  string
	Bitrate    int
}

func (o *captureOptions) addStackFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Config, "config", "config.toml", "Path to configuration file")
	f.StringVar(&o.Engine, "engine", EngineAuto, "Media engine: auto, native or launch")
	f.StringVar(&o.LaunchBinary, "launch-binary", "", "gst-launch binary for the launch engine")
	f.DurationVar(&o.StopTimeout, "stop-timeout", 10*time.Second, "Wait for a drained exit before killing the launcher")
	f.StringVar(&o.Display, "display", "auto", "Monitor discovery: auto, mutter or xrandr")
	f.StringVar(&o.AudioBackend, "audio-backend", "pulse", "Audio backend: pulse or alsa")
	f.StringSliceVar(&o.ExcludeWindows, "exclude-windows", nil, "Window name fragments never picked by --point")
	f.BoolVar(&o.LogJSON, "log-json", false, "Use JSON log format")
}

func (o *captureOptions) addEncodeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Codec, "codec", "vp8", "Video codec: raw, vp8, h264, huffyuv or jpeg")
	f.IntVar(&o.Framerate, "framerate", resolver.DefaultFramerate, "Frames per second")
	f.BoolVar(&o.Cursor, "cursor", true, "Draw the mouse pointer")
	f.BoolVar(&o.AllowAdvanced, "allow-advanced", false, "Permit advanced codecs")
	f.StringSliceVar(&o.Audio, "audio", nil, "Audio source handle, up to two (repeatable)")
	f.BoolVar(&o.Preview, "preview", false, "Show a webcam preview window")
	f.BoolVar(&o.TestSource, "test-source", false, "Use a synthetic video source")
	f.StringVar(&o.Server, "server", "", "RTMP server URL (broadcast)")
	f.StringVar(&o.StreamKey, "stream-key", "", "RTMP stream key (broadcast)")
	f.IntVar(&o.Bitrate, "bitrate", resolver.DefaultBroadcastBitrate, "Video bitrate in kbit/s (broadcast)")
}

func (o *captureOptions) addTargetFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Target, "target", resolver.SelectFull, "Target: full, all, area, window, active or webcam")
	f.IntVar(&o.Monitor, "monitor", 0, "Monitor index for --target full when neither --window nor --point is set")
	f.StringVar(&o.Area, "area", "", "Area as x1,y1,x2,y2 for --target area")
	f.StringVar(&o.Window, "window", "", "X11 window id (decimal or 0x hex) for --target window, or the window whose monitor --target full captures")
	f.StringVar(&o.Point, "point", "", "Pick the window under x,y for --target window, or the monitor under it for --target full")
	f.StringVar(&o.Device, "device", "/dev/video0", "Webcam device for webcam mode")
	f.StringVar(&o.Resolution, "resolution", "", "Webcam size as WxH")
	f.StringVar(&o.DestDir, "dest-dir", "", "Directory for in-progress output")
	f.StringVar(&o.SaveDir, "save-dir", ".", "Directory receiving saved files")
	f.StringVar(&o.Prefix, "prefix", "screencap", "Saved file name prefix")
}

// load applies config file and environment values, then sets up logging.
func (o *captureOptions) load(cmd *cobra.Command) error {
	if err := config.LoadConfig(o, cmd); err != nil {
		return err
	}
	logCfg := config.LoadLoggingConfig(o.Config)
	if o.LogJSON {
		logCfg.Format = "json"
	}
	logging.Initialize(logCfg)
	return nil
}

func (o *captureOptions) stackOptions() (StackOptions, error) {
	codec := capture.CodecVP8
	if o.Codec != "" {
		var err error
		if codec, err = capture.ParseCodec(o.Codec); err != nil {
			return StackOptions{}, err
		}
	}
	return StackOptions{
		Engine:         o.Engine,
		LaunchBinary:   o.LaunchBinary,
		StopTimeout:    o.StopTimeout,
		Display:        o.Display,
		AudioBackend:   o.AudioBackend,
		ExcludeWindows: o.ExcludeWindows,
		Defaults: recorder.Defaults{
			Codec:         codec,
			Framerate:     o.Framerate,
			CaptureCursor: o.Cursor,
			AllowAdvanced: o.AllowAdvanced,
			DestDir:       o.DestDir,
			SaveDir:       o.SaveDir,
			Prefix:        o.Prefix,
		},
	}, nil
}

// selections converts the flags into picker output for mode.
func (o *captureOptions) selections(mode capture.Mode) (resolver.Selections, error) {
	sel := resolver.Selections{
		Mode:          mode,
		Codec:         capture.CodecVP8,
		Framerate:     o.Framerate,
		Audio:         o.Audio,
		CaptureCursor: o.Cursor,
		Borders:       o.Borders,
		Preview:       o.Preview,
		AllowAdvanced: o.AllowAdvanced,
		TestSource:    o.TestSource,
		Target:        resolver.TargetSelection{Kind: o.Target, Monitor: o.Monitor, Device: o.Device},
	}
	if o.Codec != "" {
		codec, err := capture.ParseCodec(o.Codec)
		if err != nil {
			return resolver.Selections{}, err
		}
		sel.Codec = codec
	}
	if mode == capture.ModeWebcam {
		sel.Target.Kind = resolver.SelectWebcam
	}

	var err error
	if o.Area != "" {
		if sel.Target.Area, err = parseArea(o.Area); err != nil {
			return resolver.Selections{}, err
		}
	}
	if o.Window != "" {
		id, perr := strconv.ParseUint(o.Window, 0, 32)
		if perr != nil {
			return resolver.Selections{}, capture.NewConfigError("invalid window id "+o.Window, perr)
		}
		sel.Target.Window = uint32(id)
	}
	if o.Point != "" {
		p, perr := parsePoint(o.Point)
		if perr != nil {
			return resolver.Selections{}, perr
		}
		sel.Target.Point = &p
	}
	if o.Resolution != "" {
		if sel.Target.Resolution, err = parseSize(o.Resolution); err != nil {
			return resolver.Selections{}, err
		}
	}
	if mode == capture.ModeBroadcast {
		sel.Broadcast = &capture.BroadcastDest{ServerURL: o.Server, StreamKey: o.StreamKey, Bitrate: o.Bitrate}
	}
	return sel, nil
}

func parseInts(s string, n int, what string) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, capture.NewConfigError(fmt.Sprintf("%s needs %d comma separated values", what, n), nil)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, capture.NewConfigError("invalid "+what+" "+s, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseArea(s string) (capture.Rect, error) {
	v, err := parseInts(s, 4, "area")
	if err != nil {
		return capture.Rect{}, err
	}
	return capture.Rect{StartX: v[0], StartY: v[1], EndX: v[2], EndY: v[3]}, nil
}

func parsePoint(s string) (capture.Point, error) {
	v, err := parseInts(s, 2, "point")
	if err != nil {
		return capture.Point{}, err
	}
	return capture.Point{X: v[0], Y: v[1]}, nil
}

func parseSize(s string) (capture.Size, error) {
	v, err := parseInts(strings.Replace(strings.ToLower(s), "x", ",", 1), 2, "resolution")
	if err != nil {
		return capture.Size{}, err
	}
	return capture.Size{Width: v[0], Height: v[1]}, nil
}
