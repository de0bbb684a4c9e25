// Package resolver turns raw capture selections into validated requests.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smazurov/screencap/internal/audio"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/geometry"
)

// Target selection kinds as a picker reports them.
const (
	SelectFull     = "full"
	SelectCombined = "all"
	SelectArea     = "area"
	SelectWindow   = "window"
	SelectActive   = "active"
	SelectWebcam   = "webcam"
)

// Defaults applied to missing selections.
const (
	DefaultFramerate        = 15
	MaxFramerate            = 60
	DefaultBroadcastBitrate = 2500
)

// DefaultWebcamResolution is used when a webcam selection carries no size.
var DefaultWebcamResolution = capture.Size{Width: 640, Height: 480}

// TargetSelection is the picker output.
type TargetSelection struct {
	Kind    string       `json:"kind" enum:"full,all,area,window,active,webcam" doc:"Capture target kind"`
	Monitor int          `json:"monitor,omitempty" doc:"Monitor index for full-screen capture"`
	Area    capture.Rect `json:"area,omitempty" doc:"Selected area in desktop coordinates"`
	Window  uint32       `json:"window,omitempty" doc:"X11 window id"`
	// Point picks the window under a screen position when Window is 0. For
	// full-screen capture Window and Point pick the monitor instead of the
	// Monitor index.
	Point      *capture.Point `json:"point,omitempty" doc:"Screen point used to pick a window or monitor"`
	Device     string         `json:"device,omitempty" doc:"Webcam device path"`
	Resolution capture.Size   `json:"resolution,omitempty" doc:"Webcam resolution"`
}

// Selections are the raw choices made by the user.
type Selections struct {
	Mode          capture.Mode           `json:"mode"`
	Target        TargetSelection        `json:"target"`
	Codec         capture.CodecID        `json:"codec"`
	Framerate     int                    `json:"framerate,omitempty"`
	Audio         []string               `json:"audio,omitempty" maxItems:"2" doc:"Audio source handles"`
	CaptureCursor bool                   `json:"capture_cursor"`
	Borders       bool                   `json:"borders,omitempty" doc:"Include window decorations (screenshots)"`
	Preview       bool                   `json:"preview,omitempty"`
	AllowAdvanced bool                   `json:"allow_advanced,omitempty"`
	TestSource    bool                   `json:"test_source,omitempty"`
	Broadcast     *capture.BroadcastDest `json:"broadcast,omitempty"`
	DestDir       string                 `json:"dest_dir,omitempty"`
}

// Context carries the collaborators and defaults the resolver reads. It is
// passed in explicitly; nothing is looked up globally.
type Context struct {
	Monitors geometry.MonitorProvider
	Windows  geometry.WindowManager
	Audio    audio.Enumerator

	// ExcludeWindows are name fragments of windows that are never picked,
	// such as the capture tool's own.
	ExcludeWindows []string
	DestDir        string
}

// Resolver validates selections against the current desktop.
type Resolver struct {
	env    Context
	logger *slog.Logger
}

// New creates a resolver.
func New(env Context, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{env: env, logger: logger}
}

// Resolve produces a capture request. It only queries collaborators and
// never touches files or the media engine. Failures are ConfigErrors.
func (r *Resolver) Resolve(ctx context.Context, sel Selections) (capture.Request, error) {
	req := capture.Request{
		Mode:          sel.Mode,
		Framerate:     normalizeFramerate(sel.Framerate),
		CaptureCursor: sel.CaptureCursor,
		Preview:       sel.Preview && sel.Mode == capture.ModeWebcam,
		TestSource:    sel.TestSource,
		DestDir:       sel.DestDir,
	}
	if req.Mode == "" {
		req.Mode = capture.ModeScreencast
	}
	if req.DestDir == "" {
		req.DestDir = r.env.DestDir
	}

	codec, err := r.resolveCodec(req.Mode, sel)
	if err != nil {
		return capture.Request{}, err
	}
	req.Codec = codec

	if err := r.resolveTarget(ctx, &req, sel); err != nil {
		return capture.Request{}, err
	}

	if req.Codec == capture.CodecH264 && req.Mode != capture.ModeScreenshot && usesRect(req.Target) {
		req.Target.Rect = geometry.AlignH264(req.Target.Rect)
	}

	if err := r.resolveAudio(ctx, &req, sel.Audio); err != nil {
		return capture.Request{}, err
	}

	if req.Mode == capture.ModeBroadcast {
		if sel.Broadcast == nil || sel.Broadcast.ServerURL == "" {
			return capture.Request{}, capture.NewConfigError("broadcast requires a server URL", nil)
		}
		dest := *sel.Broadcast
		if dest.Bitrate <= 0 {
			dest.Bitrate = DefaultBroadcastBitrate
		}
		req.Broadcast = &dest
	}

	if err := req.Validate(); err != nil {
		return capture.Request{}, err
	}

	r.logger.Debug("Resolved capture request",
		"mode", req.Mode,
		"target", req.Target.Kind,
		"rect", req.Target.Rect.String(),
		"codec", req.Codec.String(),
		"audio_sources", len(req.Audio),
		"warnings", len(req.Warnings))
	return req, nil
}

func (r *Resolver) resolveCodec(mode capture.Mode, sel Selections) (capture.CodecID, error) {
	if mode == capture.ModeBroadcast {
		if sel.Codec != capture.CodecH264 {
			r.logger.Debug("Broadcast overrides codec", "requested", sel.Codec.String())
		}
		return capture.CodecH264, nil
	}
	c, ok := capture.LookupCodec(sel.Codec)
	if !ok {
		return 0, capture.NewConfigError(fmt.Sprintf("unknown codec %d", sel.Codec), nil)
	}
	if c.Advanced && !sel.AllowAdvanced {
		return 0, capture.NewConfigError(fmt.Sprintf("codec %s is advanced and not enabled", c.Name), nil)
	}
	return c.ID, nil
}

func (r *Resolver) resolveTarget(ctx context.Context, req *capture.Request, sel Selections) error {
	if req.Mode == capture.ModeWebcam || sel.Target.Kind == SelectWebcam {
		if req.Mode != capture.ModeWebcam {
			return capture.NewConfigError(fmt.Sprintf("webcam target not valid in %s mode", req.Mode), nil)
		}
		if sel.Target.Device == "" {
			return capture.NewConfigError("webcam device not selected", nil)
		}
		res := sel.Target.Resolution
		if res.Width <= 0 || res.Height <= 0 {
			res = DefaultWebcamResolution
		}
		req.Target = capture.Target{Kind: capture.TargetWebcam, Device: sel.Target.Device, Resolution: res}
		return nil
	}

	monitors, err := r.monitors(ctx)
	if err != nil {
		return err
	}

	switch sel.Target.Kind {
	case SelectFull, "":
		i, err := r.pickMonitor(ctx, monitors, sel.Target)
		if err != nil {
			return err
		}
		rect, err := geometry.MonitorRect(monitors, i)
		if err != nil {
			return err
		}
		req.Target = capture.Target{Kind: capture.TargetMonitor, Rect: rect}

	case SelectCombined:
		rect, ok, err := geometry.Combined(monitors)
		if err != nil {
			return err
		}
		if !ok {
			r.warn(req, "combined screen unavailable with a single monitor, capturing it instead")
			rect, err = geometry.MonitorRect(monitors, 0)
			if err != nil {
				return err
			}
			req.Target = capture.Target{Kind: capture.TargetMonitor, Rect: rect}
			return nil
		}
		req.Target = capture.Target{Kind: capture.TargetCombined, Rect: rect}

	case SelectArea:
		rect := geometry.ClampArea(sel.Target.Area)
		if rect.Empty() {
			return capture.NewConfigError(fmt.Sprintf("empty area selection %s", sel.Target.Area), nil)
		}
		req.Target = capture.Target{Kind: capture.TargetArea, Rect: rect}

	case SelectWindow, SelectActive:
		return r.resolveWindow(ctx, req, sel)

	default:
		return capture.NewConfigError(fmt.Sprintf("unknown target kind %q", sel.Target.Kind), nil)
	}
	return nil
}

func (r *Resolver) resolveWindow(ctx context.Context, req *capture.Request, sel Selections) error {
	if r.env.Windows == nil {
		return capture.NewConfigError("window capture unavailable: no window manager", nil)
	}

	id := sel.Target.Window
	if sel.Target.Kind == SelectActive {
		active, err := r.env.Windows.ActiveWindow(ctx)
		if err != nil {
			return capture.NewConfigError("no active window", err)
		}
		id = active
	}
	if id == 0 {
		if sel.Target.Point == nil {
			return capture.NewConfigError("window selection needs a window id or a point", nil)
		}
		picked, err := r.env.Windows.WindowAt(ctx, *sel.Target.Point, r.env.ExcludeWindows)
		if err != nil {
			return capture.NewConfigError("no window under pointer", err)
		}
		id = picked
	}

	g, err := r.env.Windows.WindowGeometry(ctx, id)
	if err != nil {
		return capture.NewConfigError(fmt.Sprintf("window 0x%x", id), err)
	}

	// Frame compensation only applies to single-shot captures; recordings
	// grab the client area by window id.
	compensate := sel.Borders && req.Mode == capture.ModeScreenshot
	target, delta := geometry.WindowTarget(g, compensate)
	req.Target = target
	req.BorderDelta = delta
	return nil
}

// pickMonitor chooses the monitor for full-screen capture: the one showing
// most of a selected window, then the one under a selected point, then the
// selected index.
func (r *Resolver) pickMonitor(ctx context.Context, monitors []geometry.Monitor, t TargetSelection) (int, error) {
	switch {
	case t.Window != 0:
		if r.env.Windows == nil {
			return -1, capture.NewConfigError("window lookup unavailable: no window manager", nil)
		}
		g, err := r.env.Windows.WindowGeometry(ctx, t.Window)
		if err != nil {
			return -1, capture.NewConfigError(fmt.Sprintf("window 0x%x", t.Window), err)
		}
		i, err := geometry.MonitorForWindow(monitors, g.Frame)
		if err == nil {
			r.logger.Debug("Picked monitor by window", "window", fmt.Sprintf("0x%x", t.Window), "monitor", monitors[i].Name)
		}
		return i, err
	case t.Point != nil:
		return geometry.MonitorAt(monitors, *t.Point)
	default:
		return t.Monitor, nil
	}
}

func (r *Resolver) monitors(ctx context.Context) ([]geometry.Monitor, error) {
	if r.env.Monitors == nil {
		return nil, capture.NewConfigError("no monitor information available", nil)
	}
	monitors, err := r.env.Monitors.Monitors(ctx)
	if err != nil {
		return nil, capture.NewConfigError("no monitor information available", err)
	}
	if len(monitors) == 0 {
		return nil, capture.NewConfigError("no monitor information available", nil)
	}
	return monitors, nil
}

func (r *Resolver) resolveAudio(ctx context.Context, req *capture.Request, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	if req.Mode == capture.ModeScreenshot {
		r.warn(req, "audio sources ignored for screenshots")
		return nil
	}
	if len(handles) > 2 {
		return capture.NewConfigError(fmt.Sprintf("at most two audio sources supported, got %d", len(handles)), nil)
	}
	if len(handles) == 2 && handles[0] == handles[1] {
		return capture.NewConfigError(fmt.Sprintf("audio source %s selected twice", handles[0]), nil)
	}
	if r.env.Audio == nil {
		return capture.NewConfigError("audio selected but no audio enumerator configured", nil)
	}

	devices, listErr := r.env.Audio.Devices(ctx)
	if listErr != nil {
		r.logger.Warn("Failed to list audio devices", "error", listErr)
	}

	for _, handle := range handles {
		if handle == "" {
			return capture.NewConfigError("empty audio source handle", nil)
		}
		src := capture.AudioSource{Handle: handle, Name: handle, Backend: string(r.env.Audio.Backend())}

		d, known := audio.Find(devices, handle)
		if listErr == nil && !known {
			return capture.NewConfigError(fmt.Sprintf("audio source %q not found", handle), nil)
		}
		if known && d.Description != "" {
			src.Name = d.Description
		}

		switch {
		case known && d.Channels >= 1:
			src.Channels = d.Channels
		default:
			ch, err := r.env.Audio.Channels(ctx, handle)
			if err != nil || ch < 1 {
				r.warn(req, fmt.Sprintf("channel count of %s unknown, assuming mono", handle))
				r.logger.Warn("Audio channel query failed", "device", handle, "error", err)
				ch = 1
			}
			src.Channels = ch
		}
		req.Audio = append(req.Audio, src)
	}
	return nil
}

func (r *Resolver) warn(req *capture.Request, msg string) {
	req.Warnings = append(req.Warnings, msg)
}

// usesRect reports whether the grabber is driven by coordinates rather than
// a window id.
func usesRect(t capture.Target) bool {
	switch t.Kind {
	case capture.TargetMonitor, capture.TargetCombined, capture.TargetArea:
		return true
	case capture.TargetWindow:
		return t.CaptureFrame
	default:
		return false
	}
}

func normalizeFramerate(fps int) int {
	if fps <= 0 {
		return DefaultFramerate
	}
	return min(fps, MaxFramerate)
}
