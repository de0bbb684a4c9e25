package capture

import "fmt"

// Mode selects the overall pipeline shape and sink kind.
type Mode string

// Capture modes
const (
	ModeScreencast Mode = "screencast"
	ModeScreenshot Mode = "screenshot"
	ModeBroadcast  Mode = "broadcast"
	ModeWebcam     Mode = "webcam"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeScreencast, ModeScreenshot, ModeBroadcast, ModeWebcam}

// ParseMode returns the mode named by s.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", NewConfigError(fmt.Sprintf("unknown capture mode %q", s), nil)
}

// FileSink reports whether the mode writes a local file that must be
// drained with an end-of-stream before it is usable.
func (m Mode) FileSink() bool {
	return m != ModeBroadcast
}

// Rect is an inclusive pixel range: EndX and EndY are the last captured
// column and row.
type Rect struct {
	StartX int `json:"startx" toml:"startx"`
	StartY int `json:"starty" toml:"starty"`
	EndX   int `json:"endx" toml:"endx"`
	EndY   int `json:"endy" toml:"endy"`
}

// Width returns the selection width as the picker reports it.
func (r Rect) Width() int { return r.EndX - r.StartX }

// Height returns the selection height as the picker reports it.
func (r Rect) Height() int { return r.EndY - r.StartY }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.EndX <= r.StartX || r.EndY <= r.StartY }

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.StartX, r.StartY, r.EndX, r.EndY)
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TargetKind identifies which capture target a request carries.
type TargetKind string

// Target kinds
const (
	TargetMonitor  TargetKind = "monitor"
	TargetCombined TargetKind = "combined"
	TargetArea     TargetKind = "area"
	TargetWindow   TargetKind = "window"
	TargetWebcam   TargetKind = "webcam"
)

// Target is the resolved capture target. Exactly one kind is set; Rect is
// meaningful for monitor, combined and area targets and holds the frame or
// client rectangle of a window target.
type Target struct {
	Kind TargetKind `json:"kind"`
	Rect Rect       `json:"rect"`

	// Window is the X11 window id for window targets.
	Window uint32 `json:"window,omitempty"`
	// WindowSize is the client size of a window target. Odd sizes need a
	// crop stage on the H264 path.
	WindowSize Size `json:"window_size,omitempty"`
	// CaptureFrame grabs Rect from the root window instead of the client
	// area of Window, so window decorations are included.
	CaptureFrame bool `json:"capture_frame,omitempty"`

	// Device and Resolution describe a webcam target.
	Device     string `json:"device,omitempty"`
	Resolution Size   `json:"resolution,omitempty"`
}

// AudioSource describes one audio input feeding the capture.
type AudioSource struct {
	Handle   string `json:"handle"`
	Name     string `json:"name,omitempty"`
	Channels int    `json:"channels"`
	// Backend is "alsa" for raw ALSA handles; anything else is a
	// PulseAudio source name.
	Backend string `json:"backend,omitempty"`
}

// BroadcastDest is the live streaming destination.
type BroadcastDest struct {
	ServerURL string `json:"server_url"`
	StreamKey string `json:"stream_key,omitempty"`
	// Bitrate is the video bitrate in kbit/s.
	Bitrate int `json:"bitrate"`
}

// URL joins server and key the way RTMP servers expect.
func (b BroadcastDest) URL() string {
	if b.StreamKey == "" {
		return b.ServerURL
	}
	return fmt.Sprintf("%s/%s", trimSlash(b.ServerURL), b.StreamKey)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Request is a validated capture request ready for pipeline construction.
type Request struct {
	Mode          Mode           `json:"mode"`
	Target        Target         `json:"target"`
	Codec         CodecID        `json:"codec"`
	Framerate     int            `json:"framerate"`
	Audio         []AudioSource  `json:"audio,omitempty"`
	Broadcast     *BroadcastDest `json:"broadcast,omitempty"`
	CaptureCursor bool           `json:"capture_cursor"`
	Preview       bool           `json:"preview,omitempty"`
	// TestSource swaps the screen grabber for a test pattern generator.
	TestSource bool `json:"test_source,omitempty"`

	// BorderDelta is frame size minus client size for a compensated
	// window capture. The client origin sits at this offset inside the
	// captured frame when overlaying a cursor.
	BorderDelta Point `json:"border_delta"`

	// DestDir is where temporary output is written. It never affects the
	// stages of the built graph.
	DestDir string `json:"dest_dir"`

	Warnings []string `json:"warnings,omitempty"`
}

// Validate checks the structural invariants of a request.
func (r Request) Validate() error {
	if r.Target.Kind == "" {
		return NewConfigError("capture target not set", nil)
	}
	if len(r.Audio) > 2 {
		return NewConfigError(fmt.Sprintf("at most two audio sources supported, got %d", len(r.Audio)), nil)
	}
	for _, a := range r.Audio {
		if a.Handle == "" {
			return NewConfigError("audio source without device handle", nil)
		}
		if a.Channels < 1 {
			return NewConfigError(fmt.Sprintf("audio source %s has %d channels", a.Handle, a.Channels), nil)
		}
	}
	if r.Mode == ModeBroadcast && (r.Broadcast == nil || r.Broadcast.ServerURL == "") {
		return NewConfigError("broadcast requires a server URL", nil)
	}
	if r.Mode == ModeWebcam && r.Target.Kind != TargetWebcam {
		return NewConfigError("webcam mode requires a webcam target", nil)
	}
	if r.Mode != ModeWebcam && r.Target.Kind == TargetWebcam {
		return NewConfigError(fmt.Sprintf("webcam target not valid in %s mode", r.Mode), nil)
	}
	if r.Target.Kind == TargetWindow && r.Target.Window == 0 && !r.Target.CaptureFrame {
		return NewConfigError("window target without window id", nil)
	}
	if r.Target.Kind == TargetWebcam && r.Target.Device == "" {
		return NewConfigError("webcam target without device", nil)
	}
	if (r.Target.Kind != TargetWindow || r.Target.CaptureFrame) && r.Target.Kind != TargetWebcam && r.Target.Rect.Empty() {
		return NewConfigError(fmt.Sprintf("empty capture rectangle %s", r.Target.Rect), nil)
	}
	if r.Framerate <= 0 {
		return NewConfigError("framerate must be positive", nil)
	}
	return nil
}
