package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/screencap/internal/audio"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/display"
	"github.com/smazurov/screencap/internal/geometry"
)

type fakeWindows struct {
	windows map[uint32]geometry.WindowGeometry
	at      uint32
	active  uint32
	exclude []string
}

func (f *fakeWindows) WindowGeometry(_ context.Context, id uint32) (geometry.WindowGeometry, error) {
	g, ok := f.windows[id]
	if !ok {
		return geometry.WindowGeometry{}, errors.New("BadWindow")
	}
	return g, nil
}

func (f *fakeWindows) WindowAt(_ context.Context, _ capture.Point, exclude []string) (uint32, error) {
	f.exclude = exclude
	if f.at == 0 {
		return 0, errors.New("nothing there")
	}
	return f.at, nil
}

func (f *fakeWindows) ActiveWindow(context.Context) (uint32, error) {
	if f.active == 0 {
		return 0, errors.New("no focus")
	}
	return f.active, nil
}

type fakeAudio struct {
	devices  []audio.Device
	listErr  error
	channels map[string]int
}

func (f *fakeAudio) Backend() audio.Backend { return audio.BackendPulse }

func (f *fakeAudio) Devices(context.Context) ([]audio.Device, error) {
	return f.devices, f.listErr
}

func (f *fakeAudio) Channels(_ context.Context, handle string) (int, error) {
	if ch, ok := f.channels[handle]; ok {
		return ch, nil
	}
	return 0, errors.New("query failed")
}

const (
	speaker = "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor"
	mic     = "alsa_input.usb-Blue_Yeti-00.analog-stereo"
)

var (
	dualHead = display.Static{
		{Name: "DP-1", Width: 1920, Height: 1080, Primary: true},
		{Name: "HDMI-1", X: 1920, Width: 1280, Height: 1024},
	}
	terminal = geometry.WindowGeometry{
		ID:     0x3a00007,
		Name:   "Terminal",
		Client: geometry.Box{X: 104, Y: 137, Width: 801, Height: 600},
		Frame:  geometry.Box{X: 100, Y: 100, Width: 809, Height: 641},
	}
	// browser straddles both monitors, mostly on HDMI-1.
	browser = geometry.WindowGeometry{
		ID:     0x4c00003,
		Name:   "Browser",
		Client: geometry.Box{X: 1800, Y: 40, Width: 1000, Height: 700},
		Frame:  geometry.Box{X: 1800, Y: 0, Width: 1000, Height: 740},
	}
)

func newResolver(t *testing.T, monitors geometry.MonitorProvider, a audio.Enumerator) (*Resolver, *fakeWindows) {
	t.Helper()
	w := &fakeWindows{
		windows: map[uint32]geometry.WindowGeometry{terminal.ID: terminal, browser.ID: browser},
		at:      terminal.ID,
		active:  browser.ID,
	}
	r := New(Context{
		Monitors:       monitors,
		Windows:        w,
		Audio:          a,
		ExcludeWindows: []string{"screencap"},
		DestDir:        "/tmp/videos",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, w
}

func TestResolveMonitorTargets(t *testing.T) {
	r, _ := newResolver(t, dualHead, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		sel      Selections
		wantKind capture.TargetKind
		wantRect capture.Rect
	}{
		{
			name:     "full screen vp8",
			sel:      Selections{Target: TargetSelection{Kind: SelectFull, Monitor: 1}, Codec: capture.CodecVP8},
			wantKind: capture.TargetMonitor,
			wantRect: capture.Rect{StartX: 1920, EndX: 3199, EndY: 1023},
		},
		{
			name:     "combined",
			sel:      Selections{Target: TargetSelection{Kind: SelectCombined}, Codec: capture.CodecVP8},
			wantKind: capture.TargetCombined,
			wantRect: capture.Rect{EndX: 3199, EndY: 1079},
		},
		{
			name:     "area clamped",
			sel:      Selections{Target: TargetSelection{Kind: SelectArea, Area: capture.Rect{StartX: -20, StartY: -4, EndX: 640, EndY: 480}}, Codec: capture.CodecVP8},
			wantKind: capture.TargetArea,
			wantRect: capture.Rect{EndX: 640, EndY: 480},
		},
		{
			name:     "area aligned for h264",
			sel:      Selections{Target: TargetSelection{Kind: SelectArea, Area: capture.Rect{StartX: 0, StartY: 0, EndX: 1920, EndY: 1079}}, Codec: capture.CodecH264},
			wantKind: capture.TargetArea,
			wantRect: capture.Rect{EndX: 1919, EndY: 1079},
		},
		{
			name:     "full screen h264 untouched",
			sel:      Selections{Target: TargetSelection{Kind: SelectFull}, Codec: capture.CodecH264},
			wantKind: capture.TargetMonitor,
			wantRect: capture.Rect{EndX: 1919, EndY: 1079},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := r.Resolve(ctx, tt.sel)
			require.NoError(t, err)
			assert.Equal(t, capture.ModeScreencast, req.Mode)
			assert.Equal(t, tt.wantKind, req.Target.Kind)
			assert.Equal(t, tt.wantRect, req.Target.Rect)
			assert.Equal(t, DefaultFramerate, req.Framerate)
			assert.Equal(t, "/tmp/videos", req.DestDir)
		})
	}
}

func TestResolveCombinedSingleMonitor(t *testing.T) {
	r, _ := newResolver(t, dualHead[:1], nil)

	req, err := r.Resolve(context.Background(), Selections{Target: TargetSelection{Kind: SelectCombined}, Codec: capture.CodecVP8})
	require.NoError(t, err)
	assert.Equal(t, capture.TargetMonitor, req.Target.Kind)
	assert.Len(t, req.Warnings, 1)
}

func TestResolveNoMonitors(t *testing.T) {
	for _, p := range []geometry.MonitorProvider{display.Static(nil), nil} {
		r, _ := newResolver(t, p, nil)
		_, err := r.Resolve(context.Background(), Selections{Target: TargetSelection{Kind: SelectFull}, Codec: capture.CodecVP8})
		assert.ErrorIs(t, err, capture.ErrConfig)
	}
}

func TestResolveBroadcastForcesH264(t *testing.T) {
	r, _ := newResolver(t, dualHead, nil)

	for _, codec := range []capture.CodecID{capture.CodecRaw, capture.CodecVP8, capture.CodecJPEG, capture.CodecID(42)} {
		req, err := r.Resolve(context.Background(), Selections{
			Mode:      capture.ModeBroadcast,
			Target:    TargetSelection{Kind: SelectFull},
			Codec:     codec,
			Broadcast: &capture.BroadcastDest{ServerURL: "rtmp://live.example.com/app", StreamKey: "key"},
		})
		require.NoError(t, err)
		assert.Equal(t, capture.CodecH264, req.Codec)
		assert.Equal(t, DefaultBroadcastBitrate, req.Broadcast.Bitrate)
	}

	_, err := r.Resolve(context.Background(), Selections{Mode: capture.ModeBroadcast, Target: TargetSelection{Kind: SelectFull}})
	assert.ErrorIs(t, err, capture.ErrConfig, "broadcast without destination")
}

func TestResolveCodecChecks(t *testing.T) {
	r, _ := newResolver(t, dualHead, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectFull}, Codec: capture.CodecHuffYUV})
	assert.ErrorIs(t, err, capture.ErrConfig)

	req, err := r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectFull}, Codec: capture.CodecHuffYUV, AllowAdvanced: true})
	require.NoError(t, err)
	assert.Equal(t, capture.CodecHuffYUV, req.Codec)

	_, err = r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectFull}, Codec: capture.CodecID(9)})
	assert.ErrorIs(t, err, capture.ErrConfig)
}

func TestResolveWindow(t *testing.T) {
	r, w := newResolver(t, dualHead, nil)
	ctx := context.Background()

	req, err := r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectWindow, Window: terminal.ID}, Codec: capture.CodecH264})
	require.NoError(t, err)
	assert.Equal(t, capture.TargetWindow, req.Target.Kind)
	assert.False(t, req.Target.CaptureFrame)
	assert.Equal(t, capture.Size{Width: 801, Height: 600}, req.Target.WindowSize, "odd size left for the crop stage")
	assert.Equal(t, capture.Point{}, req.BorderDelta)

	req, err = r.Resolve(ctx, Selections{
		Mode:    capture.ModeScreencast,
		Target:  TargetSelection{Kind: SelectWindow, Window: terminal.ID},
		Codec:   capture.CodecVP8,
		Borders: true,
	})
	require.NoError(t, err)
	assert.False(t, req.Target.CaptureFrame, "recordings never compensate borders")

	req, err = r.Resolve(ctx, Selections{
		Mode:    capture.ModeScreenshot,
		Target:  TargetSelection{Kind: SelectWindow, Point: &capture.Point{X: 300, Y: 300}},
		Codec:   capture.CodecH264,
		Borders: true,
	})
	require.NoError(t, err)
	assert.True(t, req.Target.CaptureFrame)
	assert.Equal(t, capture.Rect{StartX: 100, StartY: 100, EndX: 908, EndY: 740}, req.Target.Rect, "no h264 alignment for screenshots")
	assert.Equal(t, capture.Point{X: 8, Y: 41}, req.BorderDelta)
	assert.Equal(t, []string{"screencap"}, w.exclude)

	_, err = r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectWindow, Window: 0xbad}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)

	_, err = r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectWindow}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)
}

func TestResolveFullScreenPicksMonitor(t *testing.T) {
	r, _ := newResolver(t, dualHead, nil)
	hdmi := capture.Rect{StartX: 1920, EndX: 3199, EndY: 1023}
	dp := capture.Rect{EndX: 1919, EndY: 1079}

	tests := []struct {
		name   string
		target TargetSelection
		want   capture.Rect
	}{
		{"window mostly on second monitor", TargetSelection{Kind: SelectFull, Window: browser.ID}, hdmi},
		{"window wins over index", TargetSelection{Kind: SelectFull, Window: terminal.ID, Monitor: 1}, dp},
		{"point on second monitor", TargetSelection{Kind: SelectFull, Point: &capture.Point{X: 2500, Y: 10}}, hdmi},
		{"point off screen falls back to primary", TargetSelection{Kind: SelectFull, Point: &capture.Point{X: 2500, Y: 1050}, Monitor: 1}, dp},
		{"index", TargetSelection{Kind: SelectFull, Monitor: 1}, hdmi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := r.Resolve(context.Background(), Selections{Target: tt.target, Codec: capture.CodecVP8})
			require.NoError(t, err)
			assert.Equal(t, capture.TargetMonitor, req.Target.Kind)
			assert.Equal(t, tt.want, req.Target.Rect)
		})
	}

	_, err := r.Resolve(context.Background(), Selections{Target: TargetSelection{Kind: SelectFull, Window: 0xbad}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)

	noWM := New(Context{Monitors: dualHead}, nil)
	_, err = noWM.Resolve(context.Background(), Selections{Target: TargetSelection{Kind: SelectFull, Window: browser.ID}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)
}

func TestResolveActiveWindow(t *testing.T) {
	r, w := newResolver(t, dualHead, nil)
	ctx := context.Background()

	req, err := r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectActive}, Codec: capture.CodecVP8})
	require.NoError(t, err)
	assert.Equal(t, capture.TargetWindow, req.Target.Kind)
	assert.Equal(t, browser.ID, req.Target.Window)

	req, err = r.Resolve(ctx, Selections{
		Mode:    capture.ModeScreenshot,
		Target:  TargetSelection{Kind: SelectActive, Window: terminal.ID},
		Codec:   capture.CodecVP8,
		Borders: true,
	})
	require.NoError(t, err)
	assert.Equal(t, browser.ID, req.Target.Window, "focused window overrides a stale id")
	assert.True(t, req.Target.CaptureFrame)
	assert.Equal(t, capture.Point{Y: 40}, req.BorderDelta)

	w.active = 0
	_, err = r.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectActive}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)
}

func TestResolveAudio(t *testing.T) {
	enum := &fakeAudio{
		devices: []audio.Device{
			{Handle: speaker, Description: "Monitor of Built-in Audio", Channels: 2, Class: audio.ClassSpeaker},
			{Handle: mic, Description: "Yeti", Class: audio.ClassMicrophone},
		},
		channels: map[string]int{},
	}
	r, _ := newResolver(t, dualHead, enum)
	ctx := context.Background()
	base := Selections{Target: TargetSelection{Kind: SelectFull}, Codec: capture.CodecVP8}

	sel := base
	sel.Audio = []string{speaker, mic}
	req, err := r.Resolve(ctx, sel)
	require.NoError(t, err)
	require.Len(t, req.Audio, 2)
	assert.Equal(t, 2, req.Audio[0].Channels)
	assert.Equal(t, "Monitor of Built-in Audio", req.Audio[0].Name)
	assert.Equal(t, 1, req.Audio[1].Channels, "failed query defaults to mono")
	assert.Equal(t, "pulse", req.Audio[1].Backend)
	assert.Len(t, req.Warnings, 1)

	enum.channels[mic] = 2
	req, err = r.Resolve(ctx, sel)
	require.NoError(t, err)
	assert.Equal(t, 2, req.Audio[1].Channels)
	assert.Empty(t, req.Warnings)

	sel.Audio = []string{"unknown"}
	_, err = r.Resolve(ctx, sel)
	assert.ErrorIs(t, err, capture.ErrConfig)

	sel.Audio = []string{mic, mic}
	_, err = r.Resolve(ctx, sel)
	assert.ErrorIs(t, err, capture.ErrConfig)

	sel.Audio = []string{speaker, mic, "third"}
	_, err = r.Resolve(ctx, sel)
	assert.ErrorIs(t, err, capture.ErrConfig)
}

func TestResolveAudioListFailure(t *testing.T) {
	enum := &fakeAudio{listErr: errors.New("sound server unreachable"), channels: map[string]int{}}
	r, _ := newResolver(t, dualHead, enum)

	req, err := r.Resolve(context.Background(), Selections{
		Target: TargetSelection{Kind: SelectFull},
		Codec:  capture.CodecVP8,
		Audio:  []string{"default"},
	})
	require.NoError(t, err)
	require.Len(t, req.Audio, 1)
	assert.Equal(t, 1, req.Audio[0].Channels)
	assert.NotEmpty(t, req.Warnings)
}

func TestResolveWebcam(t *testing.T) {
	r, _ := newResolver(t, nil, nil)
	ctx := context.Background()

	req, err := r.Resolve(ctx, Selections{
		Mode:    capture.ModeWebcam,
		Target:  TargetSelection{Kind: SelectWebcam, Device: "/dev/video0"},
		Codec:   capture.CodecVP8,
		Preview: true,
	})
	require.NoError(t, err)
	assert.Equal(t, capture.TargetWebcam, req.Target.Kind)
	assert.Equal(t, DefaultWebcamResolution, req.Target.Resolution)
	assert.True(t, req.Preview)

	_, err = r.Resolve(ctx, Selections{Mode: capture.ModeWebcam, Target: TargetSelection{Kind: SelectWebcam}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)

	r2, _ := newResolver(t, dualHead, nil)
	_, err = r2.Resolve(ctx, Selections{Target: TargetSelection{Kind: SelectWebcam, Device: "/dev/video0"}, Codec: capture.CodecVP8})
	assert.ErrorIs(t, err, capture.ErrConfig)
}

func TestResolveScreenshotIgnoresAudio(t *testing.T) {
	r, _ := newResolver(t, dualHead, &fakeAudio{})

	req, err := r.Resolve(context.Background(), Selections{
		Mode:   capture.ModeScreenshot,
		Target: TargetSelection{Kind: SelectFull},
		Codec:  capture.CodecH264,
		Audio:  []string{speaker},
	})
	require.NoError(t, err)
	assert.Empty(t, req.Audio)
	assert.Equal(t, capture.Rect{EndX: 1919, EndY: 1079}, req.Target.Rect)
}

func TestNormalizeFramerate(t *testing.T) {
	assert.Equal(t, DefaultFramerate, normalizeFramerate(0))
	assert.Equal(t, 30, normalizeFramerate(30))
	assert.Equal(t, MaxFramerate, normalizeFramerate(240))
}
