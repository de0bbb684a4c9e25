package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	cause := errors.New("no such element")
	err := fmt.Errorf("building: %w", NewBuildError("x264enc unavailable", cause))

	assert.ErrorIs(t, err, ErrBuild)
	assert.NotErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindBuild, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(cause))
	assert.Contains(t, err.Error(), "BUILD_ERROR: x264enc unavailable: no such element")
}

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Mode:      ModeScreencast,
		Target:    Target{Kind: TargetMonitor, Rect: Rect{0, 0, 1919, 1079}},
		Codec:     CodecVP8,
		Framerate: 15,
	}

	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"missing target", func(r *Request) { r.Target = Target{} }, true},
		{"three audio sources", func(r *Request) {
			r.Audio = []AudioSource{{Handle: "a", Channels: 1}, {Handle: "b", Channels: 1}, {Handle: "c", Channels: 1}}
		}, true},
		{"zero channels", func(r *Request) { r.Audio = []AudioSource{{Handle: "a"}} }, true},
		{"broadcast without url", func(r *Request) { r.Mode = ModeBroadcast }, true},
		{"broadcast with url", func(r *Request) {
			r.Mode = ModeBroadcast
			r.Broadcast = &BroadcastDest{ServerURL: "rtmp://live.example.com/app"}
		}, false},
		{"webcam target in screencast", func(r *Request) { r.Target = Target{Kind: TargetWebcam, Device: "/dev/video0"} }, true},
		{"window without id", func(r *Request) { r.Target = Target{Kind: TargetWindow} }, true},
		{"window by id", func(r *Request) { r.Target = Target{Kind: TargetWindow, Window: 0x3a00007} }, false},
		{"empty rect", func(r *Request) { r.Target.Rect = Rect{10, 10, 10, 20} }, true},
		{"zero framerate", func(r *Request) { r.Framerate = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBroadcastURL(t *testing.T) {
	b := BroadcastDest{ServerURL: "rtmp://a.rtmp.youtube.com/live2/", StreamKey: "abcd-1234"}
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/abcd-1234", b.URL())

	b.StreamKey = ""
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/", b.URL())
}

func TestCodecCatalog(t *testing.T) {
	c, ok := LookupCodec(CodecH264)
	require.True(t, ok)
	assert.Equal(t, "x264enc", c.Element)
	assert.Equal(t, ".mp4", c.Extension)

	id, err := ParseCodec("vp8")
	require.NoError(t, err)
	assert.Equal(t, CodecVP8, id)

	_, err = ParseCodec("theora")
	assert.ErrorIs(t, err, ErrConfig)

	assert.Equal(t, ".png", Request{Mode: ModeScreenshot, Codec: CodecH264}.Extension())
	assert.Equal(t, ".avi", Request{Mode: ModeScreencast, Codec: CodecHuffYUV}.Extension())
}

func TestNextFilename(t *testing.T) {
	dir := t.TempDir()

	first, err := NextFilename(dir, "Screencast", ".mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Screencast_00000.mp4"), first)

	for _, name := range []string{"Screencast_00000.mp4", "Screencast_00001.mp4", "Screencast_00003.mp4"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	next, err := NextFilename(dir, "Screencast", ".mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Screencast_00002.mp4"), next)

	other, err := NextFilename(dir, "Screencast", ".webm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Screencast_00000.webm"), other)
}
