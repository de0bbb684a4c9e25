package models

import (
	"github.com/smazurov/screencap/internal/audio"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/geometry"
	"github.com/smazurov/screencap/internal/recorder"
	"github.com/smazurov/screencap/internal/resolver"
	"github.com/smazurov/screencap/internal/version"
)

// Health check models
type HealthData struct {
	Status  string       `json:"status" example:"ok" doc:"Service status"`
	Message string       `json:"message" example:"API is healthy" doc:"Status message"`
	Build   version.Info `json:"build" doc:"Build metadata"`
}

type HealthResponse struct {
	Body HealthData
}

// Device models
type AudioDevicesData struct {
	Devices []audio.Device `json:"devices" doc:"Audio capture sources"`
	Count   int            `json:"count" example:"2" doc:"Number of devices"`
	Backend string         `json:"backend" example:"pulse" doc:"Audio backend"`
}

type AudioDevicesResponse struct {
	Body AudioDevicesData
}

type MonitorsData struct {
	Monitors []geometry.Monitor `json:"monitors" doc:"Connected monitors in desktop order"`
	// Combined is absent with a single monitor.
	Combined *capture.Rect `json:"combined,omitempty" doc:"Bounding rectangle of all monitors"`
}

type MonitorsResponse struct {
	Body MonitorsData
}

type CodecsData struct {
	Codecs []capture.Codec `json:"codecs" doc:"Video codec catalog"`
}

type CodecsResponse struct {
	Body CodecsData
}

// Session models
type SessionRequestData struct {
	Mode          string                   `json:"mode,omitempty" enum:"screencast,screenshot,broadcast,webcam" default:"screencast" doc:"Capture mode"`
	Target        resolver.TargetSelection `json:"target" doc:"Capture target"`
	Codec         string                   `json:"codec,omitempty" example:"vp8" doc:"Codec name; the configured default when empty"`
	Framerate     int                      `json:"framerate,omitempty" minimum:"0" maximum:"60" doc:"Frames per second"`
	Audio         []string                 `json:"audio,omitempty" maxItems:"2" doc:"Audio source handles"`
	CaptureCursor *bool                    `json:"capture_cursor,omitempty" doc:"Draw the mouse pointer; the configured default when absent"`
	Borders       bool                     `json:"borders,omitempty" doc:"Include window decorations (screenshots)"`
	Preview       bool                     `json:"preview,omitempty" doc:"Show a preview window (webcam)"`
	AllowAdvanced bool                     `json:"allow_advanced,omitempty" doc:"Permit advanced codecs"`
	TestSource    bool                     `json:"test_source,omitempty" doc:"Use a synthetic video source"`
	Broadcast     *capture.BroadcastDest   `json:"broadcast,omitempty" doc:"Live destination for broadcast mode"`
}

type SessionRequest struct {
	Body SessionRequestData
}

type SessionResponse struct {
	Body recorder.SessionInfo
}

type SessionActionRequest struct {
	Action string `path:"action" enum:"start,pause,resume,stop" doc:"Lifecycle action"`
}

type SaveData struct {
	SessionID string `json:"session_id" doc:"Session identifier"`
	Path      string `json:"path" example:"screencap_screencast_00000.webm" doc:"Saved file"`
}

type SaveResponse struct {
	Body SaveData
}

// ConnectedEvent is sent once when an event stream opens.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established"`
	Timestamp string `json:"timestamp"`
}
