package geometry

import (
	"context"

	"github.com/smazurov/screencap/internal/capture"
)

// Monitor is one physical display in virtual desktop coordinates.
type Monitor struct {
	Name    string `json:"name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Primary bool   `json:"primary"`
}

// Rect returns the monitor's inclusive pixel range.
func (m Monitor) Rect() capture.Rect {
	return capture.Rect{
		StartX: m.X,
		StartY: m.Y,
		EndX:   m.X + m.Width - 1,
		EndY:   m.Y + m.Height - 1,
	}
}

// Contains reports whether p lies on the monitor.
func (m Monitor) Contains(p capture.Point) bool {
	return p.X >= m.X && p.X < m.X+m.Width && p.Y >= m.Y && p.Y < m.Y+m.Height
}

// WindowGeometry is a window's client area and its decorated frame, both in
// root window coordinates.
type WindowGeometry struct {
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	Client Box    `json:"client"`
	Frame  Box    `json:"frame"`
}

// Box is a position and size.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MonitorProvider lists the physical monitors.
type MonitorProvider interface {
	Monitors(ctx context.Context) ([]Monitor, error)
}

// WindowManager answers window queries. WindowAt skips windows whose name
// contains any of the exclude substrings. ActiveWindow returns the window
// holding the input focus.
type WindowManager interface {
	WindowGeometry(ctx context.Context, id uint32) (WindowGeometry, error)
	WindowAt(ctx context.Context, p capture.Point, exclude []string) (uint32, error)
	ActiveWindow(ctx context.Context) (uint32, error)
}
