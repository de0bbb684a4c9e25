package geometry

import (
	"fmt"

	"github.com/smazurov/screencap/internal/capture"
)

// ClampArea turns a picker selection into a capture rectangle. Negative
// start coordinates are clamped to 0; the end coordinates are kept as
// selected.
func ClampArea(r capture.Rect) capture.Rect {
	if r.StartX < 0 {
		r.StartX = 0
	}
	if r.StartY < 0 {
		r.StartY = 0
	}
	return r
}

// MonitorRect returns the capture rectangle of monitor index i.
func MonitorRect(monitors []Monitor, i int) (capture.Rect, error) {
	if len(monitors) == 0 {
		return capture.Rect{}, capture.NewConfigError("no monitor information available", nil)
	}
	if i < 0 || i >= len(monitors) {
		return capture.Rect{}, capture.NewConfigError(fmt.Sprintf("monitor %d out of range (have %d)", i, len(monitors)), nil)
	}
	return ClampArea(monitors[i].Rect()), nil
}

// Combined returns the virtual desktop rectangle spanning every monitor,
// anchored at (0,0). ok is false when there is a single monitor.
func Combined(monitors []Monitor) (r capture.Rect, ok bool, err error) {
	if len(monitors) == 0 {
		return capture.Rect{}, false, capture.NewConfigError("no monitor information available", nil)
	}
	if len(monitors) == 1 {
		return capture.Rect{}, false, nil
	}

	var width, height int
	for _, m := range monitors {
		width = max(width, m.X+m.Width)
		height = max(height, m.Y+m.Height)
	}
	return capture.Rect{EndX: width - 1, EndY: height - 1}, true, nil
}

// MonitorAt returns the index of the monitor containing p, falling back to
// the primary monitor and then to the first one.
func MonitorAt(monitors []Monitor, p capture.Point) (int, error) {
	if len(monitors) == 0 {
		return -1, capture.NewConfigError("no monitor information available", nil)
	}
	for i, m := range monitors {
		if m.Contains(p) {
			return i, nil
		}
	}
	return primaryIndex(monitors), nil
}

// MonitorForWindow returns the index of the monitor that shows the largest
// part of b.
func MonitorForWindow(monitors []Monitor, b Box) (int, error) {
	if len(monitors) == 0 {
		return -1, capture.NewConfigError("no monitor information available", nil)
	}
	best, bestArea := -1, 0
	for i, m := range monitors {
		w := min(b.X+b.Width, m.X+m.Width) - max(b.X, m.X)
		h := min(b.Y+b.Height, m.Y+m.Height) - max(b.Y, m.Y)
		if w > 0 && h > 0 && w*h > bestArea {
			best, bestArea = i, w*h
		}
	}
	if best < 0 {
		return primaryIndex(monitors), nil
	}
	return best, nil
}

func primaryIndex(monitors []Monitor) int {
	for i, m := range monitors {
		if m.Primary {
			return i
		}
	}
	return 0
}

// BorderDelta returns how much larger the decorated frame is than the
// client area. Components are never negative; a frame reported smaller
// than its client counts as undecorated.
func BorderDelta(g WindowGeometry) capture.Point {
	return capture.Point{
		X: max(0, g.Frame.Width-g.Client.Width),
		Y: max(0, g.Frame.Height-g.Client.Height),
	}
}

// WindowTarget resolves a window into a capture target. With compensation
// the decorated frame is captured from the root window and the border delta
// is returned for cursor placement; otherwise the client area is captured
// by window id.
func WindowTarget(g WindowGeometry, compensate bool) (capture.Target, capture.Point) {
	t := capture.Target{
		Kind:       capture.TargetWindow,
		Window:     g.ID,
		WindowSize: capture.Size{Width: g.Client.Width, Height: g.Client.Height},
	}
	if !compensate {
		t.Rect = boxRect(g.Client)
		return t, capture.Point{}
	}
	t.CaptureFrame = true
	t.Rect = ClampArea(boxRect(g.Frame))
	t.WindowSize = capture.Size{Width: g.Frame.Width, Height: g.Frame.Height}
	return t, BorderDelta(g)
}

func boxRect(b Box) capture.Rect {
	return capture.Rect{StartX: b.X, StartY: b.Y, EndX: b.X + b.Width - 1, EndY: b.Y + b.Height - 1}
}

// AlignH264 makes the inclusive pixel ranges of r even-sized. The range
// startx..endx covers endx-startx+1 pixels, so an even difference means an
// odd width and endx is pulled in by one. Height is handled the same way.
// Call it after every other rectangle adjustment.
func AlignH264(r capture.Rect) capture.Rect {
	if abs(r.EndX-r.StartX)%2 == 0 {
		r.EndX--
	}
	if abs(r.EndY-r.StartY)%2 == 0 {
		r.EndY--
	}
	return r
}

// CropAmounts returns the videocrop left and bottom trim that makes a
// window of the given client size even-sized.
func CropAmounts(s capture.Size) (left, bottom int) {
	return s.Width % 2, s.Height % 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
