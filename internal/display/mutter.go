package display

import (
	"context"
	"fmt"
	"math"

	"github.com/godbus/dbus/v5"

	"github.com/smazurov/screencap/internal/geometry"
)

const (
	mutterBusName  = "org.gnome.Mutter.DisplayConfig"
	mutterPath     = "/org/gnome/Mutter/DisplayConfig"
	mutterGetState = mutterBusName + ".GetCurrentState"

	layoutModeLogical = 1
)

type mutterMonitorSpec struct {
	Connector string
	Vendor    string
	Product   string
	Serial    string
}

type mutterMode struct {
	ID              string
	Width           int32
	Height          int32
	Refresh         float64
	PreferredScale  float64
	SupportedScales []float64
	Properties      map[string]dbus.Variant
}

type mutterMonitor struct {
	Spec       mutterMonitorSpec
	Modes      []mutterMode
	Properties map[string]dbus.Variant
}

type mutterLogicalMonitor struct {
	X          int32
	Y          int32
	Scale      float64
	Transform  uint32
	Primary    bool
	Monitors   []mutterMonitorSpec
	Properties map[string]dbus.Variant
}

// Mutter reads the monitor layout from GNOME Shell over the session bus.
type Mutter struct {
	conn func() (*dbus.Conn, error)
}

// NewMutter returns a provider using the session bus.
func NewMutter() *Mutter {
	return &Mutter{conn: dbus.SessionBus}
}

// Monitors implements geometry.MonitorProvider.
func (m *Mutter) Monitors(ctx context.Context) ([]geometry.Monitor, error) {
	conn, err := m.conn()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}

	var (
		serial   uint32
		monitors []mutterMonitor
		logical  []mutterLogicalMonitor
		props    map[string]dbus.Variant
	)
	call := conn.Object(mutterBusName, mutterPath).CallWithContext(ctx, mutterGetState, 0)
	if call.Err != nil {
		return nil, fmt.Errorf("%s: %w", mutterGetState, call.Err)
	}
	if err := call.Store(&serial, &monitors, &logical, &props); err != nil {
		return nil, fmt.Errorf("decode display state: %w", err)
	}

	layoutMode := uint32(0)
	if v, ok := props["layout-mode"]; ok {
		_ = v.Store(&layoutMode)
	}
	return mutterLayout(monitors, logical, layoutMode == layoutModeLogical), nil
}

// mutterLayout turns logical monitors into rectangles. Each logical
// monitor takes its size from the current mode of its first physical
// monitor; logical layouts divide by the scale and rotated transforms swap
// the axes.
func mutterLayout(monitors []mutterMonitor, logical []mutterLogicalMonitor, scaled bool) []geometry.Monitor {
	current := make(map[string]mutterMode, len(monitors))
	for _, mon := range monitors {
		for _, mode := range mon.Modes {
			if isCurrent(mode) {
				current[mon.Spec.Connector] = mode
				break
			}
		}
	}

	result := make([]geometry.Monitor, 0, len(logical))
	for _, lm := range logical {
		if len(lm.Monitors) == 0 {
			continue
		}
		mode, ok := current[lm.Monitors[0].Connector]
		if !ok {
			continue
		}
		w, h := int(mode.Width), int(mode.Height)
		if scaled && lm.Scale > 0 {
			w = int(math.Round(float64(w) / lm.Scale))
			h = int(math.Round(float64(h) / lm.Scale))
		}
		if lm.Transform%2 == 1 {
			w, h = h, w
		}
		result = append(result, geometry.Monitor{
			Name:    lm.Monitors[0].Connector,
			X:       int(lm.X),
			Y:       int(lm.Y),
			Width:   w,
			Height:  h,
			Primary: lm.Primary,
		})
	}
	return result
}

func isCurrent(mode mutterMode) bool {
	v, ok := mode.Properties["is-current"]
	if !ok {
		return false
	}
	b, ok := v.Value().(bool)
	return ok && b
}
