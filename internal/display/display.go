// Package display provides monitor layouts and X11 window queries.
package display

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/screencap/internal/geometry"
)

// Static serves a fixed monitor layout, typically from configuration.
type Static []geometry.Monitor

// Monitors implements geometry.MonitorProvider.
func (s Static) Monitors(context.Context) ([]geometry.Monitor, error) {
	return append([]geometry.Monitor(nil), s...), nil
}

// Fallback asks each provider in turn and returns the first non-empty
// layout.
type Fallback []geometry.MonitorProvider

// Monitors implements geometry.MonitorProvider.
func (f Fallback) Monitors(ctx context.Context) ([]geometry.Monitor, error) {
	var errs []error
	for _, p := range f {
		monitors, err := p.Monitors(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(monitors) > 0 {
			return monitors, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// XRandR reads monitors from the RandR extension.
type XRandR struct {
	server Server
}

// NewXRandR returns a RandR provider. A nil server connects to $DISPLAY.
func NewXRandR(server Server) *XRandR {
	if server == nil {
		server = NewXConn("")
	}
	return &XRandR{server: server}
}

// Monitors implements geometry.MonitorProvider.
func (x *XRandR) Monitors(ctx context.Context) ([]geometry.Monitor, error) {
	monitors, err := x.server.Outputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("xrandr: %w", err)
	}
	return monitors, nil
}
