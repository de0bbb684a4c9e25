package display

import (
	"context"
	"fmt"
	"strings"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/geometry"
)

// X11 answers window queries from EWMH properties.
type X11 struct {
	server Server
}

// NewX11 returns a window manager query. A nil server connects to $DISPLAY.
func NewX11(server Server) *X11 {
	if server == nil {
		server = NewXConn("")
	}
	return &X11{server: server}
}

// WindowGeometry returns the client area of id and its decorated frame.
func (x *X11) WindowGeometry(ctx context.Context, id uint32) (geometry.WindowGeometry, error) {
	client, err := x.server.ClientBox(ctx, id)
	if err != nil {
		return geometry.WindowGeometry{}, capture.NewConfigError(fmt.Sprintf("window %s not found", hexID(id)), err)
	}
	g := geometry.WindowGeometry{ID: id, Client: client, Frame: client}
	if g.Name, err = x.server.WindowName(ctx, id); err != nil {
		return geometry.WindowGeometry{}, capture.NewConfigError(fmt.Sprintf("window %s name", hexID(id)), err)
	}

	// Reparenting window managers publish decoration sizes; without them
	// the frame is the client area.
	extents, err := x.server.Cardinals(ctx, id, "_NET_FRAME_EXTENTS")
	if err == nil && len(extents) == 4 {
		left, right, top, bottom := int(extents[0]), int(extents[1]), int(extents[2]), int(extents[3])
		g.Frame = geometry.Box{
			X:      client.X - left,
			Y:      client.Y - top,
			Width:  client.Width + left + right,
			Height: client.Height + top + bottom,
		}
	}
	return g, nil
}

// WindowAt returns the topmost managed window containing p whose name
// contains none of the exclude substrings.
func (x *X11) WindowAt(ctx context.Context, p capture.Point, exclude []string) (uint32, error) {
	ids, err := x.rootWindows(ctx, "_NET_CLIENT_LIST_STACKING")
	if err != nil {
		return 0, fmt.Errorf("client list: %w", err)
	}

	for i := len(ids) - 1; i >= 0; i-- {
		g, err := x.WindowGeometry(ctx, ids[i])
		if err != nil {
			continue
		}
		if excluded(g.Name, exclude) {
			continue
		}
		f := g.Frame
		if p.X >= f.X && p.X < f.X+f.Width && p.Y >= f.Y && p.Y < f.Y+f.Height {
			return g.ID, nil
		}
	}
	return 0, capture.NewConfigError(fmt.Sprintf("no window at %d,%d", p.X, p.Y), nil)
}

// ActiveWindow returns the window the window manager reports as focused.
func (x *X11) ActiveWindow(ctx context.Context) (uint32, error) {
	ids, err := x.rootWindows(ctx, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, fmt.Errorf("active window: %w", err)
	}
	if len(ids) == 0 || ids[0] == 0 {
		return 0, capture.NewConfigError("window manager reports no active window", nil)
	}
	return ids[0], nil
}

func (x *X11) rootWindows(ctx context.Context, prop string) ([]uint32, error) {
	root, err := x.server.Root(ctx)
	if err != nil {
		return nil, err
	}
	return x.server.Cardinals(ctx, root, prop)
}

func hexID(id uint32) string {
	return fmt.Sprintf("0x%x", id)
}

func excluded(name string, exclude []string) bool {
	for _, e := range exclude {
		if e != "" && strings.Contains(name, e) {
			return true
		}
	}
	return false
}
