package display

import (
	"context"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xproto"

	"github.com/smazurov/screencap/internal/geometry"
)

// Server is the part of the X protocol the window and monitor queries read.
type Server interface {
	Root(ctx context.Context) (uint32, error)
	// Cardinals returns a 32-bit property of win. An unset property yields
	// no values and no error.
	Cardinals(ctx context.Context, win uint32, prop string) ([]uint32, error)
	WindowName(ctx context.Context, win uint32) (string, error)
	// ClientBox returns the size of win and its origin in root coordinates.
	ClientBox(ctx context.Context, win uint32) (geometry.Box, error)
	// Outputs returns the monitors driven by active RandR CRTCs.
	Outputs(ctx context.Context) ([]geometry.Monitor, error)
}

// XConn talks to the X server over the wire protocol. It connects on first
// use and keeps the connection open.
type XConn struct {
	display string

	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
	randr error
}

// NewXConn returns a connection to display. An empty display uses $DISPLAY.
func NewXConn(display string) *XConn {
	return &XConn{display: display, atoms: make(map[string]xproto.Atom)}
}

func (c *XConn) connect(ctx context.Context) (*xgb.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := xgb.NewConnDisplay(c.display)
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	c.conn = conn
	c.root = xproto.Setup(conn).DefaultScreen(conn).Root
	c.randr = randr.Init(conn)
	return conn, nil
}

// Close drops the connection. The next query reconnects.
func (c *XConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.atoms = make(map[string]xproto.Atom)
	}
}

// Root implements Server.
func (c *XConn) Root(ctx context.Context) (uint32, error) {
	if _, err := c.connect(ctx); err != nil {
		return 0, err
	}
	return uint32(c.root), nil
}

func (c *XConn) atom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	c.mu.Lock()
	a, ok := c.atoms[name]
	c.mu.Unlock()
	if ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern %s: %w", name, err)
	}
	c.mu.Lock()
	c.atoms[name] = reply.Atom
	c.mu.Unlock()
	return reply.Atom, nil
}

func (c *XConn) property(ctx context.Context, win uint32, prop string) (*xproto.GetPropertyReply, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	a, err := c.atom(conn, prop)
	if err != nil || a == 0 {
		return nil, err
	}
	reply, err := xproto.GetProperty(conn, false, xproto.Window(win), a, xproto.GetPropertyTypeAny, 0, 1<<16).Reply()
	if err != nil {
		return nil, fmt.Errorf("read %s of 0x%x: %w", prop, win, err)
	}
	return reply, nil
}

// Cardinals implements Server.
func (c *XConn) Cardinals(ctx context.Context, win uint32, prop string) ([]uint32, error) {
	reply, err := c.property(ctx, win, prop)
	if err != nil || reply == nil || reply.Format != 32 {
		return nil, err
	}
	values := make([]uint32, 0, reply.ValueLen)
	for i := 0; i+4 <= len(reply.Value) && len(values) < int(reply.ValueLen); i += 4 {
		values = append(values, xgb.Get32(reply.Value[i:]))
	}
	return values, nil
}

// WindowName implements Server. The EWMH name is preferred over WM_NAME.
func (c *XConn) WindowName(ctx context.Context, win uint32) (string, error) {
	for _, prop := range []string{"_NET_WM_NAME", "WM_NAME"} {
		reply, err := c.property(ctx, win, prop)
		if err != nil {
			return "", err
		}
		if reply != nil && reply.Format == 8 && len(reply.Value) > 0 {
			return string(reply.Value), nil
		}
	}
	return "", nil
}

// ClientBox implements Server.
func (c *XConn) ClientBox(ctx context.Context, win uint32) (geometry.Box, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return geometry.Box{}, err
	}
	g, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return geometry.Box{}, err
	}
	origin, err := xproto.TranslateCoordinates(conn, xproto.Window(win), c.root, 0, 0).Reply()
	if err != nil {
		return geometry.Box{}, err
	}
	return geometry.Box{
		X:      int(origin.DstX),
		Y:      int(origin.DstY),
		Width:  int(g.Width),
		Height: int(g.Height),
	}, nil
}

// Outputs implements Server.
func (c *XConn) Outputs(ctx context.Context) ([]geometry.Monitor, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	if c.randr != nil {
		return nil, fmt.Errorf("randr extension: %w", c.randr)
	}

	res, err := randr.GetScreenResourcesCurrent(conn, c.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr screen resources: %w", err)
	}
	var primary randr.Output
	if p, err := randr.GetOutputPrimary(conn, c.root).Reply(); err == nil {
		primary = p.Output
	}

	var monitors []geometry.Monitor
	for _, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			return nil, fmt.Errorf("randr crtc %d: %w", crtc, err)
		}
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		m := geometry.Monitor{
			X:      int(info.X),
			Y:      int(info.Y),
			Width:  int(info.Width),
			Height: int(info.Height),
		}
		for _, out := range info.Outputs {
			if out == primary {
				m.Primary = true
			}
		}
		if oi, err := randr.GetOutputInfo(conn, info.Outputs[0], res.ConfigTimestamp).Reply(); err == nil {
			m.Name = string(oi.Name)
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}
