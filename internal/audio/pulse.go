package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

// SourceInfo is a source as the sound server describes it.
type SourceInfo struct {
	Name        string
	Description string
	Channels    int
}

// SourceLister lists the sources of a sound server.
type SourceLister interface {
	ListSources(ctx context.Context) ([]SourceInfo, error)
}

// pulseServer speaks the native PulseAudio protocol. Each listing opens
// its own connection.
type pulseServer struct{}

func (pulseServer) ListSources(ctx context.Context) ([]SourceInfo, error) {
	type result struct {
		sources []SourceInfo
		err     error
	}
	done := make(chan result, 1)
	go func() {
		sources, err := listPulseSources()
		done <- result{sources, err}
	}()
	select {
	case r := <-done:
		return r.sources, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func listPulseSources() ([]SourceInfo, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("screencap"))
	if err != nil {
		return nil, err
	}
	defer c.Close()

	sources, err := c.ListSources()
	if err != nil {
		return nil, err
	}
	infos := make([]SourceInfo, 0, len(sources))
	for _, s := range sources {
		infos = append(infos, SourceInfo{
			Name:        s.ID(),
			Description: s.Name(),
			Channels:    len(s.Channels()),
		})
	}
	return infos, nil
}

// Pulse enumerates PulseAudio sources.
type Pulse struct {
	server SourceLister
}

// NewPulse returns a PulseAudio enumerator. A nil lister connects to the
// user's sound server.
func NewPulse(server SourceLister) *Pulse {
	if server == nil {
		server = pulseServer{}
	}
	return &Pulse{server: server}
}

// Backend implements Enumerator.
func (p *Pulse) Backend() Backend { return BackendPulse }

// Devices lists every source known to the sound server, monitors included.
func (p *Pulse) Devices(ctx context.Context) ([]Device, error) {
	sources, err := p.server.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	devices := make([]Device, 0, len(sources))
	for _, s := range sources {
		if s.Name == "" {
			continue
		}
		desc := s.Description
		if desc == "" {
			desc = s.Name
		}
		devices = append(devices, Device{
			Handle:      s.Name,
			Description: desc,
			Channels:    s.Channels,
			Class:       Classify(s.Name),
			Backend:     BackendPulse,
		})
	}
	return devices, nil
}

// Channels returns the channel count of the named source.
func (p *Pulse) Channels(ctx context.Context, handle string) (int, error) {
	devices, err := p.Devices(ctx)
	if err != nil {
		return 0, err
	}
	d, ok := Find(devices, handle)
	if !ok {
		return 0, fmt.Errorf("source %q not found", handle)
	}
	if d.Channels < 1 {
		return 0, fmt.Errorf("source %q reports no channel count", handle)
	}
	return d.Channels, nil
}
