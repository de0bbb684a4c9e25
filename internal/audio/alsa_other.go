//go:build !(linux && (amd64 || arm64))

package audio

import (
	"context"
	"errors"
)

var errALSAUnsupported = errors.New("ALSA enumeration not supported on this platform")

// ALSA is unavailable on this platform.
type ALSA struct{}

// NewALSA returns an enumerator that always fails.
func NewALSA() *ALSA { return &ALSA{} }

// Backend implements Enumerator.
func (a *ALSA) Backend() Backend { return BackendALSA }

// Devices implements Enumerator.
func (a *ALSA) Devices(context.Context) ([]Device, error) { return nil, errALSAUnsupported }

// Channels implements Enumerator.
func (a *ALSA) Channels(context.Context, string) (int, error) { return 0, errALSAUnsupported }
