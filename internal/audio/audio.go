// Package audio enumerates audio capture devices for recording.
//
// Two backends are provided: PulseAudio (also served by PipeWire's pulse
// server) over its native protocol, and raw ALSA capture devices read straight from
// /dev/snd. Each device is classified as speaker-like or microphone-like
// from its name.
package audio

import (
	"context"
	"fmt"
	"strings"
)

// Backend names the audio system a device handle belongs to.
type Backend string

// Supported backends
const (
	BackendPulse Backend = "pulse"
	BackendALSA  Backend = "alsa"
)

// Class separates loopback sources of what the speakers play from
// microphones.
type Class string

// Device classes
const (
	ClassSpeaker    Class = "speaker"
	ClassMicrophone Class = "microphone"
)

// Device is one audio capture source.
type Device struct {
	Handle      string  `json:"handle"`
	Description string  `json:"description"`
	Channels    int     `json:"channels"`
	Class       Class   `json:"class"`
	Backend     Backend `json:"backend"`
}

// Enumerator lists capture devices and answers channel-count queries.
type Enumerator interface {
	Devices(ctx context.Context) ([]Device, error)
	Channels(ctx context.Context, handle string) (int, error)
	Backend() Backend
}

// Classify applies the naming heuristic used by PulseAudio and PipeWire:
// loopback sources of an output carry "monitor" in their name.
func Classify(name string) Class {
	if strings.Contains(strings.ToLower(name), "monitor") {
		return ClassSpeaker
	}
	return ClassMicrophone
}

// New returns the enumerator for backend.
func New(backend Backend) (Enumerator, error) {
	switch backend {
	case BackendPulse, "":
		return NewPulse(nil), nil
	case BackendALSA:
		return NewALSA(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

// Find returns the device with the given handle.
func Find(devices []Device, handle string) (Device, bool) {
	for _, d := range devices {
		if d.Handle == handle {
			return d, true
		}
	}
	return Device{}, false
}

// pickChannels prefers stereo, falling back to the nearest count the
// device accepts.
func pickChannels(minCh, maxCh int) (int, error) {
	if maxCh < 1 || minCh > maxCh {
		return 0, fmt.Errorf("invalid channel range %d-%d", minCh, maxCh)
	}
	return min(max(minCh, 1, min(2, maxCh)), maxCh), nil
}
