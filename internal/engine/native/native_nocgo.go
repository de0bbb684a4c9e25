//go:build !cgo

// Package native runs pipeline graphs inside the process through go-gst.
// This build has no cgo, so every constructor fails with ErrCGORequired.
package native

import (
	"errors"
	"log/slog"

	"github.com/smazurov/screencap/internal/engine"
)

// Available reports whether this build can run the native engine.
const Available = false

// ErrCGORequired is returned when GStreamer functions are called without CGO support.
var ErrCGORequired = errors.New("native GStreamer engine requires cgo")

// Init is a no-op when CGO is disabled.
func Init() {}

// New returns an error when CGO is disabled.
func New(*slog.Logger) (engine.Engine, error) {
	return nil, ErrCGORequired
}

// Factory returns a factory that always fails.
func Factory(*slog.Logger) engine.Factory {
	return func() (engine.Engine, error) { return nil, ErrCGORequired }
}

// Registry is unavailable without cgo.
type Registry struct{}

// NewRegistry returns an error when CGO is disabled.
func NewRegistry() (Registry, error) {
	return Registry{}, ErrCGORequired
}

// HasElement always reports false.
func (Registry) HasElement(string) bool {
	return false
}
