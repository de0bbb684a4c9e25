package launch

import (
	"context"
	"os/exec"
	"sync"
	"time"
)

// DefaultInspectBinary is the factory lookup tool.
const DefaultInspectBinary = "gst-inspect-1.0"

// Runner executes a command and reports whether it succeeded.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Inspector answers element availability with gst-inspect-1.0 --exists and
// caches the answers.
type Inspector struct {
	binary  string
	run     Runner
	timeout time.Duration

	mu    sync.Mutex
	known map[string]bool
}

// NewInspector creates a registry. A nil run uses os/exec.
func NewInspector(binary string, run Runner) *Inspector {
	if binary == "" {
		binary = DefaultInspectBinary
	}
	if run == nil {
		run = execRunner
	}
	return &Inspector{binary: binary, run: run, timeout: 5 * time.Second, known: make(map[string]bool)}
}

// HasElement implements engine.Registry.
func (i *Inspector) HasElement(factory string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if ok, cached := i.known[factory]; cached {
		return ok
	}
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	ok := i.run(ctx, i.binary, "--exists", factory) == nil
	i.known[factory] = ok
	return ok
}
