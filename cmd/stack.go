package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/screencap/internal/audio"
	"github.com/smazurov/screencap/internal/display"
	"github.com/smazurov/screencap/internal/engine"
	"github.com/smazurov/screencap/internal/engine/launch"
	"github.com/smazurov/screencap/internal/engine/native"
	"github.com/smazurov/screencap/internal/events"
	"github.com/smazurov/screencap/internal/geometry"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/pipeline"
	"github.com/smazurov/screencap/internal/recorder"
	"github.com/smazurov/screencap/internal/resolver"
)

// Engine choices
const (
	EngineAuto   = "auto"
	EngineNative = "native"
	EngineLaunch = "launch"
)

// StackOptions selects the collaborators of a capture stack.
type StackOptions struct {
	Engine       string
	LaunchBinary string
	StopTimeout  time.Duration

	Display        string
	AudioBackend   string
	ExcludeWindows []string

	Defaults recorder.Defaults
	EventBus *events.Bus
}

// Stack is everything a session needs, wired together.
type Stack struct {
	Monitors   geometry.MonitorProvider
	Windows    geometry.WindowManager
	Audio      audio.Enumerator
	Registry   pipeline.Registry
	Engine     engine.Factory
	EngineName string
	Resolver   *resolver.Resolver
	Builder    *pipeline.Builder
	Recorder   *recorder.Service
}

// NewStack builds a stack from opts.
func NewStack(opts StackOptions) (*Stack, error) {
	s := &Stack{Windows: display.NewX11(nil)}

	monitors, err := monitorProvider(opts.Display)
	if err != nil {
		return nil, err
	}
	s.Monitors = monitors

	enum, err := audio.New(audio.Backend(opts.AudioBackend))
	if err != nil {
		return nil, err
	}
	s.Audio = enum

	if err := s.selectEngine(opts); err != nil {
		return nil, err
	}

	s.Builder = pipeline.NewBuilder(pipeline.Env{Cores: pipeline.DefaultCores()}, s.Registry, logging.GetLogger("pipeline"))
	s.Resolver = resolver.New(resolver.Context{
		Monitors:       s.Monitors,
		Windows:        s.Windows,
		Audio:          s.Audio,
		ExcludeWindows: opts.ExcludeWindows,
		DestDir:        opts.Defaults.DestDir,
	}, logging.GetLogger("resolver"))

	s.Recorder = recorder.NewService(recorder.Options{
		Resolver: s.Resolver,
		Builder:  s.Builder,
		Engine:   s.Engine,
		EventBus: opts.EventBus,
		Defaults: opts.Defaults,
	})
	return s, nil
}

func monitorProvider(name string) (geometry.MonitorProvider, error) {
	switch name {
	case "", "auto":
		return display.Fallback{display.NewMutter(), display.NewXRandR(nil)}, nil
	case "mutter":
		return display.NewMutter(), nil
	case "xrandr":
		return display.NewXRandR(nil), nil
	default:
		return nil, fmt.Errorf("unknown display backend %q", name)
	}
}

func (s *Stack) selectEngine(opts StackOptions) error {
	name := opts.Engine
	if name == "" || name == EngineAuto {
		name = EngineLaunch
		if native.Available {
			name = EngineNative
		}
	}

	switch name {
	case EngineNative:
		reg, err := native.NewRegistry()
		if err != nil {
			return err
		}
		s.Registry = reg
		s.Engine = native.Factory(logging.GetLogger("engine"))
	case EngineLaunch:
		s.Registry = launch.NewInspector("", nil)
		s.Engine = launch.Factory(launch.Options{
			Binary:       opts.LaunchBinary,
			StopTimeout:  opts.StopTimeout,
			Logger:       logging.GetLogger("engine"),
			OutputLogger: logging.GetLogger("gstreamer"),
		})
	default:
		return fmt.Errorf("unknown engine %q", opts.Engine)
	}
	s.EngineName = name
	return nil
}

// SplitList splits a comma separated option value.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
