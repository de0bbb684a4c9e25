// Package pipeline composes capture requests into media processing graphs.
//
// The builder is a pure function of the request and its environment: the
// same request always produces the same graph. Session file paths appear as
// Artifact references and are substituted by the engine at load time.
package pipeline

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/smazurov/screencap/internal/capture"
)

// Registry reports which element factories the media engine provides.
type Registry interface {
	HasElement(factory string) bool
}

// DefaultCores is the encoder thread budget: all cores but one.
func DefaultCores() int {
	return max(1, runtime.NumCPU()-1)
}

// Builder turns requests into graphs.
type Builder struct {
	env      Env
	registry Registry
	logger   *slog.Logger
}

// NewBuilder creates a builder. A nil registry skips availability checks.
func NewBuilder(env Env, registry Registry, logger *slog.Logger) *Builder {
	if env.Cores < 1 {
		env.Cores = DefaultCores()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{env: env, registry: registry, logger: logger}
}

// Env returns the builder's environment.
func (b *Builder) Env() Env {
	return b.env
}

// Build composes the graph for req. Either the complete validated graph is
// returned or none at all.
func (b *Builder) Build(req capture.Request) (*Graph, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r, err := lookupRecipe(req, b.env)
	if err != nil {
		return nil, err
	}

	g, err := assemble(req.Mode, r)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	if missing := b.missing(g); len(missing) > 0 {
		return nil, capture.NewBuildError(fmt.Sprintf("missing elements: %s", strings.Join(missing, ", ")), nil)
	}

	b.logger.Debug("Built pipeline",
		"mode", req.Mode,
		"codec", req.Codec.String(),
		"stages", len(g.stages),
		"audio_sources", len(req.Audio))
	return g, nil
}

func (b *Builder) missing(g *Graph) []string {
	if b.registry == nil {
		return nil
	}
	var missing []string
	for _, f := range g.Factories() {
		if !b.registry.HasElement(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// assemble adds every stage of r and links the chains. All stages are
// added before any link is made.
func assemble(mode capture.Mode, r recipe) (*Graph, error) {
	g := NewGraph(mode)

	all := make([]*Stage, 0, 24)
	all = append(all, r.video...)
	all = append(all, r.preview...)
	for _, chain := range r.audio {
		all = append(all, chain...)
	}
	all = append(all, r.audioTail...)
	if r.mux != nil {
		all = append(all, r.mux)
	}
	all = append(all, r.tail...)
	for _, s := range all {
		if err := g.Add(s); err != nil {
			return nil, err
		}
	}

	if err := g.Chain(ids(r.video)...); err != nil {
		return nil, err
	}
	if len(r.preview) > 0 {
		tee := g.OfKind(KindTee)
		if len(tee) != 1 {
			return nil, capture.NewLinkError("preview branch without a tee", nil)
		}
		if err := g.Chain(append([]string{tee[0].ID}, ids(r.preview)...)...); err != nil {
			return nil, err
		}
	}

	if len(r.audioTail) > 0 {
		for _, chain := range r.audio {
			if err := g.Chain(append(ids(chain), r.audioTail[0].ID)...); err != nil {
				return nil, err
			}
		}
		if err := g.Chain(ids(r.audioTail)...); err != nil {
			return nil, err
		}
	}

	head := last(r.video)
	if r.mux != nil {
		if err := g.Link(head, r.mux.ID); err != nil {
			return nil, err
		}
		if len(r.audioTail) > 0 {
			if err := g.Link(last(r.audioTail), r.mux.ID); err != nil {
				return nil, err
			}
		}
		head = r.mux.ID
	}
	if err := g.Chain(append([]string{head}, ids(r.tail)...)...); err != nil {
		return nil, err
	}
	return g, nil
}

func ids(stages []*Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.ID
	}
	return out
}

func last(stages []*Stage) string {
	if len(stages) == 0 {
		return ""
	}
	return stages[len(stages)-1].ID
}
