package pipeline

import (
	"fmt"
	"maps"
	"slices"

	"github.com/smazurov/screencap/internal/capture"
)

// StageKind is the role a stage plays in the graph.
type StageKind string

// Stage kinds
const (
	KindSource       StageKind = "source"
	KindFilter       StageKind = "filter"
	KindCrop         StageKind = "crop"
	KindRateLimiter  StageKind = "rate_limiter"
	KindColorConvert StageKind = "color_convert"
	KindEncoder      StageKind = "encoder"
	KindMuxer        StageKind = "muxer"
	KindMixer        StageKind = "mixer"
	KindSink         StageKind = "sink"
	KindTee          StageKind = "tee"
)

// Caps is a media type description such as "video/x-raw,framerate=15/1".
type Caps string

// Artifact names a session file. Path-valued properties hold an Artifact
// and the engine substitutes the session's path when it loads the graph.
type Artifact string

// Session artifacts
const (
	ArtifactOutput  Artifact = "output"
	ArtifactScratch Artifact = "scratch"
)

// Files maps artifacts to concrete paths.
type Files map[Artifact]string

// Props is a stage property map. Values are int, bool, string, Caps or
// Artifact.
type Props map[string]any

// Stage is one processing element.
type Stage struct {
	ID      string    `json:"id"`
	Kind    StageKind `json:"kind"`
	Factory string    `json:"factory"`
	Props   Props     `json:"props,omitempty"`
	// Preview marks the sink of a live preview branch. It is not the
	// graph's output.
	Preview bool `json:"preview,omitempty"`
}

// Keys returns the property names in sorted order.
func (s *Stage) Keys() []string {
	return slices.Sorted(maps.Keys(s.Props))
}

// Edge connects two stages by ID.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a directed acyclic graph of stages kept as adjacency lists.
// Stages and edges keep insertion order.
type Graph struct {
	Mode   capture.Mode
	stages []*Stage
	byID   map[string]*Stage
	out    map[string][]string
	in     map[string][]string
}

// NewGraph returns an empty graph for mode.
func NewGraph(mode capture.Mode) *Graph {
	return &Graph{
		Mode: mode,
		byID: make(map[string]*Stage),
		out:  make(map[string][]string),
		in:   make(map[string][]string),
	}
}

// Add inserts s. IDs must be unique.
func (g *Graph) Add(s *Stage) error {
	if s.ID == "" || s.Factory == "" {
		return capture.NewLinkError(fmt.Sprintf("stage %q lacks id or factory", s.ID), nil)
	}
	if _, dup := g.byID[s.ID]; dup {
		return capture.NewLinkError(fmt.Sprintf("duplicate stage id %q", s.ID), nil)
	}
	g.stages = append(g.stages, s)
	g.byID[s.ID] = s
	return nil
}

// Link connects from's output to to's input, enforcing which kinds may
// fan out or fan in.
func (g *Graph) Link(from, to string) error {
	src, ok := g.byID[from]
	if !ok {
		return capture.NewLinkError(fmt.Sprintf("unknown stage %q", from), nil)
	}
	dst, ok := g.byID[to]
	if !ok {
		return capture.NewLinkError(fmt.Sprintf("unknown stage %q", to), nil)
	}
	if from == to {
		return capture.NewLinkError(fmt.Sprintf("stage %q linked to itself", from), nil)
	}
	if src.Kind == KindSink {
		return capture.NewLinkError(fmt.Sprintf("sink %q cannot feed %q", from, to), nil)
	}
	if dst.Kind == KindSource {
		return capture.NewLinkError(fmt.Sprintf("source %q cannot be fed by %q", to, from), nil)
	}
	if slices.Contains(g.out[from], to) {
		return capture.NewLinkError(fmt.Sprintf("%s -> %s linked twice", from, to), nil)
	}
	if n := len(g.out[from]); n > 0 && (src.Kind != KindTee || n >= 2) {
		return capture.NewLinkError(fmt.Sprintf("%s %q cannot fan out to %q", src.Kind, from, to), nil)
	}
	if n := len(g.in[to]); n > 0 && dst.Kind != KindMuxer && (dst.Kind != KindMixer || n >= 2) {
		return capture.NewLinkError(fmt.Sprintf("%s %q cannot take a second input from %q", dst.Kind, to, from), nil)
	}
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
	return nil
}

// Chain links ids in sequence.
func (g *Graph) Chain(ids ...string) error {
	for i := 1; i < len(ids); i++ {
		if err := g.Link(ids[i-1], ids[i]); err != nil {
			return err
		}
	}
	return nil
}

// Stage returns the stage with id.
func (g *Graph) Stage(id string) (*Stage, bool) {
	s, ok := g.byID[id]
	return s, ok
}

// Stages returns every stage in insertion order.
func (g *Graph) Stages() []*Stage {
	return slices.Clone(g.stages)
}

// Edges returns every link grouped by upstream stage in insertion order.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, s := range g.stages {
		for _, to := range g.out[s.ID] {
			edges = append(edges, Edge{From: s.ID, To: to})
		}
	}
	return edges
}

// Downstream returns the stages fed by id.
func (g *Graph) Downstream(id string) []*Stage {
	return g.lookup(g.out[id])
}

// Upstream returns the stages feeding id.
func (g *Graph) Upstream(id string) []*Stage {
	return g.lookup(g.in[id])
}

func (g *Graph) lookup(ids []string) []*Stage {
	out := make([]*Stage, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.byID[id])
	}
	return out
}

// OfKind returns the stages of kind k in insertion order.
func (g *Graph) OfKind(k StageKind) []*Stage {
	var out []*Stage
	for _, s := range g.stages {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// Output returns the graph's terminal output sink.
func (g *Graph) Output() (*Stage, bool) {
	for _, s := range g.stages {
		if s.Kind == KindSink && !s.Preview {
			return s, true
		}
	}
	return nil, false
}

// Factories returns the distinct element factories the graph needs.
func (g *Graph) Factories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range g.stages {
		if !seen[s.Factory] {
			seen[s.Factory] = true
			out = append(out, s.Factory)
		}
	}
	return out
}

// Artifacts returns the session files referenced by stage properties.
func (g *Graph) Artifacts() []Artifact {
	seen := make(map[Artifact]bool)
	var out []Artifact
	for _, s := range g.stages {
		for _, k := range s.Keys() {
			if a, ok := s.Props[k].(Artifact); ok && !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Reaches reports whether to is downstream of from.
func (g *Graph) Reaches(from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range g.out[id] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Order returns the stages in a topological order that starts from the
// sources in insertion order.
func (g *Graph) Order() ([]*Stage, error) {
	indegree := make(map[string]int, len(g.stages))
	for _, s := range g.stages {
		indegree[s.ID] = len(g.in[s.ID])
	}
	var queue, order []string
	for _, s := range g.stages {
		if indegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range g.out[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(g.stages) {
		return nil, capture.NewLinkError("graph contains a cycle", nil)
	}
	return g.lookup(order), nil
}

// Validate checks the structural invariants: acyclic, one output sink
// reachable from every stage, sources without inputs, complete tees and
// mixers, and a muxer whenever several streams meet.
func (g *Graph) Validate() error {
	if len(g.stages) == 0 {
		return capture.NewLinkError("empty graph", nil)
	}
	if _, err := g.Order(); err != nil {
		return err
	}

	var outputs []*Stage
	for _, s := range g.stages {
		if s.Kind == KindSink && !s.Preview {
			outputs = append(outputs, s)
		}
	}
	if len(outputs) != 1 {
		return capture.NewLinkError(fmt.Sprintf("graph needs exactly one output sink, has %d", len(outputs)), nil)
	}
	output := outputs[0]

	for _, s := range g.stages {
		switch s.Kind {
		case KindSource:
			if len(g.out[s.ID]) == 0 {
				return capture.NewLinkError(fmt.Sprintf("source %q is not linked", s.ID), nil)
			}
		case KindSink:
			if len(g.in[s.ID]) == 0 {
				return capture.NewLinkError(fmt.Sprintf("sink %q has no input", s.ID), nil)
			}
			if s.Preview && !g.behindTee(s.ID) {
				return capture.NewLinkError(fmt.Sprintf("preview sink %q is not fed by a tee", s.ID), nil)
			}
			continue
		case KindTee:
			if len(g.out[s.ID]) != 2 {
				return capture.NewLinkError(fmt.Sprintf("tee %q needs two branches, has %d", s.ID, len(g.out[s.ID])), nil)
			}
		case KindMixer:
			if len(g.in[s.ID]) != 2 {
				return capture.NewLinkError(fmt.Sprintf("mixer %q needs two inputs, has %d", s.ID, len(g.in[s.ID])), nil)
			}
		}
		if !g.reachesSink(s.ID) {
			return capture.NewLinkError(fmt.Sprintf("stage %q does not reach a sink", s.ID), nil)
		}
		if !s.Preview && !g.Reaches(s.ID, output.ID) && !g.onPreviewBranch(s.ID) {
			return capture.NewLinkError(fmt.Sprintf("stage %q does not reach output %q", s.ID, output.ID), nil)
		}
	}

	if len(g.OfKind(KindSource)) > 1 && len(g.OfKind(KindMuxer)) == 0 {
		return capture.NewLinkError("several streams reach the output without a muxer", nil)
	}
	return nil
}

func (g *Graph) reachesSink(id string) bool {
	for _, s := range g.OfKind(KindSink) {
		if g.Reaches(id, s.ID) {
			return true
		}
	}
	return false
}

func (g *Graph) behindTee(id string) bool {
	for _, t := range g.OfKind(KindTee) {
		if g.Reaches(t.ID, id) {
			return true
		}
	}
	return false
}

// onPreviewBranch reports whether id sits between a tee and a preview sink
// without reaching the output.
func (g *Graph) onPreviewBranch(id string) bool {
	for _, s := range g.OfKind(KindSink) {
		if s.Preview && g.Reaches(id, s.ID) && g.behindTee(id) {
			return true
		}
	}
	return false
}
