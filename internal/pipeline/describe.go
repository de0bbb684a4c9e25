package pipeline

import (
	"fmt"
	"strings"

	"github.com/smazurov/screencap/internal/capture"
)

// Args renders g as gst-launch arguments. Every element is named after its
// stage ID so engine messages can be traced back to stages. Artifacts must
// all be present in files.
func Args(g *Graph, files Files) ([]string, error) {
	if err := CheckFiles(g, files); err != nil {
		return nil, err
	}
	return render(g, func(a Artifact) string { return files[a] }), nil
}

// CheckFiles verifies that files has a path for every artifact g uses.
func CheckFiles(g *Graph, files Files) error {
	for _, a := range g.Artifacts() {
		if files[a] == "" {
			return capture.NewBuildError(fmt.Sprintf("no path for artifact %q", a), nil)
		}
	}
	return nil
}

// Describe renders g as a single gst-launch description. Artifacts missing
// from files are shown as <name>.
func Describe(g *Graph, files Files) string {
	args := render(g, func(a Artifact) string {
		if p := files[a]; p != "" {
			return p
		}
		return "<" + string(a) + ">"
	})
	for i, arg := range args {
		args[i] = quoteArg(arg)
	}
	return strings.Join(args, " ")
}

// Value formats a property value the way gst-launch parses it.
func Value(v any, resolve func(Artifact) string) string {
	switch v := v.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case Artifact:
		return resolve(v)
	case Caps:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// render walks each source's chain. A stage with several inputs is declared
// on first arrival and referenced as "id." afterwards. Extra tee branches
// are emitted as "tee. ! ..." chains once the sources are done.
func render(g *Graph, resolve func(Artifact) string) []string {
	var args []string
	declared := make(map[string]bool)
	type branch struct{ from, to string }
	var pending []branch

	chain := func(id string) {
		for {
			if declared[id] {
				args = append(args, id+".")
				return
			}
			declared[id] = true
			s := g.byID[id]
			args = append(args, s.Factory, "name="+s.ID)
			for _, k := range s.Keys() {
				args = append(args, k+"="+Value(s.Props[k], resolve))
			}
			outs := g.out[id]
			if len(outs) == 0 {
				return
			}
			for _, extra := range outs[1:] {
				pending = append(pending, branch{from: id, to: extra})
			}
			args = append(args, "!")
			id = outs[0]
		}
	}

	for _, s := range g.stages {
		if s.Kind == KindSource {
			chain(s.ID)
		}
	}
	for len(pending) > 0 {
		b := pending[0]
		pending = pending[1:]
		args = append(args, b.from+".", "!")
		chain(b.to)
	}
	return args
}

func quoteArg(arg string) string {
	if !strings.ContainsAny(arg, " \t\"'") {
		return arg
	}
	key, val, ok := strings.Cut(arg, "=")
	if !ok {
		return quote(arg)
	}
	return key + "=" + quote(val)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
