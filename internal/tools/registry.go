package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/samsaffron/grade-llm/internal/grade"
)

// Registry maps tool names to tools and dispatches model calls.
type Registry struct {
	order  []string
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), logger: slog.Default()}
}

// NewGradeRegistry registers the transcript tools over snap.
func NewGradeRegistry(snap *grade.Snapshot) *Registry {
	r := NewRegistry()
	for _, t := range gradeTools(snap) {
		r.Register(t)
	}
	return r
}

// WithLogger sets the logger used for dispatch diagnostics.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	name := t.Spec().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns the catalogue in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Spec())
	}
	return out
}

// Dispatch runs the named tool with coerced arguments. Unknown tools
// yield an ErrorResult so the model can correct itself.
func (r *Registry) Dispatch(name string, raw json.RawMessage) any {
	return r.DispatchArgs(name, DecodeArgs(raw))
}

// DispatchArgs is Dispatch for already-decoded arguments.
func (r *Registry) DispatchArgs(name string, args Args) any {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Debug("unknown tool requested", "tool", name)
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}
	if args == nil {
		args = Args{}
	}
	if unknown := UnknownParams(args, t.Spec().ParamNames()); len(unknown) > 0 {
		r.logger.Debug("ignoring unknown tool parameters", "tool", name, "params", unknown)
	}
	return t.Run(args)
}
