// Package tools provides the read-only transcript tools the assistant
// may call, and the dispatcher that coerces model-supplied arguments.
package tools

import (
	"encoding/json"
	"strings"
)

// Param documents one tool argument for the system prompt.
type Param struct {
	Name string
	Doc  string
}

// Descriptor is the static description of a tool advertised to the model.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param
}

// ParamsJSON renders the parameter docs as an indented JSON object,
// preserving declaration order. Returns "" when the tool takes none.
func (d Descriptor) ParamsJSON() string {
	if len(d.Params) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, p := range d.Params {
		name, _ := json.Marshal(p.Name)
		doc, _ := json.Marshal(p.Doc)
		sb.WriteString("  ")
		sb.Write(name)
		sb.WriteString(": ")
		sb.Write(doc)
		if i < len(d.Params)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// ParamNames returns the declared argument names.
func (d Descriptor) ParamNames() []string {
	names := make([]string, len(d.Params))
	for i, p := range d.Params {
		names[i] = p.Name
	}
	return names
}

// Tool is a deterministic function over the transcript snapshot.
type Tool interface {
	Spec() Descriptor
	Run(args Args) any
}

// ErrorResult is a recoverable failure reported back to the model.
type ErrorResult struct {
	Error string `json:"error"`
}

func errorResult(msg string) ErrorResult {
	return ErrorResult{Error: msg}
}
