package agent

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// ToolCall is a tool invocation parsed out of model text.
type ToolCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

var (
	fencedJSONPattern = regexp.MustCompile("(?i)```json\\s*([\\s\\S]*?)```")
	bracePattern      = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Extract finds a tool call in a completed turn. It tries the whole text
// as JSON, then the first ```json fence, then the span from the first
// '{' to the last '}'. The first candidate naming a tool wins.
func Extract(text string) (ToolCall, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ToolCall{}, false
	}
	if call, ok := parseToolCall(trimmed); ok {
		return call, true
	}
	if m := fencedJSONPattern.FindStringSubmatch(trimmed); m != nil && m[1] != "" {
		if call, ok := parseToolCall(m[1]); ok {
			return call, true
		}
	}
	if m := bracePattern.FindString(trimmed); m != "" {
		if call, ok := parseToolCall(m); ok {
			return call, true
		}
	}
	return ToolCall{}, false
}

func parseToolCall(s string) (ToolCall, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return ToolCall{}, false
	}
	var name string
	if err := json.Unmarshal(obj["tool"], &name); err != nil || name == "" {
		return ToolCall{}, false
	}
	return ToolCall{Tool: name, Arguments: obj["arguments"]}, true
}

// CanonicalArguments normalizes raw arguments to a compact JSON object
// with sorted keys. A JSON string is parsed once more; anything that is
// not an object becomes {}.
func CanonicalArguments(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return json.RawMessage("{}")
		}
		raw = []byte(inner)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// repetitionKey identifies a call for repeat detection.
func repetitionKey(tool string, canonicalArgs json.RawMessage) string {
	return tool + ":" + string(canonicalArgs)
}
