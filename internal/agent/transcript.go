package agent

import (
	"encoding/json"

	"github.com/samsaffron/grade-llm/internal/llm"
)

// Role of a transcript entry. RoleTool entries are display-only and are
// never sent upstream as their own role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Phase distinguishes the two halves of a tool round trip.
type Phase string

const (
	PhaseCall   Phase = "call"
	PhaseResult Phase = "result"
)

// Entry is one immutable transcript record.
//
// For tool calls Content is the model's raw tool-call text and Payload the
// canonical arguments; for tool results Content is the indented result
// JSON and Payload its compact form. Directive entries are control
// instructions that go upstream but are never displayed.
type Entry struct {
	Role      Role
	Phase     Phase
	Tool      string
	Content   string
	Payload   json.RawMessage
	Directive bool
}

// toolResultMessage renders a tool result as the user message the model sees.
func toolResultMessage(name, indented string) string {
	return "工具结果 " + name + ":\n" + indented
}

// Display returns the entries a user should see: everything except
// upstream-only directives.
func Display(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Directive {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Upstream projects the log into the message list sent to the model.
//
// The system prompt comes first, then every user and assistant entry of
// the whole log. Tool traffic and directives are only replayed for the
// current question, meaning the entries after the most recent user entry:
// a tool call becomes the assistant text that requested it, a result
// becomes a synthesized user message, a directive a plain user message.
func Upstream(system string, entries []Entry) []llm.Message {
	lastUser := -1
	for i, e := range entries {
		if e.Role == RoleUser && !e.Directive {
			lastUser = i
		}
	}

	msgs := make([]llm.Message, 0, len(entries)+1)
	msgs = append(msgs, llm.SystemText(system))
	for i, e := range entries {
		current := i > lastUser
		switch {
		case e.Directive:
			if current {
				msgs = append(msgs, llm.UserText(e.Content))
			}
		case e.Role == RoleUser:
			msgs = append(msgs, llm.UserText(e.Content))
		case e.Role == RoleAssistant:
			msgs = append(msgs, llm.AssistantText(e.Content))
		case e.Role == RoleTool && current && e.Phase == PhaseCall:
			msgs = append(msgs, llm.AssistantText(e.Content))
		case e.Role == RoleTool && current && e.Phase == PhaseResult:
			msgs = append(msgs, llm.UserText(toolResultMessage(e.Tool, e.Content)))
		}
	}
	return msgs
}
