package ui

import (
	"encoding/json"
	"strconv"
	"strings"

	xansi "github.com/charmbracelet/x/ansi"

	"github.com/samsaffron/grade-llm/internal/agent"
)

// toolCardLines bounds how much of a tool result a card shows.
const toolCardLines = 8

// RenderToolCall renders the one-line notice shown while a tool runs.
func RenderToolCall(s *Styles, e agent.Entry) string {
	args := string(e.Payload)
	if args == "{}" {
		args = ""
	}
	line := s.Muted.Render("工具调用 · ") + s.Highlighted.Render(e.Tool)
	if args != "" {
		line += " " + s.Muted.Render(args)
	}
	return line
}

// RenderToolCard renders a tool result as a bordered card, trimmed to
// width cells and a few lines.
func RenderToolCard(s *Styles, e agent.Entry, width int) string {
	inner := max(width-4, 20)
	lines := strings.Split(e.Content, "\n")
	more := 0
	if len(lines) > toolCardLines {
		more = len(lines) - toolCardLines
		lines = lines[:toolCardLines]
	}
	for i, l := range lines {
		lines[i] = xansi.Truncate(l, inner, "…")
	}
	body := strings.Join(lines, "\n")
	if more > 0 {
		body += "\n" + s.Muted.Render("… 另有 "+strconv.Itoa(more)+" 行")
	}

	title := s.Muted.Render("工具结果 · ") + s.Highlighted.Render(e.Tool)
	style := s.ToolCard
	if isErrorResult(e.Payload) {
		style = s.ToolError
	}
	return style.Width(min(inner, maxLineWidth(title, body)) + 2).Render(title + "\n" + body)
}

func maxLineWidth(parts ...string) int {
	w := 0
	for _, p := range parts {
		for _, l := range strings.Split(p, "\n") {
			w = max(w, xansi.StringWidth(l))
		}
	}
	return w
}

// isErrorResult reports whether a compact result is {"error": ...}.
func isErrorResult(payload json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	_, ok := probe["error"]
	return ok && len(probe) == 1
}
