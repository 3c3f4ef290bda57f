package debuglog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samsaffron/grade-llm/internal/ui"
)

// FormatOptions controls how session output is formatted
type FormatOptions struct {
	Full          bool // print complete messages, responses and tool results
	ShowTimestamp bool
}

// Lengths used when Full is off.
const (
	systemPreview = 300
	textPreview   = 200
	argsPreview   = 100
)

// FormatSessionList formats a list of sessions, most recent first.
func FormatSessionList(w io.Writer, sessions []SessionSummary, styles *ui.Styles) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No debug sessions found.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Enable debug logging with --debug-log or debug.log_dir.")
		return
	}

	tbl := ui.Table{Headers: []string{"#", "STARTED", "MODEL", "COMMAND", "TURNS", "TOOLS", ""}}
	for i, s := range sessions {
		errMark := ""
		if s.HasErrors {
			errMark = "!"
		}
		tbl.AddRow(
			fmt.Sprintf("%d", i+1),
			s.StartTime.Local().Format("Jan 02 15:04"),
			s.Model,
			s.Command,
			fmt.Sprintf("%d", s.Turns),
			fmt.Sprintf("%d", s.ToolCalls),
			errMark,
		)
	}
	fmt.Fprint(w, tbl.Render(styles))
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.Muted.Render("Use `grade-llm debug-log show 1` to view a session"))
}

// FormatSession formats a full session for display
func FormatSession(w io.Writer, session *Session, styles *ui.Styles, opts FormatOptions) {
	fmt.Fprintf(w, "%s %s\n", styles.Highlighted.Render("Session:"), session.ID)
	if session.Command != "" {
		cmdLine := session.Command
		if len(session.Args) > 0 {
			cmdLine += " " + strings.Join(session.Args, " ")
		}
		fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Command:"), ui.Truncate(cmdLine, 120))
	}
	fmt.Fprintf(w, "%s %s/%s\n", styles.Muted.Render("Provider:"), session.Provider, session.Model)
	fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Started:"), session.StartTime.Local().Format("2006-01-02 15:04:05"))
	if session.EndTime.After(session.StartTime) {
		fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Duration:"), session.EndTime.Sub(session.StartTime).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "%s %d requests, %d tool calls\n", styles.Muted.Render("Turns:"), session.Turns, session.ToolCalls)
	if session.HasErrors {
		fmt.Fprintln(w, styles.Error.Render("Has tool errors"))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.Muted.Render(strings.Repeat("─", 78)))
	fmt.Fprintln(w)

	for _, entry := range session.Entries {
		switch e := entry.(type) {
		case RequestEntry:
			formatRequestEntry(w, e, styles, opts)
		case ResponseEntry:
			formatResponseEntry(w, e, styles, opts)
		case ToolEntry:
			formatToolEntry(w, e, styles, opts)
		}
	}
}

func timestamp(t time.Time, opts FormatOptions) string {
	if !opts.ShowTimestamp {
		return ""
	}
	return t.Local().Format("15:04:05") + " "
}

// preview shortens text to n cells on one line unless Full is set.
func preview(text string, n int, opts FormatOptions) string {
	if opts.Full {
		return text
	}
	return ui.Truncate(strings.ReplaceAll(text, "\n", " "), n)
}

func formatRequestEntry(w io.Writer, req RequestEntry, styles *ui.Styles, opts FormatOptions) {
	fmt.Fprintf(w, "%s%s #%d %s\n", timestamp(req.Timestamp, opts), styles.Highlighted.Render("REQUEST"), req.Turn, req.Model)
	fmt.Fprintf(w, "         Messages: %d, max_tokens: %d, temperature: %g\n", len(req.Messages), req.MaxTokens, req.Temperature)

	if opts.Full {
		for _, msg := range req.Messages {
			fmt.Fprintf(w, "         %s: %s\n", styles.Muted.Render(msg.Role), msg.Content)
		}
		fmt.Fprintln(w)
		return
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			fmt.Fprintf(w, "         %s: %s\n", styles.Muted.Render("System"), preview(msg.Content, systemPreview, opts))
			break
		}
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		msg := req.Messages[i]
		if msg.Role == "user" {
			fmt.Fprintf(w, "         %s: %s\n", styles.Muted.Render("User"), preview(msg.Content, textPreview, opts))
			break
		}
	}
	fmt.Fprintln(w)
}

func formatResponseEntry(w io.Writer, resp ResponseEntry, styles *ui.Styles, opts FormatOptions) {
	fmt.Fprintf(w, "%s%s #%d\n", timestamp(resp.Timestamp, opts), styles.Bold.Render("RESPONSE"), resp.Turn)
	fmt.Fprintf(w, "         %s\n\n", preview(resp.Text, textPreview, opts))
}

func formatToolEntry(w io.Writer, t ToolEntry, styles *ui.Styles, opts FormatOptions) {
	status := styles.Success.Render("ok")
	if t.IsError() {
		status = styles.Error.Render("error")
	}
	args := string(t.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}
	fmt.Fprintf(w, "%s%s %s %s (%s)\n", timestamp(t.Timestamp, opts), styles.Bold.Render("TOOL"), t.Tool,
		styles.Muted.Render(preview(args, argsPreview, opts)), status)
	if opts.Full {
		fmt.Fprintf(w, "         %s\n", indentJSON(t.Result))
	}
	fmt.Fprintln(w)
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "         ", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
