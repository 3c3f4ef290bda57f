package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/agent"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved conversations",
	Long: `List, search, show, export and delete saved conversations.

Examples:
  grade-llm sessions                      # list recent sessions
  grade-llm sessions list --mode chat
  grade-llm sessions search "绩点"
  grade-llm sessions show 3
  grade-llm sessions export 3 notes.md
  grade-llm sessions delete 3`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search session transcripts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsSearch,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <number|id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <number|id> [path]",
	Short: "Export a session as markdown",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionsExport,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <number|id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var (
	sessionsLimit  int
	sessionsMode   string
	sessionsStatus string
	sessionsJSON   bool
	sessionsYes    bool
)

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to list")
	sessionsListCmd.Flags().StringVar(&sessionsMode, "mode", "", "Filter by mode (chat, ask)")
	sessionsListCmd.Flags().StringVar(&sessionsStatus, "status", "", "Filter by status (active, complete, error, interrupted)")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsDeleteCmd.Flags().BoolVarP(&sessionsYes, "yes", "y", false, "Delete without asking")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsSearchCmd, sessionsShowCmd, sessionsExportCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func getSessionStore() (session.Store, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return nil, err
	}
	if !cfg.Sessions.Enabled {
		return nil, fmt.Errorf("session storage is disabled (sessions.enabled = false)")
	}
	store, err := session.NewStore(cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return store, nil
}

// resolveSession looks up ref and fails when it matches nothing.
func resolveSession(cmd *cobra.Command, store session.Store, ref string) (*session.Session, error) {
	sess, err := store.Resolve(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session '%s' not found", ref)
	}
	return sess, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	if sessionsStatus != "" {
		valid := []string{"active", "complete", "error", "interrupted"}
		if !slices.Contains(valid, sessionsStatus) {
			return fmt.Errorf("invalid status %q: must be one of %v", sessionsStatus, valid)
		}
	}
	if sessionsMode != "" && sessionsMode != string(session.ModeChat) && sessionsMode != string(session.ModeAsk) {
		return fmt.Errorf("invalid mode %q: must be chat or ask", sessionsMode)
	}

	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context(), session.ListOptions{
		Mode:   session.SessionMode(sessionsMode),
		Status: session.SessionStatus(sessionsStatus),
		Limit:  sessionsLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	tbl := ui.Table{Headers: []string{"#", "SUMMARY", "FILE", "MODE", "TURNS", "TOOLS", "STATUS", "AGE"}}
	for _, s := range summaries {
		status := string(s.Status)
		if status == "" {
			status = string(session.StatusActive)
		}
		tbl.AddRow(
			fmt.Sprintf("%d", s.Number),
			s.Summary,
			filepath.Base(s.Source),
			string(s.Mode),
			fmt.Sprintf("%d", s.UserTurns),
			fmt.Sprintf("%d", s.ToolCalls),
			status,
			formatRelativeTime(s.UpdatedAt),
		)
	}
	fmt.Print(tbl.Render(ui.NewStyles(os.Stdout)))
	return nil
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	query := strings.Join(args, " ")
	results, err := store.Search(cmd.Context(), query, 20)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Printf("No results found for '%s'\n", query)
		return nil
	}

	styles := ui.NewStyles(os.Stdout)
	fmt.Printf("Found %d matches for '%s':\n\n", len(results), query)
	for _, r := range results {
		fmt.Printf("%s %s\n", styles.Highlighted.Render(fmt.Sprintf("#%d", r.SessionNumber)), r.Summary)
		fmt.Printf("  %s\n\n", styles.Muted.Render(r.Snippet))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(cmd, store, args[0])
	if err != nil {
		return err
	}
	entries, err := store.GetEntries(cmd.Context(), sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get entries: %w", err)
	}

	if sessionsJSON {
		data := struct {
			Session *session.Session `json:"session"`
			Entries []session.Entry  `json:"entries"`
		}{Session: sess, Entries: entries}
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	styles := ui.NewStyles(os.Stdout)
	status := string(sess.Status)
	if status == "" {
		status = string(session.StatusActive)
	}
	fmt.Printf("Session: #%d %s\n", sess.Number, sess.ID)
	fmt.Printf("File: %s\n", sess.Source)
	fmt.Printf("Model: %s\n", sess.Model)
	fmt.Printf("Mode: %s\n", sess.Mode)
	fmt.Printf("Status: %s\n", status)
	fmt.Printf("Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Turns: %d  Tool calls: %d\n", sess.UserTurns, sess.ToolCalls)
	fmt.Println()

	printTranscript(agent.Display(agent.EntriesFromSession(entries)), styles)
	return nil
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(cmd, store, args[0])
	if err != nil {
		return err
	}
	entries, err := store.GetEntries(cmd.Context(), sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get entries: %w", err)
	}

	outputPath := fmt.Sprintf("session-%d.md", sess.Number)
	if len(args) > 1 {
		outputPath = args[1]
	}
	display := agent.Display(agent.EntriesFromSession(entries))
	if err := os.WriteFile(outputPath, []byte(sessionMarkdown(sess, display)), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	fmt.Printf("Exported %d entries to %s\n", len(display), outputPath)
	return nil
}

// sessionMarkdown renders a conversation for export. Tool calls are
// listed by name; tool payloads are left out.
func sessionMarkdown(sess *session.Session, entries []agent.Entry) string {
	var b strings.Builder
	b.WriteString("# grade-llm 对话记录\n\n")
	fmt.Fprintf(&b, "**Session:** #%d %s\n", sess.Number, sess.ID)
	fmt.Fprintf(&b, "**File:** %s\n", sess.Source)
	fmt.Fprintf(&b, "**Model:** %s\n", sess.Model)
	fmt.Fprintf(&b, "**Created:** %s\n", sess.CreatedAt.Format(time.RFC3339))
	b.WriteString("\n---\n\n")

	for _, e := range entries {
		switch {
		case e.Role == agent.RoleUser:
			b.WriteString("## 你\n\n")
			b.WriteString(e.Content)
			b.WriteString("\n\n")
		case e.Role == agent.RoleTool && e.Phase == agent.PhaseCall:
			fmt.Fprintf(&b, "> 工具调用 · `%s`\n\n", e.Tool)
		case e.Role == agent.RoleTool:
		default:
			b.WriteString("## 助手\n\n")
			b.WriteString(e.Content)
			b.WriteString("\n\n---\n\n")
		}
	}
	return b.String()
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := resolveSession(cmd, store, args[0])
	if err != nil {
		return err
	}
	label := fmt.Sprintf("#%d", sess.Number)
	if sess.Summary != "" {
		label += " " + ui.Truncate(sess.Summary, 40)
	}
	if !sessionsYes {
		ok, err := ui.ConfirmDelete(label)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}
	if err := store.Delete(cmd.Context(), sess.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Println(ui.DefaultStyles().FormatResult(true, "Deleted session "+label))
	return nil
}

// formatRelativeTime returns a human-readable relative time string
func formatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
