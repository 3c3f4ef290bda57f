package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/agent"
	"github.com/samsaffron/grade-llm/internal/clipboard"
	"github.com/samsaffron/grade-llm/internal/prompt"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/signal"
	"github.com/samsaffron/grade-llm/internal/ui"
)

var (
	chatFlags  analysisFlags
	chatResume string
)

var chatCmd = &cobra.Command{
	Use:   "chat [transcript.xlsx]",
	Short: "Interactive conversation about a transcript",
	Long: `Start an interactive conversation. Type a question, or one of:

  /quick [id]    ask a quick prompt (list them with /quick)
  /tools         show the tools the assistant can call
  /transcript    show the conversation so far
  /copy          copy the last answer to the clipboard
  /reset         clear the conversation
  /quit          leave

Examples:
  grade-llm chat grades.xlsx
  grade-llm chat --resume 3             # continue session #3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	addAnalysisFlags(chatCmd, &chatFlags)
	chatCmd.Flags().StringVarP(&chatResume, "resume", "r", "", "Resume a session by number or ID prefix")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(chatFlags.model)
	if err != nil {
		return err
	}
	store := openStore(cfg)
	defer store.Close()

	opts := conversationOptions{mode: session.ModeChat, flags: &chatFlags}
	if len(args) > 0 {
		opts.path = args[0]
	}
	if chatResume != "" {
		sess, err := store.Resolve(ctx, chatResume)
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("session not found: %s", chatResume)
		}
		entries, err := store.GetEntries(ctx, sess.ID, 0, 0)
		if err != nil {
			return err
		}
		opts.resume = sess
		opts.history = agent.EntriesFromSession(entries)
		if opts.path == "" {
			opts.path = sess.Source
		}
		if sess.Model != "" && chatFlags.model == "" {
			cfg.LLM.Model = sess.Model
		}
	}
	if opts.path == "" {
		return fmt.Errorf("a transcript file is required (or use --resume)")
	}

	conv, err := startConversation(ctx, cmd, cfg, store, opts)
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	if opts.resume != nil {
		fmt.Fprintf(os.Stderr, "%s\n", styles.Muted.Render(fmt.Sprintf("已恢复会话 #%d（%d 条记录）", opts.resume.Number, len(agent.Display(opts.history)))))
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", styles.Title.Render("grade-llm"), styles.Muted.Render("模型 "+conv.model+" · /quick 快捷提问 · /quit 退出"))

	err = chatLoop(ctx, conv, os.Stdin, styles)
	conv.close(err)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	printStats(conv.stats)
	return nil
}

func chatLoop(ctx context.Context, conv *conversation, in io.Reader, styles *ui.Styles) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(os.Stderr, styles.UserPrompt.Render("› "))
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		question := line
		if strings.HasPrefix(line, "/") {
			var quit bool
			var err error
			question, quit, err = handleChatCommand(conv, line, styles)
			if quit {
				return nil
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, styles.Error.Render(err.Error()))
				continue
			}
			if question == "" {
				continue
			}
		}

		qctx, stop := signal.QuestionContext(ctx)
		answer, err := conv.ask(qctx, question)
		stop()
		if err != nil {
			reportError(err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		printAnswer(answer)
		fmt.Fprintln(os.Stderr)
	}
}

// handleChatCommand runs a slash command. It returns a question to ask
// when the command expands to one.
func handleChatCommand(conv *conversation, line string, styles *ui.Styles) (question string, quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return "", true, nil
	case "/reset", "/clear":
		if err := conv.reset(context.Background()); err != nil {
			return "", false, err
		}
		fmt.Fprintln(os.Stderr, styles.Muted.Render("已清空对话"))
	case "/tools":
		fmt.Fprint(os.Stderr, renderToolList(conv.agent.Tools(), styles))
	case "/transcript":
		printTranscript(agent.Display(conv.agent.Transcript()), styles)
	case "/copy":
		answer := lastAnswer(conv.agent.Transcript())
		if answer == "" {
			return "", false, fmt.Errorf("nothing to copy yet")
		}
		if err := clipboard.CopyText(answer); err != nil {
			return "", false, err
		}
		fmt.Fprintln(os.Stderr, styles.FormatResult(true, "已复制"))
	case "/quick":
		if len(fields) < 2 {
			tbl := ui.Table{Headers: []string{"ID", "名称", "问题"}}
			for _, qp := range prompt.QuickPrompts {
				tbl.AddRow(qp.ID, qp.Label, qp.Text)
			}
			fmt.Fprint(os.Stderr, tbl.Render(styles))
			return "", false, nil
		}
		qp, ok := prompt.LookupQuickPrompt(fields[1])
		if !ok {
			return "", false, fmt.Errorf("unknown quick prompt %q (available: %s)", fields[1], quickPromptIDs())
		}
		fmt.Fprintln(os.Stderr, styles.Muted.Render(qp.Label+" · "+qp.Text))
		return qp.Text, false, nil
	case "/help", "/?":
		fmt.Fprintln(os.Stderr, styles.Muted.Render("/quick [id] · /tools · /transcript · /copy · /reset · /quit"))
	default:
		return "", false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return "", false, nil
}

// lastAnswer returns the most recent answer shown to the user.
func lastAnswer(entries []agent.Entry) string {
	shown := agent.Display(entries)
	for i := len(shown) - 1; i >= 0; i-- {
		if shown[i].Role == agent.RoleAssistant {
			return shown[i].Content
		}
	}
	return ""
}

// printTranscript renders the display view of a conversation.
func printTranscript(entries []agent.Entry, styles *ui.Styles) {
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, styles.Muted.Render("（暂无对话）"))
		return
	}
	width := ui.TerminalWidth(os.Stderr)
	for _, e := range entries {
		switch {
		case e.Role == agent.RoleUser:
			fmt.Fprintln(os.Stderr, styles.UserPrompt.Render("你：")+e.Content)
		case e.Role == agent.RoleTool && e.Phase == agent.PhaseCall:
			fmt.Fprintln(os.Stderr, ui.RenderToolCall(styles, e))
		case e.Role == agent.RoleTool:
			fmt.Fprintln(os.Stderr, ui.RenderToolCard(styles, e, width))
		default:
			fmt.Fprintln(os.Stderr, styles.Highlighted.Render("助手："))
			printAnswer(e.Content)
		}
	}
}
