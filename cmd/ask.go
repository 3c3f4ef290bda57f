package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/prompt"
	"github.com/samsaffron/grade-llm/internal/session"
	"github.com/samsaffron/grade-llm/internal/signal"
)

var (
	askFlags analysisFlags
	askQuick string
)

var askCmd = &cobra.Command{
	Use:   "ask <transcript.xlsx> [question...]",
	Short: "Ask one question about a transcript",
	Long: `Ask a single question. The assistant may call tools over the transcript
before answering; tool calls are shown as they happen.

Examples:
  grade-llm ask grades.xlsx "我修了多少学分？"
  grade-llm ask grades.xlsx --quick low
  grade-llm ask grades.xlsx "保持 90 分以上下学期需要多少分" --filter`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	addAnalysisFlags(askCmd, &askFlags)
	askCmd.Flags().StringVarP(&askQuick, "quick", "q", "", "Use a quick prompt instead of a question ("+quickPromptIDs()+")")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args[1:], " "))
	if askQuick != "" {
		qp, ok := prompt.LookupQuickPrompt(askQuick)
		if !ok {
			return fmt.Errorf("unknown quick prompt %q (available: %s)", askQuick, quickPromptIDs())
		}
		question = qp.Text
	}
	if question == "" {
		return &userError{msg: "请输入问题", hint: "grade-llm ask grades.xlsx \"我修了多少学分？\""}
	}

	ctx, stop := signal.NotifyContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig(askFlags.model)
	if err != nil {
		return err
	}
	store := openStore(cfg)
	defer store.Close()

	conv, err := startConversation(ctx, cmd, cfg, store, conversationOptions{
		mode:  session.ModeAsk,
		path:  args[0],
		flags: &askFlags,
	})
	if err != nil {
		return err
	}

	answer, err := conv.ask(ctx, question)
	conv.close(err)
	if err != nil {
		return err
	}
	printAnswer(answer)
	printStats(conv.stats)
	return nil
}

func quickPromptIDs() string {
	ids := make([]string, len(prompt.QuickPrompts))
	for i, qp := range prompt.QuickPrompts {
		ids[i] = qp.ID
	}
	return strings.Join(ids, ", ")
}
