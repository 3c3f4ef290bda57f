package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/config"
	"github.com/samsaffron/grade-llm/internal/ui"
)

// Version is set at build time.
var Version = "dev"

var (
	debugMode bool
	debugLog  string
	textMode  bool
	showStats bool
)

var rootCmd = &cobra.Command{
	Use:   "grade-llm",
	Short: "Chat with an AI assistant about your transcript",
	Long: `grade-llm loads an exported transcript (.xlsx) and lets you ask an
OpenAI-compatible model about it. The model answers by calling read-only
tools over your grades: credits, averages, low-scoring courses, term trends
and the average you need to reach a target.

Examples:
  grade-llm ask grades.xlsx "我修了多少学分？"
  grade-llm chat grades.xlsx --multiplier
  grade-llm summary grades.xlsx --rules rules.yaml
  grade-llm models --select
  grade-llm sessions list`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Show debug logs on stderr")
	rootCmd.PersistentFlags().StringVar(&debugLog, "debug-log", "", "Write per-turn JSONL debug logs to this directory")
	rootCmd.PersistentFlags().Lookup("debug-log").NoOptDefVal = "default"
	rootCmd.PersistentFlags().BoolVar(&textMode, "text", false, "Plain output: no live view, no markdown rendering")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "Show timing statistics after each answer")
}

func setupLogging() {
	level := slog.LevelWarn
	if debugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints the friendly message for err; the underlying cause
// is only shown with --debug.
func reportError(err error) {
	styles := ui.DefaultStyles()
	var ue *userError
	if errors.As(err, &ue) {
		fmt.Fprintln(os.Stderr, styles.Error.Render(ue.msg))
		if ue.hint != "" {
			fmt.Fprintln(os.Stderr, styles.Muted.Render(ue.hint))
		}
		if ue.err != nil {
			slog.Debug("command failed", "error", ue.err)
		}
		return
	}
	fmt.Fprintln(os.Stderr, styles.Error.Render("Error: "+err.Error()))
}

// loadConfig reads the config file, applies --model and initializes the
// theme.
func loadConfig(model string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(model)
	ui.InitTheme(ui.ThemeConfig{
		Primary:   cfg.Theme.Primary,
		Secondary: cfg.Theme.Secondary,
		Success:   cfg.Theme.Success,
		Error:     cfg.Theme.Error,
		Muted:     cfg.Theme.Muted,
		Spinner:   cfg.Theme.Spinner,
	})
	return cfg, nil
}
