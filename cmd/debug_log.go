package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/config"
	"github.com/samsaffron/grade-llm/internal/debuglog"
	"github.com/samsaffron/grade-llm/internal/ui"
)

var (
	debugLogFull bool
	debugLogTime bool
)

var debugLogCmd = &cobra.Command{
	Use:   "debug-log",
	Short: "Inspect per-turn debug logs",
	Long: `List and show the JSONL logs written with --debug-log or debug.log_dir.
Each log holds the requests sent upstream, the streamed responses and every
tool dispatch of one session.

Examples:
  grade-llm debug-log                # list sessions
  grade-llm debug-log show 1         # most recent session
  grade-llm debug-log show 01J --full`,
	RunE: runDebugLogList,
}

var debugLogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List debug sessions",
	Args:  cobra.NoArgs,
	RunE:  runDebugLogList,
}

var debugLogShowCmd = &cobra.Command{
	Use:   "show <number|id>",
	Short: "Show one debug session",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebugLogShow,
}

var debugLogPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the debug log directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := debugLogDir()
		if err != nil {
			return err
		}
		fmt.Println(dir)
		return nil
	},
}

func init() {
	debugLogShowCmd.Flags().BoolVar(&debugLogFull, "full", false, "Print complete messages and tool results")
	debugLogShowCmd.Flags().BoolVar(&debugLogTime, "timestamps", false, "Show a timestamp for each entry")
	debugLogCmd.AddCommand(debugLogListCmd, debugLogShowCmd, debugLogPathCmd)
	rootCmd.AddCommand(debugLogCmd)
}

// debugLogDir is where openDebugLogger writes when no directory is given.
func debugLogDir() (string, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return "", err
	}
	if cfg.Debug.LogDir != "" {
		return expandHome(cfg.Debug.LogDir), nil
	}
	return config.GetDebugLogDir(), nil
}

func runDebugLogList(cmd *cobra.Command, args []string) error {
	dir, err := debugLogDir()
	if err != nil {
		return err
	}
	sessions, err := debuglog.ListSessions(dir)
	if err != nil {
		return fmt.Errorf("failed to list debug logs: %w", err)
	}
	debuglog.FormatSessionList(os.Stdout, sessions, ui.NewStyles(os.Stdout))
	return nil
}

func runDebugLogShow(cmd *cobra.Command, args []string) error {
	dir, err := debugLogDir()
	if err != nil {
		return err
	}
	summary, err := debuglog.ResolveSession(dir, args[0])
	if err != nil {
		return err
	}
	session, err := debuglog.ParseSession(summary.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", summary.FilePath, err)
	}
	debuglog.FormatSession(os.Stdout, session, ui.NewStyles(os.Stdout), debuglog.FormatOptions{
		Full:          debugLogFull,
		ShowTimestamp: debugLogTime,
	})
	return nil
}
