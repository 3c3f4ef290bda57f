package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/tools"
	"github.com/samsaffron/grade-llm/internal/ui"
)

var toolsRunFlags analysisFlags

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List or run the transcript tools",
	Long: `The assistant answers by calling these tools. They can also be run
directly to check what the model sees.

Examples:
  grade-llm tools list
  grade-llm tools run grades.xlsx get_total_credits '{"excludeElective": true}'
  grade-llm tools run grades.xlsx search_courses '{"keyword": "数学", "limit": 3}'`,
	RunE: runToolsList,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tools and their parameters",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsRunCmd = &cobra.Command{
	Use:   "run <transcript.xlsx> <tool> [arguments-json]",
	Short: "Run a tool against a transcript",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runToolsRun,
}

func init() {
	addAnalysisFlags(toolsRunCmd, &toolsRunFlags)
	toolsCmd.AddCommand(toolsListCmd, toolsRunCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	fmt.Print(renderToolList(tools.NewGradeRegistry(nil).Descriptors(), ui.NewStyles(os.Stdout)))
	return nil
}

func renderToolList(descs []tools.Descriptor, styles *ui.Styles) string {
	var b strings.Builder
	for _, d := range descs {
		b.WriteString(styles.Highlighted.Render(d.Name))
		b.WriteByte('\n')
		b.WriteString("  " + d.Description + "\n")
		for _, p := range d.Params {
			b.WriteString(styles.Muted.Render(fmt.Sprintf("    %s: %s", p.Name, p.Doc)))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func runToolsRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cmd, args[0], &toolsRunFlags, cfg)
	if err != nil {
		return err
	}
	registry := tools.NewGradeRegistry(snap)
	if _, ok := registry.Get(args[1]); !ok {
		return fmt.Errorf("unknown tool: %s (see 'grade-llm tools list')", args[1])
	}

	var raw json.RawMessage
	if len(args) == 3 {
		raw = json.RawMessage(args[2])
		if !json.Valid(raw) {
			return fmt.Errorf("arguments must be a JSON object: %s", args[2])
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(registry.Dispatch(args[1], raw))
}
