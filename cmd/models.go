package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/config"
	"github.com/samsaffron/grade-llm/internal/llm"
	"github.com/samsaffron/grade-llm/internal/ui"
)

var (
	modelsJSON    bool
	modelsSelect  bool
	modelsRefresh bool
)

var modelsCmd = &cobra.Command{
	Use:   "models [filter]",
	Short: "List chat models offered by the endpoint",
	Long: `List the chat models offered by the configured endpoint. The list is
cached for 30 minutes; --refresh fetches it again. An optional filter
fuzzy-matches model IDs.

With --select, pick a model interactively and save it as llm.model.

Examples:
  grade-llm models
  grade-llm models qwen
  grade-llm models --select
  grade-llm models --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	modelsCmd.Flags().BoolVarP(&modelsSelect, "select", "s", false, "Pick a model and save it to the config file")
	modelsCmd.Flags().BoolVar(&modelsRefresh, "refresh", false, "Bypass the cached model list")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	all, err := modelIDs(ctx, provider, cfg.LLM.BaseURL, modelsRefresh)
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return &userError{msg: "无法连接到模型服务", hint: "请检查 llm.base_url: " + cfg.LLM.BaseURL, err: err}
		}
		return askError(err)
	}

	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}
	ids := ui.FilterModels(all, filter)
	if len(ids) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	if modelsSelect {
		return selectModel(ids, cfg)
	}

	if modelsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ids)
	}

	styles := ui.NewStyles(os.Stdout)
	fmt.Printf("Available models from %s:\n\n", cfg.LLM.BaseURL)
	preferred := llm.PreferredModel(ids, cfg.LLM.Model)
	for _, id := range ids {
		switch {
		case id == cfg.LLM.Model:
			fmt.Printf("  %s %s\n", styles.Highlighted.Render(id), styles.Muted.Render("(current)"))
		case cfg.LLM.Model == "" && id == preferred:
			fmt.Printf("  %s %s\n", id, styles.Muted.Render("(default)"))
		default:
			fmt.Printf("  %s\n", id)
		}
	}
	fmt.Printf("\n%d model(s)\n", len(ids))
	return nil
}

func selectModel(ids []string, cfg *config.Config) error {
	chosen, err := ui.PickModel(ids, llm.PreferredModel(ids, cfg.LLM.Model))
	if err != nil {
		return err
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if err := config.SetValue(path, "llm.model", chosen); err != nil {
		return err
	}
	fmt.Println(ui.DefaultStyles().FormatResult(true, fmt.Sprintf("llm.model = %s (%s)", chosen, path)))
	return nil
}
