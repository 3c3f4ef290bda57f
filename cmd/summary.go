package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/grade-llm/internal/grade"
	"github.com/samsaffron/grade-llm/internal/ui"
)

var (
	summaryFlags analysisFlags
	summaryJSON  bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary <transcript.xlsx>",
	Short: "Show transcript statistics without asking the model",
	Long: `Print the weighted average, GPA, credits, score distribution and per-term
breakdown under the current rules and toggles. No API key is needed.

Examples:
  grade-llm summary grades.xlsx
  grade-llm summary grades.xlsx --filter --multiplier
  grade-llm summary grades.xlsx --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	addAnalysisFlags(summaryCmd, &summaryFlags)
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(summaryCmd)
}

type summaryOutput struct {
	Options      grade.Options     `json:"options"`
	Courses      int               `json:"courses"`
	Stats        grade.Stats       `json:"stats"`
	Distribution []grade.Bucket    `json:"distribution"`
	Trend        []grade.TermPoint `json:"trend"`
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cmd, args[0], &summaryFlags, cfg)
	if err != nil {
		return err
	}

	if summaryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(summaryOutput{
			Options:      snap.Options,
			Courses:      len(snap.Analysis),
			Stats:        snap.Stats,
			Distribution: snap.Distribution,
			Trend:        snap.Trend,
		})
	}

	fmt.Print(renderSummary(snap, ui.NewStyles(os.Stdout)))
	return nil
}

func renderSummary(snap *grade.Snapshot, styles *ui.Styles) string {
	var b strings.Builder
	st := snap.Stats

	b.WriteString(styles.Title.Render("成绩概览"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  加权均分  %s\n", styles.Highlighted.Render(fmt.Sprintf("%.2f", st.AvgScore)))
	fmt.Fprintf(&b, "  加权绩点  %s\n", styles.Highlighted.Render(fmt.Sprintf("%.2f", st.AvgGPA)))
	fmt.Fprintf(&b, "  课程数    %d\n", len(snap.Analysis))
	fmt.Fprintf(&b, "  总学分    %.1f\n", st.TotalCredits)
	fmt.Fprintf(&b, "  计权学分  %.1f\n", st.WeightedCredits)
	fmt.Fprintf(&b, "  筛选      %s\n", styles.FormatEnabled(snap.Options.UseFilter))
	fmt.Fprintf(&b, "  倍率      %s\n", styles.FormatEnabled(snap.Options.UseMultiplier))

	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("分数分布"))
	b.WriteString("\n")
	dist := &ui.Table{Headers: []string{"分段", "课程数"}}
	for _, bucket := range snap.Distribution {
		dist.AddRow(bucket.Label, fmt.Sprintf("%d", bucket.Count))
	}
	b.WriteString(dist.Render(styles))

	terms := grade.SummarizeTerms(snap.Analysis)
	if len(terms) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.Subtitle.Render("学期"))
		b.WriteString("\n")
		t := &ui.Table{Headers: []string{"学期", "学分", "均分"}}
		for _, term := range terms {
			avg := "-"
			if term.Avg != nil {
				avg = fmt.Sprintf("%.2f", *term.Avg)
			}
			t.AddRow(term.Label, fmt.Sprintf("%.1f", term.Credits), avg)
		}
		b.WriteString(t.Render(styles))
	}
	return b.String()
}
