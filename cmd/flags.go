package cmd

import (
	"github.com/spf13/cobra"
)

// analysisFlags are shared by every command that loads a transcript.
// Each command owns its own instance.
type analysisFlags struct {
	rules      string
	filter     bool
	multiplier bool
	note       string
	model      string
}

// addAnalysisFlags registers --rules, --filter, --multiplier, --note and
// --model on cmd.
func addAnalysisFlags(cmd *cobra.Command, f *analysisFlags) {
	cmd.Flags().StringVar(&f.rules, "rules", "", "YAML rules file marking multiplier/elective/first-fail/expansion courses")
	cmd.Flags().BoolVar(&f.filter, "filter", false, "Weighted filter: drop expansion courses, fold electives into one 10-credit course")
	cmd.Flags().BoolVar(&f.multiplier, "multiplier", false, "Apply the ×1.2 multiplier to marked courses")
	cmd.Flags().StringVar(&f.note, "note", "", "Extra preferences passed to the assistant")
	addModelFlag(cmd, &f.model)
}

// addModelFlag adds the --model/-m flag
func addModelFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "model", "m", "", "Override the configured model")
}
