package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/vacuum/internal/config"
)

var functionsKeep int

var functionsCmd = &cobra.Command{
	Use:     "functions",
	Aliases: []string{"lambda"},
	Short:   "Delete unaliased Lambda function versions",
	Long: `Delete published Lambda function versions that no alias routes to,
including weighted routing targets. The newest --keep unaliased versions
and $LATEST are always kept.`,
	Example: `  vacuum functions
  vacuum functions --keep 5 --dry-run=false`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("keep") {
			cfg.Functions.KeepCount = functionsKeep
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSweeps(cmd, config.SweepFunctions)
	},
}

func init() {
	rootCmd.AddCommand(functionsCmd)

	functionsCmd.Flags().IntVar(&functionsKeep, "keep", 3, "Newest unaliased versions kept per function")
}
