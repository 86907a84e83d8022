package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/vacuum/internal/config"
)

var inactiveKeepRecent int

var inactiveCmd = &cobra.Command{
	Use:   "inactive",
	Short: "Delete INACTIVE ECS task definition revisions",
	Long: `Permanently delete INACTIVE task definition revisions that nothing
references any more. Revisions still used by a running task or a
draining deployment are kept, as are the newest --keep-recent revisions
of each family (default 0). The whitelist does not apply.`,
	Example: `  vacuum inactive
  vacuum inactive --dry-run=false --keep-recent 2`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("keep-recent") {
			cfg.TaskDefinitions.KeepRecent = inactiveKeepRecent
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSweeps(cmd, config.SweepInactive)
	},
}

func init() {
	rootCmd.AddCommand(inactiveCmd)

	inactiveCmd.Flags().IntVar(&inactiveKeepRecent, "keep-recent", 0, "Newest revisions kept even when unreferenced")
}
