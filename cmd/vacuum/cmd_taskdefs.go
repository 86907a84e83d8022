package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/vacuum/internal/config"
)

var (
	taskdefsKeep       int
	taskdefsKeepRecent int
	taskdefsWhitelist  []string
)

var taskdefsCmd = &cobra.Command{
	Use:     "taskdefs",
	Aliases: []string{"task-definitions"},
	Short:   "Deregister unused ECS task definition revisions",
	Long: `Deregister ACTIVE task definition revisions that no running task or
service deployment references.

Every unreferenced revision is deregistered, including the newest one,
unless it falls within the newest --keep-recent revisions (default 0).
Families matching --whitelist ignore references instead: they keep their
newest --keep revisions and lose the rest, even ones still in use.`,
	Example: `  vacuum taskdefs                                  # Plan only (dry run)
  vacuum taskdefs --dry-run=false --region us-west-2
  vacuum taskdefs --keep 10 --whitelist jenkins-slave
  vacuum taskdefs --include api- --exclude api-canary`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("keep") {
			cfg.TaskDefinitions.KeepCount = taskdefsKeep
		}
		if cmd.Flags().Changed("keep-recent") {
			cfg.TaskDefinitions.KeepRecent = taskdefsKeepRecent
		}
		if cmd.Flags().Changed("whitelist") {
			cfg.TaskDefinitions.Whitelist = taskdefsWhitelist
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSweeps(cmd, config.SweepTaskDefinitions)
	},
}

func init() {
	rootCmd.AddCommand(taskdefsCmd)

	taskdefsCmd.Flags().IntVar(&taskdefsKeep, "keep", 5, "Newest revisions kept per whitelisted family")
	taskdefsCmd.Flags().IntVar(&taskdefsKeepRecent, "keep-recent", 0, "Newest revisions kept even when unreferenced")
	taskdefsCmd.Flags().StringSliceVar(&taskdefsWhitelist, "whitelist", nil, "Family substrings that keep only the newest revisions")
}
