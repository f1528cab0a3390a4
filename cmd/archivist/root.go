package main

import (
	"github.com/spf13/cobra"
)

const (
	groupRuns       = "runs"
	groupOperations = "operations"
	groupSetup      = "setup"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "archivist",
		Short:         "Distribute workflow steps across worker groups and follow their progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupRuns, Title: "Runs:"},
		&cobra.Group{ID: groupOperations, Title: "Operations:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	addGrouped(rootCmd, groupRuns,
		newRunCommand(ctx),
		newRunsCommand(ctx),
		newStatusCommand(ctx),
		newLogsCommand(ctx),
		newCheckpointCommand(ctx),
	)
	addGrouped(rootCmd, groupOperations,
		newDaemonCommand(ctx),
		newWorkerCommand(ctx),
		newWorkersCommand(ctx),
		newDoctorCommand(ctx),
		newNotifyCommand(ctx),
	)
	addGrouped(rootCmd, groupSetup,
		newWorkflowCommand(ctx),
		newConfigCommand(ctx),
	)
	return rootCmd
}

func addGrouped(root *cobra.Command, group string, cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.GroupID = group
		root.AddCommand(cmd)
	}
}
