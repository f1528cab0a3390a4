package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"archivist/internal/api"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Start and purge runs on the daemon",
	}
	runsCmd.AddCommand(newRunsStartCommand(ctx))
	runsCmd.AddCommand(newRunsPurgeCommand(ctx))
	return runsCmd
}

func newRunsStartCommand(ctx *commandContext) *cobra.Command {
	var container string
	var tenant string
	var properties []string

	cmd := &cobra.Command{
		Use:   "start <workflow-id>",
		Short: "Start a workflow run on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProperties(properties)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			runID, err := client.StartRun(cmd.Context(), api.StartRunRequest{
				Workflow:   args[0],
				Container:  container,
				Tenant:     tenant,
				Properties: props,
			})
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.StartRunResponse{RunID: runID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started run %s\n", runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&container, "container", "", "Container (workspace directory) to process")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant identifier bound to the run")
	cmd.Flags().StringArrayVarP(&properties, "property", "p", nil, "Execution property as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

func newRunsPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <run-id>",
		Short: "Forget a finished run and its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			purged, err := client.PurgeRun(cmd.Context(), args[0])
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.PurgeRunResponse{RunID: args[0], Purged: purged})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged run %s\n", args[0])
			return nil
		},
	}
}
