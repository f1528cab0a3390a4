package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/api"
)

const followWait = 5 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Display the log of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			runID := args[0]
			out := cmd.OutOrStdout()

			query := api.RunLogQuery{Offset: -1, Limit: lines}
			if lines <= 0 {
				query = api.RunLogQuery{Offset: 0}
			}
			printed := false
			for {
				resp, err := client.RunLog(cmd.Context(), runID, query)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return wrapDaemonError(err, ctx.configValue())
				}
				for _, line := range resp.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				// A finished run has closed its log, so nothing more will arrive.
				if !runActive(cmd, client, runID) {
					return nil
				}
				query = api.RunLogQuery{Offset: resp.Offset, Wait: followWait}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output until the run finishes")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	return cmd
}

func runActive(cmd *cobra.Command, client *api.Client, runID string) bool {
	run, err := client.Run(cmd.Context(), runID)
	return err == nil && run.Running
}
