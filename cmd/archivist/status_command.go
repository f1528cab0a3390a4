package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"archivist/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show daemon status, or the step progress of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if len(args) == 1 {
				run, err := client.Run(cmd.Context(), args[0])
				if err != nil {
					return wrapDaemonError(err, ctx.configValue())
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, run)
				}
				renderRun(out, run, colorize)
				return nil
			}

			daemonStatus, err := client.Status(cmd.Context())
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			runs, err := client.Runs(cmd.Context())
			if err != nil {
				return wrapDaemonError(err, ctx.configValue())
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, struct {
					Daemon *api.DaemonStatus `json:"daemon"`
					Runs   []api.Run         `json:"runs"`
				}{daemonStatus, runs})
			}
			renderDaemonStatus(out, daemonStatus, colorize)
			fmt.Fprintln(out)
			renderRunList(out, runs, colorize)
			return nil
		},
	}
}

func renderDaemonStatus(out io.Writer, s *api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	state := "KO"
	if s.Running {
		state = "OK"
	}
	fmt.Fprintln(out, renderStatusLine("Running", state, fmt.Sprintf("pid %d", s.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("API", infoStatus, s.APIBind, colorize))
	fmt.Fprintln(out, renderStatusLine("Checkpoints", infoStatus, s.Checkpoint, colorize))
	fmt.Fprintln(out, renderStatusLine("Workers", infoStatus, strconv.Itoa(s.Workers), colorize))
	fmt.Fprintln(out, renderStatusLine("Workflows", infoStatus, strconv.Itoa(s.Workflows), colorize))
	fmt.Fprintln(out, renderStatusLine("Runs", infoStatus, fmt.Sprintf("%d active, %d total", s.ActiveRuns, s.TotalRuns), colorize))
}

func renderRunList(out io.Writer, runs []api.Run, colorize bool) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.RunID,
			run.WorkflowID,
			run.Container,
			colorStatus(run.Status, colorize),
			yesNo(run.Running),
			run.StartedAt,
		})
	}
	writeTable(out, "Runs", []string{"Run", "Workflow", "Container", "Status", "Running", "Started"}, rows, nil)
}

func renderRun(out io.Writer, run *api.Run, colorize bool) {
	fmt.Fprintf(out, "Run %s (%s on %s): %s\n", run.RunID, run.WorkflowID, run.Container, colorStatus(run.Status, colorize))
	if run.Halted {
		fmt.Fprintln(out, "Run halted after a fatal step")
	}
	if run.LogPath != "" {
		fmt.Fprintf(out, "Log: %s\n", run.LogPath)
	}
	rows := make([][]string, 0, len(run.Steps))
	for _, step := range run.Steps {
		rows = append(rows, []string{
			strconv.Itoa(step.Position),
			step.Name,
			step.WorkerGroup,
			step.Distribution,
			fmt.Sprintf("%d/%d", step.ElementProcessed, step.ElementToProcess),
			fmt.Sprintf("%.1f%%", step.Percent),
			colorStatus(step.Status, colorize),
		})
	}
	writeTable(out, "", []string{"#", "Step", "Group", "Distribution", "Items", "Progress", "Status"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft})
}
