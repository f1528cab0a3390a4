package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"archivist/internal/api"
	"archivist/internal/logging"
	"archivist/internal/worker"
)

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	var probe bool
	var local bool

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List registered workers and optionally probe their liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			var workers []api.Worker
			if local {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				registry, err := worker.NewRegistryFromConfig(cfg, logging.NewNop())
				if err != nil {
					return err
				}
				if probe {
					workers = api.FromProbeResults(registry.ProbeAll(cmd.Context()))
				} else {
					workers = api.FromWorkerInfo(registry.Snapshot())
				}
			} else {
				client, err := ctx.apiClient()
				if err != nil {
					return err
				}
				workers, err = client.Workers(cmd.Context(), probe)
				if err != nil {
					return wrapDaemonError(err, ctx.configValue())
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, api.WorkersResponse{Workers: workers})
			}
			out := cmd.OutOrStdout()
			renderWorkers(out, workers, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Check each worker's health endpoint")
	cmd.Flags().BoolVar(&local, "local", false, "Read workers from the configuration instead of the daemon")
	return cmd
}

func renderWorkers(out io.Writer, workers []api.Worker, colorize bool) {
	if len(workers) == 0 {
		fmt.Fprintln(out, "No workers configured")
		return
	}
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		alive := "-"
		latency := "-"
		if w.Probed {
			state := "FATAL"
			if w.Alive {
				state = "OK"
			}
			alive = colorStatus(state, colorize)
			latency = strconv.FormatInt(w.LatencyMS, 10) + " ms"
		}
		rows = append(rows, []string{w.Group, w.ID, w.Address, alive, latency, w.Error})
	}
	writeTable(out, "Workers", []string{"Group", "Worker", "Address", "Alive", "Latency", "Error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft})
}
