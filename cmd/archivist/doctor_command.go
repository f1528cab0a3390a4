package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"archivist/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, workflows, the checkpoint store, and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			results := preflight.RunAll(cmd.Context(), cfg, nil)
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Readiness", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, result := range results {
					state := "OK"
					if !result.Passed {
						state = "KO"
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, state, result.Detail, colorize))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}
