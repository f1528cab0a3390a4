package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/checkpoint"
	"archivist/internal/services"
	"archivist/internal/status"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear stored distributor checkpoints",
		Long: "A checkpoint is keyed by container and step id. Step ids have the form\n" +
			"<container>_<workflow>_<position>_<step name>, as shown by `archivist status <run-id>`.",
	}
	checkpointCmd.AddCommand(newCheckpointShowCommand(ctx))
	checkpointCmd.AddCommand(newCheckpointClearCommand(ctx))
	return checkpointCmd
}

type checkpointFlags struct {
	container string
	step      string
}

func (f *checkpointFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.container, "container", "", "Container the checkpoint belongs to")
	cmd.Flags().StringVar(&f.step, "step", "", "Unique step id")
	_ = cmd.MarkFlagRequired("container")
	_ = cmd.MarkFlagRequired("step")
}

func (f *checkpointFlags) validate() error {
	if strings.TrimSpace(f.container) == "" || strings.TrimSpace(f.step) == "" {
		return services.Wrap(services.ErrValidation, "cli", "checkpoint", "container and step are required", nil)
	}
	return nil
}

func (c *commandContext) withCheckpointStore(cmd *cobra.Command, fn func(checkpoint.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := checkpoint.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newCheckpointShowCommand(ctx *commandContext) *cobra.Command {
	var flags checkpointFlags
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the checkpoint of one step",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			return ctx.withCheckpointStore(cmd, func(store checkpoint.Store) error {
				idx, ok, err := store.Read(cmd.Context(), flags.container, flags.step)
				if err != nil {
					return err
				}
				if !ok {
					return services.Wrap(services.ErrNotFound, "cli", "checkpoint show",
						fmt.Sprintf("no checkpoint for %s / %s", flags.container, flags.step), nil)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, idx)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				code := "STARTED"
				var counts [][]string
				if idx.Status != nil {
					code = idx.Status.Code.String()
					for _, c := range status.Codes() {
						counts = append(counts, []string{colorStatus(c.String(), colorize), strconv.Itoa(idx.Status.Count(c))})
					}
				}
				rows := [][]string{
					{"Run", idx.RunID},
					{"Step", idx.StepID},
					{"Offset", strconv.Itoa(idx.Offset)},
					{"Level", strconv.Itoa(idx.Level)},
					{"Status", colorStatus(code, colorize)},
					{"Updated", idx.UpdatedAt.Format("2006-01-02 15:04:05 MST")},
				}
				writeTable(out, "Checkpoint", []string{"Field", "Value"}, rows, nil)
				if len(counts) > 0 {
					writeTable(out, "Aggregate", []string{"Status", "Items"}, counts,
						[]columnAlignment{alignLeft, alignRight})
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newCheckpointClearCommand(ctx *commandContext) *cobra.Command {
	var flags checkpointFlags
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint of one step so the next run starts from the beginning",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			return ctx.withCheckpointStore(cmd, func(store checkpoint.Store) error {
				if err := store.Delete(cmd.Context(), flags.container, flags.step); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared checkpoint %s / %s\n", flags.container, flags.step)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}
