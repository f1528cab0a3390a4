package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/daemonrun"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/services"
	"archivist/internal/status"
	"archivist/internal/telemetry"
	"archivist/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var container string
	var tenant string
	var properties []string

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml|workflow-id>",
		Short: "Run a workflow in-process against the configured workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			wf, err := resolveWorkflow(args[0], cfg.Paths.WorkflowsDir)
			if err != nil {
				return err
			}
			props, err := parseProperties(properties)
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			provider, err := telemetry.New(cmd.Context(), "archivist", cfg)
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer provider.Shutdown(cmd.Context()) //nolint:errcheck

			stack, err := daemonrun.NewStack(cmd.Context(), cfg, logger, provider.MeterProvider())
			if err != nil {
				return err
			}
			defer stack.Close()

			result, err := stack.Runner.Run(cmd.Context(), wf, pipeline.Request{
				Container:  container,
				Tenant:     tenant,
				Properties: props,
			})
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			renderRunResult(out, result, shouldColorize(out))
			if counters, err := provider.Counters(cmd.Context()); err == nil && len(counters) > 0 {
				rows := make([][]string, 0, len(counters))
				for _, c := range counters {
					rows = append(rows, []string{c.Name, c.Label(), strconv.FormatInt(c.Value, 10)})
				}
				writeTable(out, "Metrics", []string{"Counter", "Attributes", "Value"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight})
			}
			if result.Status == status.Fatal {
				return fmt.Errorf("run %s failed", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&container, "container", "", "Container (workspace directory) to process")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant identifier bound to the run")
	cmd.Flags().StringArrayVarP(&properties, "property", "p", nil, "Execution property as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

// resolveWorkflow loads ref as a file when it exists, otherwise as a
// workflow id from the workflows directory.
func resolveWorkflow(ref, workflowsDir string) (*workflow.WorkFlow, error) {
	ref = strings.TrimSpace(ref)
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return workflow.LoadFile(ref)
	}
	defs, err := workflow.LoadDir(workflowsDir)
	if err != nil {
		return nil, err
	}
	wf, ok := defs[ref]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "cli", "resolve workflow",
			fmt.Sprintf("%q is neither a file nor a workflow in %s", ref, workflowsDir), nil)
	}
	return wf, nil
}

func parseProperties(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	props := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q (want key=value)", value)
		}
		props[key] = val
	}
	return props, nil
}

func renderRunResult(out io.Writer, result *pipeline.Result, colorize bool) {
	fmt.Fprintf(out, "Run %s (%s on %s): %s in %s\n",
		result.RunID, result.WorkflowID, result.Container,
		colorStatus(result.Status.String(), colorize), result.Duration.Round(time.Millisecond))
	if result.Halted {
		fmt.Fprintln(out, "Run halted after a fatal step")
	}

	rows := make([][]string, 0, len(result.Steps))
	for _, step := range result.Steps {
		o := step.Outcome
		rows = append(rows, []string{
			step.Name,
			colorStatus(o.Code.String(), colorize),
			strconv.Itoa(o.Count(status.OK)),
			strconv.Itoa(o.Count(status.Warning)),
			strconv.Itoa(o.Count(status.KO)),
			strconv.Itoa(o.Count(status.Fatal)),
			o.MessageID,
		})
	}
	writeTable(out, "", []string{"Step", "Status", "OK", "Warning", "KO", "Fatal", "Message"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft})
}
