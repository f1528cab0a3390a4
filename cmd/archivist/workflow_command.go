package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/config"
	"archivist/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Workflow definition utilities",
	}
	workflowCmd.AddCommand(newWorkflowValidateCommand(ctx))
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	return workflowCmd
}

func newWorkflowValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate workflow files against the schema and the configured worker groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := 0
			for _, path := range args {
				wf, err := workflow.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintln(out, renderStatusLine(path, "FATAL", err.Error(), colorize))
					continue
				}
				missing := missingGroups(wf, cfg)
				if len(missing) > 0 {
					fmt.Fprintln(out, renderStatusLine(path, "WARNING",
						fmt.Sprintf("%s: worker groups not configured: %s", wf.ID(), strings.Join(missing, ", ")), colorize))
					continue
				}
				fmt.Fprintln(out, renderStatusLine(path, "OK", fmt.Sprintf("%s (%d steps)", wf.ID(), len(wf.Steps())), colorize))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d workflow files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows in the workflows directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defs, err := workflow.LoadDir(cfg.Paths.WorkflowsDir)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(defs))
			for id := range defs {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			if ctx.jsonOutput() {
				list := make([]*workflow.WorkFlow, 0, len(ids))
				for _, id := range ids {
					list = append(list, defs[id])
				}
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintf(out, "No workflows in %s\n", cfg.Paths.WorkflowsDir)
				return nil
			}
			for _, id := range ids {
				renderWorkflow(out, defs[id], cfg)
			}
			return nil
		},
	}
}

func renderWorkflow(out io.Writer, wf *workflow.WorkFlow, cfg *config.Config) {
	rows := make([][]string, 0, len(wf.Steps()))
	for i, step := range wf.Steps() {
		actions := make([]string, 0, len(step.Actions()))
		for _, a := range step.Actions() {
			label := a.Handler
			if !a.Blocking() {
				label += " (non-blocking)"
			}
			actions = append(actions, label)
		}
		_, configured := groupConfigured(cfg, step.WorkerGroupID())
		dist := step.Distribution()
		rows = append(rows, []string{
			strconv.Itoa(i),
			step.Name(),
			step.WorkerGroupID(),
			yesNo(configured),
			strings.TrimSuffix(string(dist.Kind)+":"+dist.Element, ":"),
			strings.Join(actions, ", "),
		})
	}
	title := wf.ID()
	if comment := wf.Comment(); comment != "" {
		title += " - " + comment
	}
	writeTable(out, title, []string{"#", "Step", "Group", "Configured", "Distribution", "Actions"}, rows,
		[]columnAlignment{alignRight})
}

func missingGroups(wf *workflow.WorkFlow, cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	seen := make(map[string]bool)
	var missing []string
	for _, step := range wf.Steps() {
		group := step.WorkerGroupID()
		if seen[group] {
			continue
		}
		seen[group] = true
		if _, ok := groupConfigured(cfg, group); !ok {
			missing = append(missing, group)
		}
	}
	return missing
}

func groupConfigured(cfg *config.Config, id string) (config.WorkerGroup, bool) {
	if cfg == nil {
		return config.WorkerGroup{}, false
	}
	return cfg.WorkerGroup(id)
}
