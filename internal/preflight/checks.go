package preflight

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"archivist/internal/checkpoint"
	"archivist/internal/config"
	"archivist/internal/worker"
	"archivist/internal/workflow"
)

const probeTimeout = 10 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWorkflows parses every definition under dir and verifies that the
// worker groups their steps name are configured.
func CheckWorkflows(cfg *config.Config) Result {
	const name = "Workflows"

	defs, err := workflow.LoadDir(cfg.Paths.WorkflowsDir)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(defs) == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (no definitions)", cfg.Paths.WorkflowsDir)}
	}

	missing := make(map[string]struct{})
	for _, wf := range defs {
		for _, step := range wf.Steps() {
			if _, ok := cfg.WorkerGroup(step.WorkerGroupID()); !ok {
				missing[step.WorkerGroupID()] = struct{}{}
			}
		}
	}
	if len(missing) > 0 {
		groups := make([]string, 0, len(missing))
		for id := range missing {
			groups = append(groups, id)
		}
		sort.Strings(groups)
		return Result{Name: name, Detail: "worker groups not configured: " + strings.Join(groups, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d definition(s) valid", len(defs))}
}

// CheckCheckpointStore opens the configured store and closes it again.
func CheckCheckpointStore(ctx context.Context, cfg *config.Config) Result {
	const name = "Checkpoint store"

	store, err := checkpoint.Open(ctx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	target := checkpoint.Describe(store)
	if err := store.Close(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (close: %v)", target, err)}
	}
	return Result{Name: name, Passed: true, Detail: target}
}

// CheckWorkers probes every worker in registry and reports one result per
// worker.
func CheckWorkers(ctx context.Context, registry *worker.Registry) []Result {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	probes := registry.ProbeAll(probeCtx)
	if len(probes) == 0 {
		return []Result{{Name: "Workers", Detail: "no workers configured"}}
	}
	results := make([]Result, 0, len(probes))
	for _, probe := range probes {
		name := fmt.Sprintf("Worker %s/%s", probe.Group, probe.ID)
		if probe.Alive {
			results = append(results, Result{
				Name:   name,
				Passed: true,
				Detail: fmt.Sprintf("%s (%s)", probe.Address, probe.Latency.Round(time.Millisecond)),
			})
			continue
		}
		results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (%s)", probe.Address, summarizeProbeError(probe.Error))})
	}
	return results
}

func summarizeProbeError(message string) string {
	switch {
	case message == "":
		return "unreachable"
	case strings.Contains(message, context.DeadlineExceeded.Error()):
		return "probe timed out"
	default:
		return message
	}
}
