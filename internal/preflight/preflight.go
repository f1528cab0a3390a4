package preflight

import (
	"context"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/worker"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every readiness check for cfg. registry may be nil, in
// which case one is built from the configured worker groups.
func RunAll(ctx context.Context, cfg *config.Config, registry *worker.Registry) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir),
		CheckWorkflows(cfg),
		CheckCheckpointStore(ctx, cfg),
	}

	if registry == nil {
		built, err := worker.NewRegistryFromConfig(cfg, logging.NewNop())
		if err != nil {
			return append(results, Result{Name: "Workers", Detail: err.Error()})
		}
		registry = built
	}
	return append(results, CheckWorkers(ctx, registry)...)
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
