package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	LockFilePath string `json:"lockFilePath"`
	APIBind      string `json:"apiBind"`
	Checkpoint   string `json:"checkpoint"`
	ActiveRuns   int    `json:"activeRuns"`
	TotalRuns    int    `json:"totalRuns"`
	Workers      int    `json:"workers"`
	Workflows    int    `json:"workflows"`
}

// Step is the live progress of one workflow step.
type Step struct {
	ID               string  `json:"id"`
	Position         int     `json:"position"`
	Name             string  `json:"name"`
	WorkerGroup      string  `json:"workerGroup"`
	Distribution     string  `json:"distribution"`
	ElementToProcess int64   `json:"elementToProcess"`
	ElementProcessed int64   `json:"elementProcessed"`
	Percent          float64 `json:"percent"`
	Status           string  `json:"status"`
	UpdatedAt        string  `json:"updatedAt,omitempty"`
}

// Run describes one pipeline run.
type Run struct {
	RunID      string `json:"runId"`
	WorkflowID string `json:"workflowId"`
	Container  string `json:"container"`
	Tenant     string `json:"tenant,omitempty"`
	Running    bool   `json:"running"`
	Status     string `json:"status"`
	Halted     bool   `json:"halted"`
	LogPath    string `json:"logPath,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	Steps      []Step `json:"steps,omitempty"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// StartRunRequest asks the daemon to start a workflow run. Workflow names a
// definition loaded from the workflows directory.
type StartRunRequest struct {
	Workflow   string            `json:"workflow"`
	Container  string            `json:"container"`
	Tenant     string            `json:"tenant,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// StartRunResponse returns the id of a started run.
type StartRunResponse struct {
	RunID string `json:"runId"`
}

// PurgeRunResponse reports whether a run was purged.
type PurgeRunResponse struct {
	RunID  string `json:"runId"`
	Purged bool   `json:"purged"`
}

// RunLogResponse carries lines tailed from a run log.
type RunLogResponse struct {
	RunID  string   `json:"runId"`
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// Worker describes a registered worker.
type Worker struct {
	ID        string `json:"id"`
	Group     string `json:"group"`
	Address   string `json:"address"`
	Probed    bool   `json:"probed"`
	Alive     bool   `json:"alive"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WorkersResponse wraps the worker registry view.
type WorkersResponse struct {
	Workers []Worker `json:"workers"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
