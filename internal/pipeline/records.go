package pipeline

import (
	"sort"
	"time"

	"archivist/internal/status"
	"archivist/internal/workflow"
)

// Record is the runner's bookkeeping for one run.
type Record struct {
	RunID      string      `json:"run_id"`
	WorkflowID string      `json:"workflow_id"`
	Container  string      `json:"container"`
	Tenant     string      `json:"tenant,omitempty"`
	Running    bool        `json:"running"`
	Status     status.Code `json:"status"`
	Halted     bool        `json:"halted"`
	LogPath    string      `json:"log_path,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
	Result     *Result     `json:"result,omitempty"`
}

func (r *Runner) begin(runID string, wf *workflow.WorkFlow, req Request) {
	r.tracker.InitOrderedWorkflow(runID, wf, req.Container)
	r.mu.Lock()
	r.runs[runID] = &Record{
		RunID:      runID,
		WorkflowID: wf.ID(),
		Container:  req.Container,
		Tenant:     req.Tenant,
		Running:    true,
		Status:     status.Started,
		StartedAt:  r.now().UTC(),
	}
	r.mu.Unlock()
}

func (r *Runner) complete(runID string, result *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.runs[runID]
	if !ok {
		return
	}
	rec.Running = false
	rec.FinishedAt = r.now().UTC()
	if result != nil {
		rec.Status = result.Status
		rec.Halted = result.Halted
		rec.Result = result
	}
}

func (r *Runner) setLogPath(runID, path string) {
	r.mu.Lock()
	if rec, ok := r.runs[runID]; ok {
		rec.LogPath = path
	}
	r.mu.Unlock()
}

// Runs lists known runs, most recent first.
func (r *Runner) Runs() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, *rec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Lookup returns the record for runID.
func (r *Runner) Lookup(runID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.runs[runID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Forget drops a finished run from the runner and the tracker. Running runs
// are kept; the second return value reports whether the run was known.
func (r *Runner) Forget(runID string) (removed bool, known bool) {
	r.mu.Lock()
	rec, ok := r.runs[runID]
	if ok && rec.Running {
		r.mu.Unlock()
		return false, true
	}
	delete(r.runs, runID)
	r.mu.Unlock()
	purged := r.tracker.Purge(runID)
	return ok || purged, ok || purged
}
