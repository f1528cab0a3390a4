package api

import (
	"time"

	"archivist/internal/pipeline"
	"archivist/internal/progress"
	"archivist/internal/worker"
)

// FromRecord converts a runner record to its API representation.
func FromRecord(rec pipeline.Record) Run {
	dto := Run{
		RunID:      rec.RunID,
		WorkflowID: rec.WorkflowID,
		Container:  rec.Container,
		Tenant:     rec.Tenant,
		Running:    rec.Running,
		Status:     rec.Status.String(),
		Halted:     rec.Halted,
		LogPath:    rec.LogPath,
		StartedAt:  formatTime(rec.StartedAt),
		FinishedAt: formatTime(rec.FinishedAt),
	}
	return dto
}

// FromProcessSteps converts ordered tracker entries.
func FromProcessSteps(steps []progress.ProcessStep) []Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		out = append(out, FromProcessStep(step))
	}
	return out
}

// FromProcessStep converts one tracker entry.
func FromProcessStep(step progress.ProcessStep) Step {
	dist := step.Step.Distribution()
	label := string(dist.Kind)
	if dist.Element != "" {
		label += ":" + dist.Element
	}
	return Step{
		ID:               step.ID,
		Position:         step.Position,
		Name:             step.Step.Name(),
		WorkerGroup:      step.Step.WorkerGroupID(),
		Distribution:     label,
		ElementToProcess: step.ElementToProcess,
		ElementProcessed: step.ElementProcessed,
		Percent:          percent(step.ElementProcessed, step.ElementToProcess),
		Status:           step.Status.String(),
		UpdatedAt:        formatTime(step.UpdatedAt),
	}
}

// FromWorkerInfo converts registry entries that were not probed.
func FromWorkerInfo(infos []worker.Info) []Worker {
	out := make([]Worker, 0, len(infos))
	for _, info := range infos {
		out = append(out, Worker{ID: info.ID, Group: info.Group, Address: info.Address})
	}
	return out
}

// FromProbeResults converts liveness probe results.
func FromProbeResults(results []worker.ProbeResult) []Worker {
	out := make([]Worker, 0, len(results))
	for _, res := range results {
		out = append(out, Worker{
			ID:        res.ID,
			Group:     res.Group,
			Address:   res.Address,
			Probed:    true,
			Alive:     res.Alive,
			LatencyMS: res.Latency.Milliseconds(),
			Error:     res.Error,
		})
	}
	return out
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
