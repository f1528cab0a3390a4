package worker

import (
	"context"

	"archivist/internal/status"
	"archivist/internal/workflow"
)

// Request is the step-and-item description sent to a worker.
type Request struct {
	RequestID string                    `json:"request_id"`
	RunID     string                    `json:"run_id"`
	Step      workflow.Step             `json:"step"`
	Context   workflow.ExecutionContext `json:"context"`
}

// Transport reaches one remote worker.
type Transport interface {
	Submit(ctx context.Context, req Request) (*status.ItemStatus, error)
	CheckLiveness(ctx context.Context) error
}

// Worker is one member of a worker group.
type Worker struct {
	ID        string
	Group     string
	Address   string
	Transport Transport
}

// Info is the serializable view of a registered worker.
type Info struct {
	ID      string `json:"id"`
	Group   string `json:"group"`
	Address string `json:"address"`
}

func (w *Worker) info() Info {
	return Info{ID: w.ID, Group: w.Group, Address: w.Address}
}
