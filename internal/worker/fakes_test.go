package worker

import (
	"context"
	"sync"

	"archivist/internal/status"
)

type fakeTransport struct {
	mu       sync.Mutex
	requests []Request
	submit   func(Request) (*status.ItemStatus, error)
	alive    func() error
}

func (f *fakeTransport) Submit(_ context.Context, req Request) (*status.ItemStatus, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(req)
	}
	return status.Outcome(req.Context.ObjectName, status.OK, ""), nil
}

func (f *fakeTransport) CheckLiveness(context.Context) error {
	if f.alive != nil {
		return f.alive()
	}
	return nil
}

type funcTask struct {
	run func(ctx context.Context, w *Worker) *status.ItemStatus
}

func (t funcTask) Execute(ctx context.Context, w *Worker) *status.ItemStatus {
	return t.run(ctx, w)
}

func (t funcTask) Abandon(err error) *status.ItemStatus {
	return status.FatalOutcome("task", err.Error())
}
