package progress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"archivist/internal/services"
	"archivist/internal/status"
	"archivist/internal/workflow"
)

var (
	ErrProcessNotFound = fmt.Errorf("process %w", services.ErrNotFound)
	ErrStepNotFound    = fmt.Errorf("step %w", services.ErrNotFound)
)

// ProcessStep is the live progress of one step of one run.
type ProcessStep struct {
	ID               string        `json:"id"`
	Position         int           `json:"position"`
	Step             workflow.Step `json:"step"`
	ElementToProcess int64         `json:"element_to_process"`
	ElementProcessed int64         `json:"element_processed"`
	Status           status.Code   `json:"status"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type process struct {
	mu         sync.Mutex
	workflowID string
	container  string
	createdAt  time.Time
	steps      map[string]*ProcessStep
	order      []string
}

// Tracker maps running pipeline instances to the live progress of their
// steps. It is safe for concurrent use; updates to one run never contend with
// updates to another.
type Tracker struct {
	mu        sync.RWMutex
	processes map[string]*process
	now       func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{processes: make(map[string]*process), now: time.Now}
}

// StepKey derives the unique step identifier for a step at position in wf.
func StepKey(containerName, workflowID string, position int, stepName string) string {
	return fmt.Sprintf("%s_%s_%d_%s", containerName, workflowID, position, stepName)
}

// InitOrderedWorkflow registers processID with one entry per step of wf and
// returns a snapshot keyed by unique step id. Re-initializing an existing
// process overwrites it.
func (t *Tracker) InitOrderedWorkflow(processID string, wf *workflow.WorkFlow, containerName string) map[string]ProcessStep {
	now := t.now().UTC()
	p := &process{
		workflowID: wf.ID(),
		container:  containerName,
		createdAt:  now,
		steps:      make(map[string]*ProcessStep),
	}
	for i, step := range wf.Steps() {
		id := StepKey(containerName, wf.ID(), i, step.Name())
		p.steps[id] = &ProcessStep{ID: id, Position: i, Step: step, Status: status.Started, UpdatedAt: now}
		p.order = append(p.order, id)
	}

	t.mu.Lock()
	t.processes[processID] = p
	t.mu.Unlock()

	return p.snapshot()
}

// UpdateStep increments the processed counter by one when processed is true,
// otherwise sets the expected total to elementToProcess.
func (t *Tracker) UpdateStep(processID, stepID string, elementToProcess int64, processed bool) error {
	return t.withStep(processID, stepID, func(step *ProcessStep) {
		if processed {
			step.ElementProcessed++
		} else {
			step.ElementToProcess = elementToProcess
		}
	})
}

// UpdateStepStatus overwrites the step's current status.
func (t *Tracker) UpdateStepStatus(processID, stepID string, code status.Code) error {
	return t.withStep(processID, stepID, func(step *ProcessStep) {
		step.Status = code
	})
}

// WorkflowStatus returns a snapshot of every step of processID.
func (t *Tracker) WorkflowStatus(processID string) (map[string]ProcessStep, error) {
	p, err := t.lookup(processID)
	if err != nil {
		return nil, err
	}
	return p.snapshot(), nil
}

// OrderedSteps returns the steps of processID in workflow order.
func (t *Tracker) OrderedSteps(processID string) ([]ProcessStep, error) {
	p, err := t.lookup(processID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ProcessStep, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.steps[id])
	}
	return out, nil
}

// Purge forgets processID. It reports whether the process was known.
func (t *Tracker) Purge(processID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.processes[processID]
	delete(t.processes, processID)
	return ok
}

// Summary describes one tracked process.
type Summary struct {
	ProcessID  string      `json:"process_id"`
	WorkflowID string      `json:"workflow_id"`
	Container  string      `json:"container"`
	CreatedAt  time.Time   `json:"created_at"`
	Status     status.Code `json:"status"`
	Steps      int         `json:"steps"`
}

// Processes lists tracked processes, oldest first. Status is the most severe
// step status.
func (t *Tracker) Processes() []Summary {
	t.mu.RLock()
	ids := make([]string, 0, len(t.processes))
	procs := make([]*process, 0, len(t.processes))
	for id, p := range t.processes {
		ids = append(ids, id)
		procs = append(procs, p)
	}
	t.mu.RUnlock()

	out := make([]Summary, 0, len(ids))
	for i, p := range procs {
		p.mu.Lock()
		worst := status.Started
		for _, step := range p.steps {
			worst = status.Max(worst, step.Status)
		}
		out = append(out, Summary{
			ProcessID:  ids[i],
			WorkflowID: p.workflowID,
			Container:  p.container,
			CreatedAt:  p.createdAt,
			Status:     worst,
			Steps:      len(p.order),
		})
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ProcessID < out[j].ProcessID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (t *Tracker) lookup(processID string) (*process, error) {
	t.mu.RLock()
	p, ok := t.processes[processID]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, processID)
	}
	return p, nil
}

func (t *Tracker) withStep(processID, stepID string, fn func(*ProcessStep)) error {
	p, err := t.lookup(processID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	step, ok := p.steps[stepID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}
	fn(step)
	step.UpdatedAt = t.now().UTC()
	return nil
}

func (p *process) snapshot() map[string]ProcessStep {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]ProcessStep, len(p.steps))
	for id, step := range p.steps {
		out[id] = *step
	}
	return out
}

// IsNotFound reports whether err is a tracker lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProcessNotFound) || errors.Is(err, ErrStepNotFound)
}
