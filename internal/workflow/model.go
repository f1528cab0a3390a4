package workflow

import "strings"

// Kind selects how a step's work items are enumerated.
type Kind string

const (
	KindSingle Kind = "SINGLE"
	KindList   Kind = "LIST"
)

// ElementUnits is the reserved LIST element that selects hierarchical,
// level-ordered distribution.
const ElementUnits = "Units"

// Behavior controls whether a failing action stops the remaining actions for
// an item.
type Behavior string

const (
	BehaviorBlocking    Behavior = "BLOCKING"
	BehaviorNonBlocking Behavior = "NOBLOCKING"
)

// Distribution describes how a step enumerates its items.
type Distribution struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Element string `json:"element,omitempty" yaml:"element,omitempty"`
}

// Hierarchical reports whether the distribution walks the unit level index.
func (d Distribution) Hierarchical() bool {
	return d.Kind == KindList && d.Element == ElementUnits
}

// Action is applied by a worker to each item of a step.
type Action struct {
	Handler  string   `json:"handler" yaml:"handler"`
	Behavior Behavior `json:"behavior,omitempty" yaml:"behavior,omitempty"`
}

// Blocking reports whether a KO or FATAL result stops later actions.
func (a Action) Blocking() bool {
	return a.Behavior == "" || a.Behavior == BehaviorBlocking
}

// Step is one stage of a workflow. Values are immutable once built.
type Step struct {
	name          string
	workerGroupID string
	distribution  Distribution
	actions       []Action
}

// NewStep builds a step. The actions slice is copied.
func NewStep(name, workerGroupID string, distribution Distribution, actions ...Action) Step {
	return Step{
		name:          strings.TrimSpace(name),
		workerGroupID: strings.TrimSpace(workerGroupID),
		distribution:  distribution,
		actions:       append([]Action(nil), actions...),
	}
}

func (s Step) Name() string               { return s.name }
func (s Step) WorkerGroupID() string      { return s.workerGroupID }
func (s Step) Distribution() Distribution { return s.distribution }

// Actions returns a copy of the step's actions; never nil.
func (s Step) Actions() []Action {
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// IsZero reports whether the step was never built.
func (s Step) IsZero() bool {
	return s.name == "" && s.workerGroupID == "" && len(s.actions) == 0
}

// WorkFlow is an ordered, immutable list of steps.
type WorkFlow struct {
	id      string
	comment string
	steps   []Step
}

// New builds a workflow; steps keep their given order.
func New(id, comment string, steps ...Step) *WorkFlow {
	return &WorkFlow{
		id:      strings.TrimSpace(id),
		comment: comment,
		steps:   append([]Step(nil), steps...),
	}
}

func (w *WorkFlow) ID() string {
	if w == nil {
		return ""
	}
	return w.id
}

func (w *WorkFlow) Comment() string {
	if w == nil {
		return ""
	}
	return w.comment
}

// Steps returns a copy of the steps in execution order; never nil.
func (w *WorkFlow) Steps() []Step {
	if w == nil {
		return []Step{}
	}
	out := make([]Step, len(w.steps))
	copy(out, w.steps)
	return out
}
