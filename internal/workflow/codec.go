package workflow

import "encoding/json"

type stepDocument struct {
	Name         string       `json:"name" yaml:"name"`
	WorkerGroup  string       `json:"worker_group" yaml:"worker_group"`
	Distribution Distribution `json:"distribution" yaml:"distribution"`
	Actions      []Action     `json:"actions,omitempty" yaml:"actions,omitempty"`
}

type document struct {
	ID      string         `json:"id" yaml:"id"`
	Comment string         `json:"comment,omitempty" yaml:"comment,omitempty"`
	Steps   []stepDocument `json:"steps" yaml:"steps"`
}

func (s Step) document() stepDocument {
	return stepDocument{
		Name:         s.name,
		WorkerGroup:  s.workerGroupID,
		Distribution: s.distribution,
		Actions:      s.Actions(),
	}
}

func (d stepDocument) step() Step {
	return NewStep(d.Name, d.WorkerGroup, d.Distribution, d.Actions...)
}

// MarshalJSON encodes the step description sent to workers.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.document())
}

// UnmarshalJSON decodes a step description.
func (s *Step) UnmarshalJSON(data []byte) error {
	var doc stepDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*s = doc.step()
	return nil
}

// MarshalJSON encodes the workflow in its document shape.
func (w *WorkFlow) MarshalJSON() ([]byte, error) {
	doc := document{ID: w.ID(), Comment: w.Comment()}
	for _, step := range w.Steps() {
		doc.Steps = append(doc.Steps, step.document())
	}
	return json.Marshal(doc)
}

func (d document) workflow() *WorkFlow {
	steps := make([]Step, 0, len(d.Steps))
	for _, s := range d.Steps {
		steps = append(steps, s.step())
	}
	return New(d.ID, d.Comment, steps...)
}
