package workflow

// ExecutionContext carries the identity of one pipeline run down to each
// remote work unit. It is a value: WithObject and Clone return independent
// copies, so concurrently dispatched units never share mutable state.
type ExecutionContext struct {
	ContainerName   string            `json:"container_name"`
	ObjectName      string            `json:"object_name,omitempty"`
	TenantID        string            `json:"tenant_id,omitempty"`
	CurrentStepName string            `json:"current_step_name,omitempty"`
	StepID          string            `json:"step_id,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

// Clone returns a deep copy.
func (ec ExecutionContext) Clone() ExecutionContext {
	out := ec
	if ec.Properties != nil {
		out.Properties = make(map[string]string, len(ec.Properties))
		for k, v := range ec.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// WithObject returns a copy targeting a single work item.
func (ec ExecutionContext) WithObject(name string) ExecutionContext {
	out := ec.Clone()
	out.ObjectName = name
	return out
}

// ForStep returns a copy positioned on a step.
func (ec ExecutionContext) ForStep(stepID, stepName string) ExecutionContext {
	out := ec.Clone()
	out.StepID = stepID
	out.CurrentStepName = stepName
	return out
}

// Property returns a named additional property, or "".
func (ec ExecutionContext) Property(key string) string {
	return ec.Properties[key]
}
