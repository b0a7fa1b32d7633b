package models

import "sync"

// LoopContext is the scratch data set while a loop body invocation runs.
// It lives on a per-branch copy of the execution context and is never
// shared across concurrent branches.
type LoopContext struct {
	Item           any    `json:"item"`
	Index          int    `json:"index"`
	ItemVariable   string `json:"item_variable"`
	ParentActionID string `json:"parent_action_id"`
}

// ExecutionContext is the transient, per-run data bag threaded through
// graph traversal. Step results are written by every branch, including
// concurrent parallel children, so access goes through a shared
// synchronized store rather than a bare map.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
	TriggerData map[string]any

	results *resultStore
	loop    *LoopContext
}

type resultStore struct {
	mu      sync.RWMutex
	outputs map[string]any
}

// NewExecutionContext builds the context for one run. Seed carries the
// outputs of steps completed before a resume; it may be nil.
func NewExecutionContext(executionID, workflowID, userID string, triggerData, seed map[string]any) *ExecutionContext {
	outputs := make(map[string]any, len(seed))
	for id, output := range seed {
		outputs[id] = output
	}

	return &ExecutionContext{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		UserID:      userID,
		TriggerData: triggerData,
		results:     &resultStore{outputs: outputs},
	}
}

// SetStepResult records an action's output. Entries are never removed
// within a run.
func (c *ExecutionContext) SetStepResult(actionID string, output any) {
	c.results.mu.Lock()
	defer c.results.mu.Unlock()

	c.results.outputs[actionID] = output
}

// StepResult returns the recorded output for an action, if any.
func (c *ExecutionContext) StepResult(actionID string) (any, bool) {
	c.results.mu.RLock()
	defer c.results.mu.RUnlock()

	output, ok := c.results.outputs[actionID]

	return output, ok
}

// StepResults returns a snapshot copy of all recorded outputs.
func (c *ExecutionContext) StepResults() map[string]any {
	c.results.mu.RLock()
	defer c.results.mu.RUnlock()

	snapshot := make(map[string]any, len(c.results.outputs))
	for id, output := range c.results.outputs {
		snapshot[id] = output
	}

	return snapshot
}

// WithLoop returns a copy of the context scoped to one loop body
// invocation. The copy shares the synchronized result store.
func (c *ExecutionContext) WithLoop(loop *LoopContext) *ExecutionContext {
	scoped := *c
	scoped.loop = loop

	return &scoped
}

// Loop returns the loop scope of this branch, or nil outside loop bodies.
func (c *ExecutionContext) Loop() *LoopContext {
	return c.loop
}
