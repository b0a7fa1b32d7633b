package models

import (
	"fmt"
	"time"
)

// StepStatus is the lifecycle state of one visited action within a run.
// Retries revisit pending -> running, but RetryCount only increases.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// ExecutionStep records one action's attempted execution within a run.
// Steps are created lazily, only for actions actually visited, which is
// what makes re-delivered executions resumable.
type ExecutionStep struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id" validate:"required"`
	ActionID    string     `json:"action_id"    validate:"required"`
	StepKey     string     `json:"step_key"`
	Status      StepStatus `json:"status"`
	Order       int        `json:"order"`
	Input       any        `json:"input,omitempty"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepKeyFor identifies a step within a run. Outside loops the action id
// is enough; loop body invocations get one step per iteration so resume
// can tell finished iterations from pending ones.
func StepKeyFor(actionID string, loop *LoopContext) string {
	if loop == nil {
		return actionID
	}

	return fmt.Sprintf("%s[%d]", actionID, loop.Index)
}
