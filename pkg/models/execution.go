package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow run. The status
// is monotonic: pending -> running -> completed | failed | cancelled.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Execution is one run of a workflow. It is created in pending state by
// the trigger layer; the engine is the only writer of running, completed
// and failed.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id" validate:"required"`
	UserID      string          `json:"user_id"`
	Status      ExecutionStatus `json:"status"`
	TriggerData map[string]any  `json:"trigger_data,omitempty"`
	Result      map[string]any  `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
