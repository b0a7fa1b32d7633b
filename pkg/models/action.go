package models

import "time"

// Built-in action types interpreted specially by the execution engine.
const (
	ActionTypeConditional = "conditional"
	ActionTypeParallel    = "parallel"
	ActionTypeLoop        = "loop"
)

// Action is one node of a workflow's action graph. Config is an opaque
// key-value map interpreted only by the action's handler.
type Action struct {
	ID             string         `json:"id"               validate:"required"`
	WorkflowID     string         `json:"workflow_id"`
	Type           string         `json:"type"             validate:"required"`
	Name           string         `json:"name"             validate:"required,min=1"`
	Config         map[string]any `json:"config"`
	Order          int            `json:"order"`
	NextActionID   *string        `json:"next_action_id,omitempty"`
	ParentActionID *string        `json:"parent_action_id,omitempty"`
	Retry          *RetryConfig   `json:"retry,omitempty"`
}

// BackoffKind selects the delay progression between retry attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// BackoffConfig is the delay policy between retry attempts.
type BackoffConfig struct {
	Kind    BackoffKind `json:"kind"     validate:"oneof=fixed exponential"`
	DelayMs int         `json:"delay_ms" validate:"min=0"`
}

// RetryConfig bounds the retry behavior of a single action.
type RetryConfig struct {
	Attempts int           `json:"attempts" validate:"min=1"`
	Backoff  BackoffConfig `json:"backoff"`
}

// Delay returns the backoff delay before the given retry. retryCount is
// 1-based: the first retry sleeps delay, an exponential policy doubles it
// for every retry after that.
func (r RetryConfig) Delay(retryCount int) time.Duration {
	delay := time.Duration(r.Backoff.DelayMs) * time.Millisecond

	if r.Backoff.Kind == BackoffExponential && retryCount > 1 {
		delay <<= retryCount - 1
	}

	return delay
}
