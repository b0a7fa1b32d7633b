// Package events defines the messages exchanged over the queue boundary:
// execution requests coming in and lifecycle notifications going out.
package events

import (
	"time"
)

type EventType string

// Topic carries every execution event.
const Topic = "loom.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// ExecutionRequestedEvent asks a worker to run an execution. Delivery is
	// at least once; consumers rely on the engine's idempotent resume.
	ExecutionRequestedEvent EventType = "execution.requested"

	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	WorkerID   string    `json:"worker_id,omitempty"`
}

type ExecutionRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Result      map[string]any `json:"result,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}
