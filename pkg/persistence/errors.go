// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStepNotFound indicates an execution step was not found by the given key.
	ErrStepNotFound = errors.New("execution step not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save")
	Entity string // Entity kind ("workflow", "execution", "step")
	ID     string // Entity identifier if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}
