// Package persistence provides the storage abstraction consumed by the
// execution engine. The engine never issues raw queries; it only talks
// to these repository contracts.
package persistence

import (
	"context"

	"github.com/loomhq/loom/pkg/models"
)

// WorkflowRepository loads and stores workflow definitions with their
// full action graph (next_action_id / parent_action_id populated).
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores workflow runs.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	Save(ctx context.Context, execution *models.Execution) error
}

// ExecutionStepRepository stores per-action step records of a run.
// Steps are looked up by their step key so re-delivered executions can
// find what already completed.
type ExecutionStepRepository interface {
	GetByStepKey(ctx context.Context, executionID, stepKey string) (*models.ExecutionStep, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
	Save(ctx context.Context, step *models.ExecutionStep) error
}

// Persistence bundles the repositories behind one backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ExecutionStepRepository() ExecutionStepRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
