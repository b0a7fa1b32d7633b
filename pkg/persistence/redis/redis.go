// Package redis provides Redis-backed persistence for workflows,
// executions and steps. Entities are stored as JSON values in hashes,
// one hash per entity kind plus one per execution for its steps.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const (
	workflowsKey  = "loom:workflows"
	executionsKey = "loom:executions"
	stepsKeyFmt   = "loom:steps:%s"
)

// Persistence implements persistence.Persistence on a Redis instance.
type Persistence struct {
	client     goredis.UniversalClient
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	steps      *ExecutionStepRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(url string) (*Persistence, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewPersistenceWithClient(goredis.NewClient(opts)), nil
}

// NewPersistenceWithClient wraps an existing client. Useful for tests.
func NewPersistenceWithClient(client goredis.UniversalClient) *Persistence {
	return &Persistence{
		client:     client,
		workflows:  &WorkflowRepository{client: client},
		executions: &ExecutionRepository{client: client},
		steps:      &ExecutionStepRepository{client: client},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) ExecutionStepRepository() persistence.ExecutionStepRepository {
	return p.steps
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

// WorkflowRepository stores workflows in the loom:workflows hash.
type WorkflowRepository struct {
	client goredis.UniversalClient
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	values, err := r.client.HVals(ctx, workflowsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(values))

	for _, raw := range values {
		var workflow models.Workflow
		if err := json.Unmarshal([]byte(raw), &workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	raw, err := r.client.HGet(ctx, workflowsKey, id).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal([]byte(raw), &workflow); err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	if err := r.client.HSet(ctx, workflowsKey, workflow.ID, data).Err(); err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	removed, err := r.client.HDel(ctx, workflowsKey, id).Result()
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	if removed == 0 {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// ExecutionRepository stores executions in the loom:executions hash.
type ExecutionRepository struct {
	client goredis.UniversalClient
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	raw, err := r.client.HGet(ctx, executionsKey, id).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal([]byte(raw), &execution); err != nil {
		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewStoreError("Save", "execution", execution.ID, err)
	}

	if err := r.client.HSet(ctx, executionsKey, execution.ID, data).Err(); err != nil {
		return persistence.NewStoreError("Save", "execution", execution.ID, err)
	}

	return nil
}

// ExecutionStepRepository stores steps in one hash per execution, keyed
// by step key.
type ExecutionStepRepository struct {
	client goredis.UniversalClient
}

func (r *ExecutionStepRepository) GetByStepKey(ctx context.Context, executionID, stepKey string) (*models.ExecutionStep, error) {
	raw, err := r.client.HGet(ctx, fmt.Sprintf(stepsKeyFmt, executionID), stepKey).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, persistence.NewStoreError("GetByStepKey", "step", stepKey, persistence.ErrStepNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByStepKey", "step", stepKey, err)
	}

	var step models.ExecutionStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return nil, persistence.NewStoreError("GetByStepKey", "step", stepKey, err)
	}

	return &step, nil
}

func (r *ExecutionStepRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	values, err := r.client.HVals(ctx, fmt.Sprintf(stepsKeyFmt, executionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list steps for execution %s: %w", executionID, err)
	}

	steps := make([]*models.ExecutionStep, 0, len(values))

	for _, raw := range values {
		var step models.ExecutionStep
		if err := json.Unmarshal([]byte(raw), &step); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step: %w", err)
		}

		steps = append(steps, &step)
	}

	return steps, nil
}

func (r *ExecutionStepRepository) Save(ctx context.Context, step *models.ExecutionStep) error {
	data, err := json.Marshal(step)
	if err != nil {
		return persistence.NewStoreError("Save", "step", step.StepKey, err)
	}

	key := fmt.Sprintf(stepsKeyFmt, step.ExecutionID)
	if err := r.client.HSet(ctx, key, step.StepKey, data).Err(); err != nil {
		return persistence.NewStoreError("Save", "step", step.StepKey, err)
	}

	return nil
}
