// Package file provides file-based persistence for workflows, executions
// and steps. One JSON document per entity; good enough for development
// and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root       string
	workflows  *WorkflowRepository
	executions *ExecutionRepository
	steps      *ExecutionStepRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:       cleanRoot,
		workflows:  &WorkflowRepository{dir: filepath.Join(cleanRoot, "workflows")},
		executions: &ExecutionRepository{dir: filepath.Join(cleanRoot, "executions")},
		steps:      &ExecutionStepRepository{dir: filepath.Join(cleanRoot, "steps")},
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

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func writeDocument(dir, name string, value any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	return nil
}

func readDocument(dir, name string, value any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read document: %w", err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return true, nil
}

// WorkflowRepository stores workflows as workflows/<id>.json.
type WorkflowRepository struct {
	dir string
	mu  sync.RWMutex
}

func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return []*models.Workflow{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var workflow models.Workflow

		found, err := readDocument(r.dir, strings.TrimSuffix(entry.Name(), ".json"), &workflow)
		if err != nil {
			return nil, err
		}

		if found {
			workflows = append(workflows, &workflow)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var workflow models.Workflow

	found, err := readDocument(r.dir, id, &workflow)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	if !found {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeDocument(r.dir, workflow.ID, workflow); err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(filepath.Join(r.dir, id+".json"))
	if os.IsNotExist(err) {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	return nil
}

// ExecutionRepository stores executions as executions/<id>.json.
type ExecutionRepository struct {
	dir string
	mu  sync.RWMutex
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var execution models.Execution

	found, err := readDocument(r.dir, id, &execution)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	if !found {
		return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeDocument(r.dir, execution.ID, execution); err != nil {
		return persistence.NewStoreError("Save", "execution", execution.ID, err)
	}

	return nil
}

// ExecutionStepRepository stores steps as steps/<execution_id>/<step_key>.json.
type ExecutionStepRepository struct {
	dir string
	mu  sync.RWMutex
}

func (r *ExecutionStepRepository) GetByStepKey(_ context.Context, executionID, stepKey string) (*models.ExecutionStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var step models.ExecutionStep

	found, err := readDocument(filepath.Join(r.dir, executionID), stepKey, &step)
	if err != nil {
		return nil, persistence.NewStoreError("GetByStepKey", "step", stepKey, err)
	}

	if !found {
		return nil, persistence.NewStoreError("GetByStepKey", "step", stepKey, persistence.ErrStepNotFound)
	}

	return &step, nil
}

func (r *ExecutionStepRepository) ListByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stepDir := filepath.Join(r.dir, executionID)

	entries, err := os.ReadDir(stepDir)
	if os.IsNotExist(err) {
		return []*models.ExecutionStep{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list steps for execution %s: %w", executionID, err)
	}

	steps := make([]*models.ExecutionStep, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var step models.ExecutionStep

		found, err := readDocument(stepDir, strings.TrimSuffix(entry.Name(), ".json"), &step)
		if err != nil {
			return nil, err
		}

		if found {
			steps = append(steps, &step)
		}
	}

	return steps, nil
}

func (r *ExecutionStepRepository) Save(_ context.Context, step *models.ExecutionStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeDocument(filepath.Join(r.dir, step.ExecutionID), step.StepKey, step); err != nil {
		return persistence.NewStoreError("Save", "step", step.StepKey, err)
	}

	return nil
}
