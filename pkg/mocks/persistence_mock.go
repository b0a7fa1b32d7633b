package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)

	workflows, _ := args.Get(0).([]*models.Workflow)

	return workflows, args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)

	workflow, _ := args.Get(0).(*models.Workflow)

	return workflow, args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)

	execution, _ := args.Get(0).(*models.Execution)

	return execution, args.Error(1)
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

// MockExecutionStepRepository is a mock implementation of persistence.ExecutionStepRepository.
type MockExecutionStepRepository struct {
	mock.Mock
}

func (m *MockExecutionStepRepository) GetByStepKey(ctx context.Context, executionID, stepKey string) (*models.ExecutionStep, error) {
	args := m.Called(ctx, executionID, stepKey)

	step, _ := args.Get(0).(*models.ExecutionStep)

	return step, args.Error(1)
}

func (m *MockExecutionStepRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	args := m.Called(ctx, executionID)

	steps, _ := args.Get(0).([]*models.ExecutionStep)

	return steps, args.Error(1)
}

func (m *MockExecutionStepRepository) Save(ctx context.Context, step *models.ExecutionStep) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

// MockPersistence bundles the repository mocks behind the persistence
// interface.
type MockPersistence struct {
	mock.Mock

	Workflows  MockWorkflowRepository
	Executions MockExecutionRepository
	Steps      MockExecutionStepRepository
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return &m.Workflows
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return &m.Executions
}

func (m *MockPersistence) ExecutionStepRepository() persistence.ExecutionStepRepository {
	return &m.Steps
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
