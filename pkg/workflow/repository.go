package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/registry"
)

// Repository is the workflow definition service. It validates a workflow
// before it is stored so configuration errors surface at save time, not
// in the middle of a run.
type Repository struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
}

func NewRepository(p persistence.Persistence, reg *registry.Registry) *Repository {
	return &Repository{
		persistence: p,
		registry:    reg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	return r.persistence.WorkflowRepository().GetAll(ctx)
}

// FetchEnabled returns only workflows eligible for triggering.
func (r *Repository) FetchEnabled(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := r.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]*models.Workflow, 0, len(workflows))

	for _, workflow := range workflows {
		if workflow.Enabled {
			enabled = append(enabled, workflow)
		}
	}

	return enabled, nil
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.persistence.WorkflowRepository().GetByID(ctx, id)
}

func (r *Repository) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	for _, action := range workflow.Actions {
		action.WorkflowID = workflow.ID
	}

	if err := r.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	if err := r.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Repository) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := r.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = id
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	for _, action := range workflow.Actions {
		action.WorkflowID = workflow.ID
	}

	if err := r.validateWorkflow(workflow); err != nil {
		return nil, err
	}

	if err := r.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.persistence.WorkflowRepository().GetByID(ctx, id); err != nil {
		return err
	}

	return r.persistence.WorkflowRepository().Delete(ctx, id)
}

// validateWorkflow combines struct-level validation, per-action config
// validation against the registered handlers, and graph shape checks.
func (r *Repository) validateWorkflow(workflow *models.Workflow) error {
	if err := r.validate.Struct(workflow); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	actions := workflow.ActionMap()

	for _, action := range workflow.Actions {
		if err := r.registry.ValidateActionConfig(action.Type, action.Config); err != nil {
			return fmt.Errorf("action %q: %w", action.Name, err)
		}

		if action.NextActionID != nil && *action.NextActionID != "" {
			if _, ok := actions[*action.NextActionID]; !ok {
				return fmt.Errorf("action %q: next_action_id %s does not exist", action.Name, *action.NextActionID)
			}
		}

		if action.ParentActionID != nil && *action.ParentActionID != "" {
			if _, ok := actions[*action.ParentActionID]; !ok {
				return fmt.Errorf("action %q: parent_action_id %s does not exist", action.Name, *action.ParentActionID)
			}
		}
	}

	if len(workflow.Actions) > 0 && len(workflow.RootActions()) == 0 {
		return fmt.Errorf("workflow %q has no root action", workflow.Name)
	}

	return nil
}
