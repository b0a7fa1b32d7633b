// Package conditional provides the branching action. The handler only
// evaluates the condition and names the branch to take; following it is
// the engine's job.
package conditional

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
)

// Output keys read back by the execution engine.
const (
	OutputResult       = "result"
	OutputNextActionID = "next_action_id"
)

// ErrConditionRequired is returned when the config carries no condition.
var ErrConditionRequired = errors.New("conditional action requires a 'condition'")

// Action evaluates a condition expression and selects the true or false
// branch action id.
type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (a *Action) Type() string {
	return "conditional"
}

func (a *Action) DisplayName() string {
	return "Conditional"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	condition, _ := config["condition"].(string)
	if condition == "" {
		return ErrConditionRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	condition, _ := config["condition"].(string)

	result, err := Evaluate(condition, execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	branch, _ := config["false_action_id"].(string)
	if result {
		branch, _ = config["true_action_id"].(string)
	}

	logger.InfoContext(ctx, "Condition evaluated",
		"action_type", "conditional",
		"condition", condition,
		"result", result,
		"next_action_id", branch)

	return map[string]any{
		OutputResult:       result,
		OutputNextActionID: branch,
	}, nil
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Condition expression. Operands support templating.",
				"examples": []string{
					"{{trigger.status}} == 'ok'",
					"{{steps.fetch.body.count}} > 10 && {{trigger.env}} != 'test'",
					"{{steps.fetch.body.tags}} contains 'urgent'",
				},
			},
			"true_action_id": map[string]any{
				"type":        "string",
				"description": "Action to run when the condition holds.",
			},
			"false_action_id": map[string]any{
				"type":        "string",
				"description": "Action to run when the condition does not hold.",
			},
		},
		"required": []string{"condition"},
	}
}
