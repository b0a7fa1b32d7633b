// Package parallel provides the fan-out container action. The handler
// resolves the child set; running the children concurrently and joining
// them is the engine's job.
package parallel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
)

// Output keys read back by the execution engine.
const (
	OutputActionIDs          = "action_ids"
	OutputStopOnFirstFailure = "stop_on_first_failure"
)

// ErrActionIDsRequired is returned when the config names no children.
var ErrActionIDsRequired = errors.New("parallel action requires non-empty 'action_ids'")

// Action declares a group of child actions executed concurrently. The
// group is always waited on; there is no fire-and-forget mode.
type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (a *Action) Type() string {
	return "parallel"
}

func (a *Action) DisplayName() string {
	return "Parallel"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	if len(childIDs(config)) == 0 {
		return ErrActionIDsRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, _ *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	ids := childIDs(config)
	if len(ids) == 0 {
		return nil, ErrActionIDsRequired
	}

	stopOnFirstFailure, _ := config["stop_on_first_failure"].(bool)

	logger.InfoContext(ctx, "Fanning out parallel group",
		"action_type", "parallel",
		"children", len(ids),
		"stop_on_first_failure", stopOnFirstFailure)

	return map[string]any{
		OutputActionIDs:          ids,
		OutputStopOnFirstFailure: stopOnFirstFailure,
	}, nil
}

func childIDs(config map[string]any) []string {
	switch raw := config["action_ids"].(type) {
	case []string:
		return raw
	case []any:
		ids := make([]string, 0, len(raw))

		for _, id := range raw {
			if str, ok := id.(string); ok && str != "" {
				ids = append(ids, str)
			}
		}

		return ids
	default:
		return nil
	}
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action_ids": map[string]any{
				"type":        "array",
				"description": "Child actions executed concurrently.",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
			},
			"stop_on_first_failure": map[string]any{
				"type":        "boolean",
				"description": "Abort the group on the first failing child instead of isolating failures per branch.",
				"default":     false,
			},
		},
		"required": []string{"action_ids"},
	}
}
