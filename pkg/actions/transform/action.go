// Package transform provides the data reshaping action.
package transform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

// ErrMappingRequired is returned when the config carries no mapping.
var ErrMappingRequired = errors.New("transform action requires a 'mapping'")

// Action builds a new value from the execution context. Every string
// leaf of the mapping is template-resolved; nested maps and lists are
// walked recursively.
type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (a *Action) Type() string {
	return "transform"
}

func (a *Action) DisplayName() string {
	return "Transform"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	if _, ok := config["mapping"].(map[string]any); !ok {
		return ErrMappingRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok {
		return nil, ErrMappingRequired
	}

	logger.InfoContext(ctx, "Executing transform", "action_type", "transform", "fields", len(mapping))

	data := template.ContextData(execCtx)

	return resolveValue(mapping, data), nil
}

func resolveValue(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return template.Resolve(v, data)
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, inner := range v {
			resolved[key] = resolveValue(inner, data)
		}

		return resolved
	case []any:
		resolved := make([]any, len(v))
		for i, inner := range v {
			resolved[i] = resolveValue(inner, data)
		}

		return resolved
	default:
		return v
	}
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":        "object",
				"description": "Shape of the output. String values support {{path}} templating.",
				"examples": []map[string]any{
					{
						"full_name": "{{trigger.first}} {{trigger.last}}",
						"user_id":   "{{steps.create_user.body.id}}",
					},
				},
			},
		},
		"required": []string{"mapping"},
	}
}
