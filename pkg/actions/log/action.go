// Package log provides a log action, the simplest sequential work unit.
package log

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

// ErrMessageRequired is returned when the config carries no message.
var ErrMessageRequired = errors.New("log action requires a 'message'")

// Action writes a templated message to the structured log and records it
// as its output.
type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (a *Action) Type() string {
	return "log"
}

func (a *Action) DisplayName() string {
	return "Log"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	message, _ := config["message"].(string)
	if message == "" {
		return ErrMessageRequired
	}

	return nil
}

func (a *Action) Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	raw, _ := config["message"].(string)
	message := template.ResolveString(raw, template.ContextData(execCtx))

	level, _ := config["level"].(string)

	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{
		"message":   message,
		"logged_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports {{path}} templating.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level to emit at.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}
