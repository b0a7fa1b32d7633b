// Package wait provides the delay action.
package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// MaxDuration caps a single wait so a misconfigured workflow cannot park
// a worker goroutine indefinitely.
const MaxDuration = 5 * time.Minute

var (
	// ErrDurationRequired is returned when the config carries no duration.
	ErrDurationRequired = errors.New("wait action requires a positive 'duration_ms'")
	// ErrDurationTooLong is returned when the duration exceeds MaxDuration.
	ErrDurationTooLong = fmt.Errorf("wait duration exceeds the %s maximum", MaxDuration)
)

// Action pauses the current branch. The sleep blocks only the calling
// goroutine, so parallel siblings keep making progress, and it honors
// context cancellation.
type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (a *Action) Type() string {
	return "wait"
}

func (a *Action) DisplayName() string {
	return "Wait"
}

func (a *Action) ValidateConfig(config map[string]any) error {
	_, err := duration(config)

	return err
}

func (a *Action) Execute(ctx context.Context, _ *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error) {
	d, err := duration(config)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Waiting", "action_type", "wait", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]any{
		"waited_ms": d.Milliseconds(),
	}, nil
}

func duration(config map[string]any) (time.Duration, error) {
	var d time.Duration

	switch ms := config["duration_ms"].(type) {
	case float64:
		d = time.Duration(ms) * time.Millisecond
	case int:
		d = time.Duration(ms) * time.Millisecond
	default:
		if raw, ok := config["duration"].(string); ok {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return 0, fmt.Errorf("invalid wait duration %q: %w", raw, err)
			}

			d = parsed
		}
	}

	if d <= 0 {
		return 0, ErrDurationRequired
	}

	if d > MaxDuration {
		return 0, ErrDurationTooLong
	}

	return d, nil
}

func (a *Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{
				"type":        "integer",
				"description": "How long to pause, in milliseconds.",
				"minimum":     1,
			},
			"duration": map[string]any{
				"type":        "string",
				"description": "Alternative Go duration string, e.g. \"30s\".",
			},
		},
	}
}
