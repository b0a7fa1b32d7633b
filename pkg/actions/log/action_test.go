package log_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logaction "github.com/loomhq/loom/pkg/actions/log"
	"github.com/loomhq/loom/pkg/models"
)

func newExecCtx(triggerData map[string]any) *models.ExecutionContext {
	return models.NewExecutionContext("exec-1", "wf-1", "u1", triggerData, nil)
}

func TestExecuteResolvesTemplate(t *testing.T) {
	action := logaction.NewAction()

	execCtx := newExecCtx(map[string]any{"version": "1.4.2"})

	output, err := action.Execute(context.Background(), execCtx, map[string]any{
		"message": "deployed {{trigger.version}}",
	}, slog.Default())
	require.NoError(t, err)

	fields, ok := output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deployed 1.4.2", fields["message"])
	assert.NotEmpty(t, fields["logged_at"])
}

func TestExecuteLevels(t *testing.T) {
	action := logaction.NewAction()
	execCtx := newExecCtx(nil)

	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		_, err := action.Execute(context.Background(), execCtx, map[string]any{
			"message": "hello",
			"level":   level,
		}, slog.Default())
		require.NoError(t, err)
	}
}

func TestValidateConfig(t *testing.T) {
	action := logaction.NewAction()

	require.NoError(t, action.ValidateConfig(map[string]any{"message": "hello"}))
	require.ErrorIs(t, action.ValidateConfig(map[string]any{}), logaction.ErrMessageRequired)
	require.ErrorIs(t, action.ValidateConfig(map[string]any{"message": 42}), logaction.ErrMessageRequired)
}
