package wait_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/actions/wait"
	"github.com/loomhq/loom/pkg/models"
)

func newExecCtx() *models.ExecutionContext {
	return models.NewExecutionContext("exec-1", "wf-1", "u1", nil, nil)
}

func TestExecuteWaits(t *testing.T) {
	action := wait.NewAction()

	start := time.Now()
	output, err := action.Execute(context.Background(), newExecCtx(), map[string]any{
		"duration_ms": float64(20),
	}, slog.Default())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	fields := output.(map[string]any)
	assert.Equal(t, int64(20), fields["waited_ms"])
}

func TestExecuteDurationString(t *testing.T) {
	action := wait.NewAction()

	output, err := action.Execute(context.Background(), newExecCtx(), map[string]any{
		"duration": "15ms",
	}, slog.Default())
	require.NoError(t, err)

	fields := output.(map[string]any)
	assert.Equal(t, int64(15), fields["waited_ms"])
}

func TestExecuteHonorsCancellation(t *testing.T) {
	action := wait.NewAction()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := action.Execute(ctx, newExecCtx(), map[string]any{
		"duration": "1m",
	}, slog.Default())
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestValidateConfig(t *testing.T) {
	action := wait.NewAction()

	require.NoError(t, action.ValidateConfig(map[string]any{"duration_ms": float64(500)}))
	require.NoError(t, action.ValidateConfig(map[string]any{"duration": "30s"}))

	require.ErrorIs(t, action.ValidateConfig(map[string]any{}), wait.ErrDurationRequired)
	require.ErrorIs(t, action.ValidateConfig(map[string]any{"duration_ms": float64(-5)}), wait.ErrDurationRequired)
	require.ErrorIs(t, action.ValidateConfig(map[string]any{"duration": "10m"}), wait.ErrDurationTooLong)

	err := action.ValidateConfig(map[string]any{"duration": "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid wait duration")
}
