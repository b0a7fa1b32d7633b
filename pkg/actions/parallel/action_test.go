package parallel_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/actions/parallel"
	"github.com/loomhq/loom/pkg/models"
)

func newExecCtx() *models.ExecutionContext {
	return models.NewExecutionContext("exec-1", "wf-1", "u1", nil, nil)
}

func TestExecuteResolvesChildren(t *testing.T) {
	action := parallel.NewAction()

	output, err := action.Execute(context.Background(), newExecCtx(), map[string]any{
		"action_ids":            []string{"c1", "c2"},
		"stop_on_first_failure": true,
	}, slog.Default())
	require.NoError(t, err)

	fields := output.(map[string]any)
	assert.Equal(t, []string{"c1", "c2"}, fields[parallel.OutputActionIDs])
	assert.Equal(t, true, fields[parallel.OutputStopOnFirstFailure])
}

func TestExecuteAcceptsJSONDecodedList(t *testing.T) {
	action := parallel.NewAction()

	output, err := action.Execute(context.Background(), newExecCtx(), map[string]any{
		"action_ids": []any{"c1", "c2", "c3"},
	}, slog.Default())
	require.NoError(t, err)

	fields := output.(map[string]any)
	assert.Equal(t, []string{"c1", "c2", "c3"}, fields[parallel.OutputActionIDs])
	// failure isolation is the default
	assert.Equal(t, false, fields[parallel.OutputStopOnFirstFailure])
}

func TestExecuteEmptyChildren(t *testing.T) {
	action := parallel.NewAction()

	_, err := action.Execute(context.Background(), newExecCtx(), map[string]any{}, slog.Default())
	require.ErrorIs(t, err, parallel.ErrActionIDsRequired)
}

func TestValidateConfig(t *testing.T) {
	action := parallel.NewAction()

	require.NoError(t, action.ValidateConfig(map[string]any{"action_ids": []any{"c1"}}))
	require.ErrorIs(t, action.ValidateConfig(map[string]any{}), parallel.ErrActionIDsRequired)
	require.ErrorIs(t, action.ValidateConfig(map[string]any{"action_ids": []any{}}), parallel.ErrActionIDsRequired)
}
