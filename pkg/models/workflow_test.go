package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
)

func ptr(s string) *string { return &s }

func TestRootActions(t *testing.T) {
	wf := &models.Workflow{
		ID: "wf-1",
		Actions: []*models.Action{
			{ID: "a1", NextActionID: ptr("a2")},
			{ID: "a2"},
			{ID: "child", ParentActionID: ptr("a1")},
			{ID: "late", Order: 3},
		},
	}

	roots := wf.RootActions()
	require.Len(t, roots, 1)
	assert.Equal(t, "a1", roots[0].ID)
}

func TestRootActionsMultiple(t *testing.T) {
	wf := &models.Workflow{
		Actions: []*models.Action{
			{ID: "r1"},
			{ID: "r2"},
		},
	}

	assert.Len(t, wf.RootActions(), 2)
}

func TestRootActionsCycle(t *testing.T) {
	wf := &models.Workflow{
		Actions: []*models.Action{
			{ID: "a1", NextActionID: ptr("a2")},
			{ID: "a2", NextActionID: ptr("a1")},
		},
	}

	assert.Empty(t, wf.RootActions())
}

func TestActionByID(t *testing.T) {
	wf := &models.Workflow{
		Actions: []*models.Action{{ID: "a1"}},
	}

	action, ok := wf.ActionByID("a1")
	require.True(t, ok)
	assert.Equal(t, "a1", action.ID)

	_, ok = wf.ActionByID("ghost")
	assert.False(t, ok)
}

func TestStepKeyFor(t *testing.T) {
	assert.Equal(t, "a1", models.StepKeyFor("a1", nil))
	assert.Equal(t, "body[2]", models.StepKeyFor("body", &models.LoopContext{Index: 2}))
}

func TestExecutionStatusIsTerminal(t *testing.T) {
	assert.False(t, models.ExecutionStatusPending.IsTerminal())
	assert.False(t, models.ExecutionStatusRunning.IsTerminal())
	assert.True(t, models.ExecutionStatusCompleted.IsTerminal())
	assert.True(t, models.ExecutionStatusFailed.IsTerminal())
	assert.True(t, models.ExecutionStatusCancelled.IsTerminal())
}
