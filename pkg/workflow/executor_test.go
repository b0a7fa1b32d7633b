package workflow_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence/file"
	"github.com/loomhq/loom/pkg/registry"
	"github.com/loomhq/loom/pkg/workflow"
)

// recorder is a scriptable action handler. Each invocation is appended
// to calls; fail makes the first n invocations per action id error.
type recorder struct {
	typ string

	mu       sync.Mutex
	calls    []recordedCall
	failures map[string]int
}

type recordedCall struct {
	actionID string
	loop     *models.LoopContext
}

func newRecorder(typ string) *recorder {
	return &recorder{typ: typ, failures: make(map[string]int)}
}

func (r *recorder) failFirst(actionID string, times int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures[actionID] = times
}

func (r *recorder) Type() string        { return r.typ }
func (r *recorder) DisplayName() string { return "Recorder" }

func (r *recorder) ValidateConfig(config map[string]any) error { return nil }

func (r *recorder) Execute(_ context.Context, execCtx *models.ExecutionContext, config map[string]any, _ *slog.Logger) (any, error) {
	actionID, _ := config["action_id"].(string)

	r.mu.Lock()
	r.calls = append(r.calls, recordedCall{actionID: actionID, loop: execCtx.Loop()})
	remaining := r.failures[actionID]
	if remaining > 0 {
		r.failures[actionID] = remaining - 1
	}
	r.mu.Unlock()

	if remaining > 0 {
		return nil, errors.New("induced failure")
	}

	return map[string]any{"ran": actionID}, nil
}

func (r *recorder) callIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.calls))
	for i, call := range r.calls {
		ids[i] = call.actionID
	}

	return ids
}

func (r *recorder) loopCalls() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]recordedCall(nil), r.calls...)
}

type harness struct {
	store    *file.Persistence
	registry *registry.Registry
	executor *workflow.Executor
	recorder *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaults()

	rec := newRecorder("probe")
	reg.Register(rec)

	return &harness{
		store:    store,
		registry: reg,
		executor: workflow.NewExecutor(store, reg, nil, slog.Default()),
		recorder: rec,
	}
}

func (h *harness) saveWorkflow(t *testing.T, wf *models.Workflow) {
	t.Helper()
	require.NoError(t, h.store.WorkflowRepository().Save(context.Background(), wf))
}

func (h *harness) newExecution(t *testing.T, workflowID string, triggerData map[string]any) *models.Execution {
	t.Helper()

	execution := &models.Execution{
		ID:          "exec-" + strings.ReplaceAll(t.Name(), "/", "-"),
		WorkflowID:  workflowID,
		UserID:      "u1",
		Status:      models.ExecutionStatusPending,
		TriggerData: triggerData,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, h.store.ExecutionRepository().Save(context.Background(), execution))

	return execution
}

func (h *harness) execution(t *testing.T, id string) *models.Execution {
	t.Helper()

	execution, err := h.store.ExecutionRepository().GetByID(context.Background(), id)
	require.NoError(t, err)

	return execution
}

func (h *harness) step(t *testing.T, executionID, stepKey string) *models.ExecutionStep {
	t.Helper()

	step, err := h.store.ExecutionStepRepository().GetByStepKey(context.Background(), executionID, stepKey)
	require.NoError(t, err)

	return step
}

func ptr(s string) *string { return &s }

func probeAction(id string, next *string) *models.Action {
	return &models.Action{
		ID:           id,
		Type:         "probe",
		Name:         "Probe " + id,
		Config:       map[string]any{"action_id": id},
		NextActionID: next,
		Retry:        &models.RetryConfig{Attempts: 1},
	}
}

func childOf(action *models.Action, parentID string) *models.Action {
	action.ParentActionID = ptr(parentID)

	return action
}

func linearWorkflow(ids ...string) *models.Workflow {
	actions := make([]*models.Action, len(ids))

	for i, id := range ids {
		var next *string
		if i+1 < len(ids) {
			next = ptr(ids[i+1])
		}

		actions[i] = probeAction(id, next)
	}

	return &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Linear",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: actions,
	}
}

func TestExecuteLinearChain(t *testing.T) {
	h := newHarness(t)
	h.saveWorkflow(t, linearWorkflow("a1", "a2", "a3"))
	execution := h.newExecution(t, "wf-1", nil)

	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.Equal(t, []string{"a1", "a2", "a3"}, h.recorder.callIDs())

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, final.Result, 3)
	assert.Equal(t, map[string]any{"ran": "a2"}, final.Result["a2"])
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)
}

func TestExecuteTerminalStatusIsNoOp(t *testing.T) {
	for _, status := range []models.ExecutionStatus{models.ExecutionStatusCompleted, models.ExecutionStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			h.saveWorkflow(t, linearWorkflow("a1"))

			execution := h.newExecution(t, "wf-1", nil)
			execution.Status = status
			require.NoError(t, h.store.ExecutionRepository().Save(context.Background(), execution))

			require.NoError(t, h.executor.Execute(context.Background(), execution.ID))
			assert.Empty(t, h.recorder.callIDs())
		})
	}
}

func TestExecuteResumeSkipsCompletedSteps(t *testing.T) {
	h := newHarness(t)
	h.saveWorkflow(t, linearWorkflow("a1", "a2", "a3"))

	execution := h.newExecution(t, "wf-1", nil)
	execution.Status = models.ExecutionStatusRunning
	now := time.Now().UTC()
	execution.StartedAt = &now
	require.NoError(t, h.store.ExecutionRepository().Save(context.Background(), execution))

	require.NoError(t, h.store.ExecutionStepRepository().Save(context.Background(), &models.ExecutionStep{
		ID:          "step-a1",
		ExecutionID: execution.ID,
		ActionID:    "a1",
		StepKey:     "a1",
		Status:      models.StepStatusCompleted,
		Output:      map[string]any{"ran": "a1-before-crash"},
	}))

	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.Equal(t, []string{"a2", "a3"}, h.recorder.callIDs())

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, map[string]any{"ran": "a1-before-crash"}, final.Result["a1"])
	assert.Len(t, final.Result, 3)
}

func TestExecuteRetrySucceedsAfterFailure(t *testing.T) {
	h := newHarness(t)

	wf := linearWorkflow("a1")
	wf.Actions[0].Retry = &models.RetryConfig{Attempts: 2}
	h.saveWorkflow(t, wf)
	h.recorder.failFirst("a1", 1)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.Equal(t, []string{"a1", "a1"}, h.recorder.callIDs())

	step := h.step(t, execution.ID, "a1")
	assert.Equal(t, models.StepStatusCompleted, step.Status)
	assert.Equal(t, 1, step.RetryCount)

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
}

func TestExecuteRetryExhaustionFailsRun(t *testing.T) {
	h := newHarness(t)

	wf := linearWorkflow("a1", "a2")
	wf.Actions[0].Retry = &models.RetryConfig{Attempts: 2}
	h.saveWorkflow(t, wf)
	h.recorder.failFirst("a1", 5)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	// exactly two invocations, successor never reached
	assert.Equal(t, []string{"a1", "a1"}, h.recorder.callIDs())

	step := h.step(t, execution.ID, "a1")
	assert.Equal(t, models.StepStatusFailed, step.Status)
	assert.Equal(t, "induced failure", step.Error)

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.Error, `action "Probe a1" failed`)
	assert.Contains(t, final.Error, "induced failure")
}

func TestExecuteConditionalTrueBranch(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Branching",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			{
				ID:   "check",
				Type: "conditional",
				Name: "Check status",
				Config: map[string]any{
					"condition":       "{{trigger.status}} == 'ok'",
					"true_action_id":  "on-ok",
					"false_action_id": "on-bad",
				},
				Retry: &models.RetryConfig{Attempts: 1},
			},
			childOf(probeAction("on-ok", nil), "check"),
			childOf(probeAction("on-bad", nil), "check"),
		},
	}
	h.saveWorkflow(t, wf)

	execution := h.newExecution(t, "wf-1", map[string]any{"status": "ok"})
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.Equal(t, []string{"on-ok"}, h.recorder.callIDs())

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
}

func TestExecuteParallelIsolatesFailures(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Fan out",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			{
				ID:   "fan",
				Type: "parallel",
				Name: "Fan",
				Config: map[string]any{
					"action_ids":            []string{"c1", "c2", "c3"},
					"stop_on_first_failure": false,
				},
				Retry: &models.RetryConfig{Attempts: 1},
			},
			childOf(probeAction("c1", nil), "fan"),
			childOf(probeAction("c2", nil), "fan"),
			childOf(probeAction("c3", nil), "fan"),
		},
	}
	h.saveWorkflow(t, wf)
	h.recorder.failFirst("c1", 5)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, h.recorder.callIDs())

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, map[string]any{"ran": "c2"}, final.Result["c2"])
	assert.Equal(t, map[string]any{"ran": "c3"}, final.Result["c3"])
	assert.NotContains(t, final.Result, "c1")

	step := h.step(t, execution.ID, "c1")
	assert.Equal(t, models.StepStatusFailed, step.Status)
}

func TestExecuteParallelStopOnFirstFailureFailsRun(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Fan out strict",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			{
				ID:   "fan",
				Type: "parallel",
				Name: "Fan",
				Config: map[string]any{
					"action_ids":            []string{"c1", "c2"},
					"stop_on_first_failure": true,
				},
				Retry: &models.RetryConfig{Attempts: 1},
			},
			childOf(probeAction("c1", nil), "fan"),
			childOf(probeAction("c2", nil), "fan"),
		},
	}
	h.saveWorkflow(t, wf)
	h.recorder.failFirst("c1", 5)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.Error, `action "Probe c1" failed`)
}

func TestExecuteLoopVisitsItemsInOrder(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Iterate",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			{
				ID:   "each",
				Type: "loop",
				Name: "Each",
				Config: map[string]any{
					"items":          []any{1, 2, 3},
					"loop_action_id": "body",
				},
				Retry: &models.RetryConfig{Attempts: 1},
			},
			childOf(probeAction("body", nil), "each"),
		},
	}
	h.saveWorkflow(t, wf)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	calls := h.recorder.loopCalls()
	require.Len(t, calls, 3)

	for i, call := range calls {
		assert.Equal(t, "body", call.actionID)
		require.NotNil(t, call.loop)
		assert.Equal(t, i, call.loop.Index)
		// items round-trip through JSON, so numbers come back as float64
		assert.EqualValues(t, i+1, call.loop.Item)
		assert.Equal(t, "each", call.loop.ParentActionID)
	}

	for _, key := range []string{"body[0]", "body[1]", "body[2]"} {
		step := h.step(t, execution.ID, key)
		assert.Equal(t, models.StepStatusCompleted, step.Status)
	}

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
}

func TestExecuteLoopOverMaxIterationsFailsBeforeBody(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Iterate too much",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			{
				ID:   "each",
				Type: "loop",
				Name: "Each",
				Config: map[string]any{
					"items":          []any{1, 2, 3},
					"loop_action_id": "body",
					"max_iterations": 2,
				},
				Retry: &models.RetryConfig{Attempts: 1},
			},
			childOf(probeAction("body", nil), "each"),
		},
	}
	h.saveWorkflow(t, wf)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.Empty(t, h.recorder.callIDs())

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
}

func TestExecuteUnregisteredActionTypeFailsRun(t *testing.T) {
	h := newHarness(t)

	wf := linearWorkflow("a1")
	wf.Actions[0].Type = "nope"
	h.saveWorkflow(t, wf)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.Error, "action type 'nope' not registered")

	step := h.step(t, execution.ID, "a1")
	assert.Equal(t, models.StepStatusFailed, step.Status)
}

func TestExecuteNoRootActionsFailsRun(t *testing.T) {
	h := newHarness(t)

	// a1 and a2 reference each other, so neither qualifies as a root
	wf := linearWorkflow("a1", "a2")
	wf.Actions[1].NextActionID = ptr("a1")
	h.saveWorkflow(t, wf)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.Error, "no root action")
	assert.Empty(t, h.recorder.callIDs())
}

func TestExecuteMultiRootFanOut(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Two roots",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			probeAction("r1", nil),
			probeAction("r2", nil),
		},
	}
	h.saveWorkflow(t, wf)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	assert.ElementsMatch(t, []string{"r1", "r2"}, h.recorder.callIDs())

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Len(t, final.Result, 2)
}

func TestExecuteMultiRootFailureFailsRun(t *testing.T) {
	h := newHarness(t)

	wf := &models.Workflow{
		ID:      "wf-1",
		UserID:  "u1",
		Name:    "Two roots strict",
		Enabled: true,
		Trigger: &models.Trigger{Type: "schedule", Config: map[string]any{"cron": "@hourly"}},
		Actions: []*models.Action{
			probeAction("r1", nil),
			probeAction("r2", nil),
		},
	}
	h.saveWorkflow(t, wf)
	h.recorder.failFirst("r2", 5)

	execution := h.newExecution(t, "wf-1", nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	final := h.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusFailed, final.Status)
	assert.Contains(t, final.Error, `action "Probe r2" failed`)
}
