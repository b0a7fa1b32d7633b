// Package workflow contains the execution engine: the traversal of a
// workflow's action graph and the persistence of its runs, plus the
// repository service that validates and stores workflow definitions.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomhq/loom/pkg/actions/conditional"
	"github.com/loomhq/loom/pkg/actions/loop"
	"github.com/loomhq/loom/pkg/actions/parallel"
	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/otelhelper"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/registry"
	"github.com/loomhq/loom/pkg/retry"
)

// Executor drives one execution through its workflow's action graph. A
// single Execute call owns the run; parallel containers and multi-root
// graphs fan out into child goroutines that are always joined before the
// parent advances.
type Executor struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	workerID    string
}

// NewExecutor builds an executor. publisher may be nil, in which case no
// lifecycle events are emitted.
func NewExecutor(p persistence.Persistence, reg *registry.Registry, publisher eventbus.EventPublisher, logger *slog.Logger) *Executor {
	return &Executor{
		persistence: p,
		registry:    reg,
		publisher:   publisher,
		logger:      logger.With("module", "workflow_executor"),
	}
}

// WithTracer enables span emission for runs and steps.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer

	return e
}

// WithWorkerID stamps emitted lifecycle events with the worker identity.
func (e *Executor) WithWorkerID(workerID string) *Executor {
	e.workerID = workerID

	return e
}

// Execute runs the execution with the given id to a terminal state. It is
// safe to call again for the same id after a crash or a duplicate queue
// delivery: terminal executions are left untouched and steps that already
// completed are not re-invoked.
func (e *Executor) Execute(ctx context.Context, executionID string) error {
	logger := e.logger.With("execution_id", executionID)

	execution, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	if execution.Status.IsTerminal() {
		logger.InfoContext(ctx, "Execution already finished, nothing to do", "status", execution.Status)

		return nil
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to fetch workflow %s: %w", execution.WorkflowID, err)
	}

	logger = logger.With("workflow_id", workflow.ID)

	var runSpan trace.Span

	if e.tracer != nil {
		ctx, runSpan = otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
			attribute.String(otelhelper.WorkerIDKey, e.workerID),
		)
		defer runSpan.End()
	}

	startedAt := time.Now().UTC()

	if execution.Status == models.ExecutionStatusPending {
		execution.Status = models.ExecutionStatusRunning
		execution.StartedAt = &startedAt

		if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
			return fmt.Errorf("failed to mark execution running: %w", err)
		}

		e.publishStarted(ctx, execution)
		logger.InfoContext(ctx, "Execution started")
	} else {
		logger.InfoContext(ctx, "Resuming execution already in flight")
	}

	seed, err := e.completedOutputs(ctx, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to load prior steps: %w", err)
	}

	execCtx := models.NewExecutionContext(execution.ID, workflow.ID, execution.UserID, execution.TriggerData, seed)

	runErr := e.run(ctx, execCtx, workflow, logger)

	completedAt := time.Now().UTC()
	execution.CompletedAt = &completedAt

	if runErr != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.Error = runErr.Error()

		if runSpan != nil {
			otelhelper.RecordFailure(runSpan, runErr)
		}

		logger.ErrorContext(ctx, "Execution failed", "error", runErr)
	} else {
		execution.Status = models.ExecutionStatusCompleted
		execution.Result = execCtx.StepResults()

		logger.InfoContext(ctx, "Execution completed")
	}

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to finalize execution: %w", err)
	}

	if runErr != nil {
		e.publishFailed(ctx, execution, completedAt.Sub(startedAt))
	} else {
		e.publishCompleted(ctx, execution, completedAt.Sub(startedAt))
	}

	return nil
}

// run traverses the graph from its roots. Zero roots is a configuration
// error; multiple roots behave as an implicit parallel group that fails
// the run on the first failing root.
func (e *Executor) run(ctx context.Context, execCtx *models.ExecutionContext, workflow *models.Workflow, logger *slog.Logger) error {
	roots := workflow.RootActions()
	if len(roots) == 0 {
		return fmt.Errorf("workflow %s has no root action", workflow.ID)
	}

	if len(roots) == 1 {
		return e.executeNode(ctx, execCtx, workflow, roots[0].ID, logger)
	}

	ids := make([]string, 0, len(roots))
	for _, root := range roots {
		ids = append(ids, root.ID)
	}

	return e.runGroup(ctx, execCtx, workflow, ids, true, logger)
}

// executeNode runs one action and then dispatches its successors
// according to the action's type. Steps that already completed in an
// earlier delivery are not re-executed; their persisted output still
// feeds successor dispatch so a resumed run reaches the untouched part
// of the graph.
func (e *Executor) executeNode(ctx context.Context, execCtx *models.ExecutionContext, workflow *models.Workflow, actionID string, logger *slog.Logger) error {
	action, ok := workflow.ActionByID(actionID)
	if !ok {
		return fmt.Errorf("action %s not found in workflow %s", actionID, workflow.ID)
	}

	stepKey := models.StepKeyFor(actionID, execCtx.Loop())
	logger = logger.With("action_id", actionID, "action_type", action.Type, "step_key", stepKey)

	var span trace.Span

	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
			attribute.String(otelhelper.ExecutionIDKey, execCtx.ExecutionID),
			attribute.String(otelhelper.ActionIDKey, actionID),
			attribute.String(otelhelper.ActionTypeKey, action.Type),
			attribute.String(otelhelper.StepKeyKey, stepKey),
		)
		defer span.End()
	}

	step, err := e.findOrCreateStep(ctx, execCtx, action, stepKey)
	if err != nil {
		return err
	}

	if step.Status == models.StepStatusCompleted {
		logger.InfoContext(ctx, "Step already completed, skipping handler")
		execCtx.SetStepResult(actionID, step.Output)

		return e.dispatch(ctx, execCtx, workflow, action, step.Output, logger)
	}

	output, err := e.invoke(ctx, execCtx, action, step, logger)
	if err != nil {
		if span != nil {
			otelhelper.RecordFailure(span, err,
				attribute.String(otelhelper.ActionTypeKey, action.Type))
		}

		return err
	}

	execCtx.SetStepResult(actionID, output)

	return e.dispatch(ctx, execCtx, workflow, action, output, logger)
}

func (e *Executor) findOrCreateStep(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action, stepKey string) (*models.ExecutionStep, error) {
	steps := e.persistence.ExecutionStepRepository()

	step, err := steps.GetByStepKey(ctx, execCtx.ExecutionID, stepKey)
	if err == nil {
		return step, nil
	}

	if !persistence.IsStepNotFound(err) {
		return nil, fmt.Errorf("failed to load step %s: %w", stepKey, err)
	}

	step = &models.ExecutionStep{
		ID:          uuid.NewString(),
		ExecutionID: execCtx.ExecutionID,
		ActionID:    action.ID,
		StepKey:     stepKey,
		Status:      models.StepStatusPending,
		Order:       action.Order,
		Input:       action.Config,
	}

	if err := steps.Save(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to create step %s: %w", stepKey, err)
	}

	return step, nil
}

// invoke runs the action's handler through the retry controller and
// persists every step transition. The returned error already carries the
// action's name and is what ends up on the failed execution.
func (e *Executor) invoke(ctx context.Context, execCtx *models.ExecutionContext, action *models.Action, step *models.ExecutionStep, logger *slog.Logger) (any, error) {
	steps := e.persistence.ExecutionStepRepository()

	now := time.Now().UTC()
	step.Status = models.StepStatusRunning
	step.StartedAt = &now

	if err := steps.Save(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to mark step running: %w", err)
	}

	handler, err := e.registry.Get(action.Type)
	if err != nil {
		e.finishStep(ctx, step, nil, err)

		return nil, fmt.Errorf("action %q failed: %w", action.Name, err)
	}

	logger.InfoContext(ctx, "Executing action", "action_name", action.Name)

	output, retries, err := retry.Do(ctx, logger, action.Retry,
		func(ctx context.Context) (any, error) {
			return handler.Execute(ctx, execCtx, action.Config, logger)
		},
		func(ctx context.Context, retryCount int, attemptErr error) error {
			step.Status = models.StepStatusPending
			step.RetryCount = retryCount
			step.Error = attemptErr.Error()

			return steps.Save(ctx, step)
		},
	)

	step.RetryCount = retries

	if err != nil {
		e.finishStep(ctx, step, nil, err)

		return nil, fmt.Errorf("action %q failed: %w", action.Name, err)
	}

	e.finishStep(ctx, step, output, nil)
	logger.InfoContext(ctx, "Action completed", "retry_count", retries)

	return output, nil
}

func (e *Executor) finishStep(ctx context.Context, step *models.ExecutionStep, output any, cause error) {
	now := time.Now().UTC()
	step.CompletedAt = &now

	if cause != nil {
		step.Status = models.StepStatusFailed
		step.Error = cause.Error()
	} else {
		step.Status = models.StepStatusCompleted
		step.Output = output
		step.Error = ""
	}

	if err := e.persistence.ExecutionStepRepository().Save(ctx, step); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist step state",
			"step_key", step.StepKey, "error", err)
	}
}

// dispatch interprets the control-flow metadata of the finished action
// and schedules its successors.
func (e *Executor) dispatch(ctx context.Context, execCtx *models.ExecutionContext, workflow *models.Workflow, action *models.Action, output any, logger *slog.Logger) error {
	switch action.Type {
	case models.ActionTypeConditional:
		next := stringField(output, conditional.OutputNextActionID)
		if next == "" {
			logger.InfoContext(ctx, "Conditional selected no branch, path ends")

			return nil
		}

		return e.executeNode(ctx, execCtx, workflow, next, logger)

	case models.ActionTypeParallel:
		ids := stringSliceField(output, parallel.OutputActionIDs)
		stopOnFirstFailure := boolField(output, parallel.OutputStopOnFirstFailure)

		if err := e.runGroup(ctx, execCtx, workflow, ids, stopOnFirstFailure, logger); err != nil {
			return err
		}

		return e.next(ctx, execCtx, workflow, action, logger)

	case models.ActionTypeLoop:
		if err := e.runLoop(ctx, execCtx, workflow, action, output, logger); err != nil {
			return err
		}

		return e.next(ctx, execCtx, workflow, action, logger)

	default:
		return e.next(ctx, execCtx, workflow, action, logger)
	}
}

func (e *Executor) next(ctx context.Context, execCtx *models.ExecutionContext, workflow *models.Workflow, action *models.Action, logger *slog.Logger) error {
	if action.NextActionID == nil || *action.NextActionID == "" {
		return nil
	}

	return e.executeNode(ctx, execCtx, workflow, *action.NextActionID, logger)
}

// runGroup fans out into one goroutine per child and joins all of them
// before returning. With stopOnFirstFailure the first error observed
// fails the group after every sibling has finished; otherwise failures
// are logged and swallowed per branch.
func (e *Executor) runGroup(ctx context.Context, execCtx *models.ExecutionContext, workflow *models.Workflow, ids []string, stopOnFirstFailure bool, logger *slog.Logger) error {
	if len(ids) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, id := range ids {
		wg.Add(1)

		go func(childID string) {
			defer wg.Done()

			if err := e.executeNode(ctx, execCtx, workflow, childID, logger); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()

				logger.ErrorContext(ctx, "Parallel branch failed",
					"child_action_id", childID, "error", err)
			}
		}(id)
	}

	wg.Wait()

	if stopOnFirstFailure {
		return firstErr
	}

	return nil
}

// runLoop executes the body once per materialized item, strictly in item
// order. Each invocation gets its own loop scope on a context copy that
// shares the run's result store.
func (e *Executor) runLoop(ctx context.Context, execCtx *models.ExecutionContext, workflow *models.Workflow, action *models.Action, output any, logger *slog.Logger) error {
	loopActionID := stringField(output, loop.OutputLoopActionID)
	if loopActionID == "" {
		return fmt.Errorf("loop action %s resolved no body action", action.ID)
	}

	itemVariable := stringField(output, loop.OutputItemVariable)
	items := sliceField(output, loop.OutputItems)

	for index, item := range items {
		scoped := execCtx.WithLoop(&models.LoopContext{
			Item:           item,
			Index:          index,
			ItemVariable:   itemVariable,
			ParentActionID: action.ID,
		})

		if err := e.executeNode(ctx, scoped, workflow, loopActionID, logger); err != nil {
			return err
		}
	}

	return nil
}

// completedOutputs collects the outputs of steps that finished in an
// earlier delivery of this execution, keyed by action id.
func (e *Executor) completedOutputs(ctx context.Context, executionID string) (map[string]any, error) {
	steps, err := e.persistence.ExecutionStepRepository().ListByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]any)

	for _, step := range steps {
		if step.Status == models.StepStatusCompleted {
			outputs[step.ActionID] = step.Output
		}
	}

	return outputs, nil
}

func (e *Executor) publishStarted(ctx context.Context, execution *models.Execution) {
	if e.publisher == nil {
		return
	}

	event := events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	}

	if err := e.publisher.Publish(ctx, execution.WorkflowID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish started event", "error", err)
	}
}

func (e *Executor) publishCompleted(ctx context.Context, execution *models.Execution, duration time.Duration) {
	if e.publisher == nil {
		return
	}

	event := events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Result:      execution.Result,
		Duration:    duration,
	}

	if err := e.publisher.Publish(ctx, execution.WorkflowID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish completed event", "error", err)
	}
}

func (e *Executor) publishFailed(ctx context.Context, execution *models.Execution, duration time.Duration) {
	if e.publisher == nil {
		return
	}

	event := events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		Error:       execution.Error,
		Duration:    duration,
	}

	if err := e.publisher.Publish(ctx, execution.WorkflowID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish failed event", "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		WorkerID:   e.workerID,
	}
}

// Container outputs cross the persistence boundary on resume, so typed
// slices may come back as []any of JSON values.

func stringField(output any, key string) string {
	fields, ok := output.(map[string]any)
	if !ok {
		return ""
	}

	value, _ := fields[key].(string)

	return value
}

func boolField(output any, key string) bool {
	fields, ok := output.(map[string]any)
	if !ok {
		return false
	}

	value, _ := fields[key].(bool)

	return value
}

func sliceField(output any, key string) []any {
	fields, ok := output.(map[string]any)
	if !ok {
		return nil
	}

	value, _ := fields[key].([]any)

	return value
}

func stringSliceField(output any, key string) []string {
	fields, ok := output.(map[string]any)
	if !ok {
		return nil
	}

	switch value := fields[key].(type) {
	case []string:
		return value
	case []any:
		ids := make([]string, 0, len(value))

		for _, item := range value {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}

		return ids
	default:
		return nil
	}
}
