// Package schedule arms workflows with cron-based triggering. When a
// schedule fires it creates a pending execution and requests it over the
// event bus; the engine never learns how the execution came to be.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
)

var ErrCronRequired = errors.New("schedule trigger requires a 'cron' expression")

type Trigger struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	cron        *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewTrigger(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "schedule_trigger"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing armed schedules.
func (t *Trigger) Start() {
	t.cron.Start()
}

// Stop halts the scheduler and waits for in-flight jobs to return.
func (t *Trigger) Stop() {
	<-t.cron.Stop().Done()
}

func (t *Trigger) Validate(config map[string]any) error {
	expr, _ := config["cron"].(string)
	if expr == "" {
		return ErrCronRequired
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	return nil
}

// Register arms the schedule for a workflow. Re-registering replaces the
// previous schedule.
func (t *Trigger) Register(_ context.Context, workflowID string, config map[string]any) error {
	if err := t.Validate(config); err != nil {
		return err
	}

	expr, _ := config["cron"].(string)

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[workflowID]; ok {
		t.cron.Remove(entry)
	}

	entry, err := t.cron.AddFunc(expr, func() {
		t.fire(workflowID)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule workflow %s: %w", workflowID, err)
	}

	t.entries[workflowID] = entry

	t.logger.Info("Workflow scheduled", "workflow_id", workflowID, "cron", expr)

	return nil
}

func (t *Trigger) Unregister(_ context.Context, workflowID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[workflowID]
	if !ok {
		return nil
	}

	t.cron.Remove(entry)
	delete(t.entries, workflowID)

	t.logger.Info("Workflow unscheduled", "workflow_id", workflowID)

	return nil
}

// Registered reports whether a schedule is armed for the workflow.
func (t *Trigger) Registered(workflowID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[workflowID]

	return ok
}

// fire creates one pending execution and requests it over the bus.
func (t *Trigger) fire(workflowID string) {
	ctx := context.Background()
	logger := t.logger.With("workflow_id", workflowID)

	firedAt := time.Now().UTC()

	execution := &models.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     models.ExecutionStatusPending,
		TriggerData: map[string]any{
			"trigger":   "schedule",
			"timestamp": firedAt.Format(time.RFC3339),
		},
		CreatedAt: firedAt,
	}

	if err := t.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to create execution", "error", err)

		return
	}

	event := events.ExecutionRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.NewString(),
			Type:       events.ExecutionRequestedEvent,
			Timestamp:  firedAt,
			WorkflowID: workflowID,
		},
		ExecutionID: execution.ID,
	}

	if err := t.publisher.Publish(ctx, workflowID, event); err != nil {
		logger.ErrorContext(ctx, "Failed to request execution", "execution_id", execution.ID, "error", err)

		return
	}

	logger.InfoContext(ctx, "Execution requested", "execution_id", execution.ID)
}
