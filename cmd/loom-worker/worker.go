package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
	"github.com/loomhq/loom/pkg/workflow"
)

// Worker consumes execution requests from the event bus and drives them
// through the executor. The queue delivers at least once; re-executing a
// finished run is a no-op on the engine side.
type Worker struct {
	id       string
	executor *workflow.Executor
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

func NewWorker(id string, executor *workflow.Executor, eventBus eventbus.EventBus, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: executor,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Start subscribes to execution requests and blocks until the context is
// cancelled or a termination signal arrives.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker")
	case <-ctx.Done():
	}

	return nil
}

func (w *Worker) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		return errors.New("unexpected payload for execution requested event")
	}

	w.logger.InfoContext(ctx, "Processing execution request",
		"execution_id", requested.ExecutionID,
		"workflow_id", requested.WorkflowID)

	if err := w.executor.Execute(ctx, requested.ExecutionID); err != nil {
		w.logger.ErrorContext(ctx, "Execution attempt failed",
			"execution_id", requested.ExecutionID, "error", err)

		return err
	}

	return nil
}
