package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/triggers/schedule"
	"github.com/loomhq/loom/pkg/workflow"
)

// Dispatcher arms the trigger layer for every enabled workflow. Fired
// triggers create pending executions and request them over the bus; the
// dispatcher itself never runs a workflow.
type Dispatcher struct {
	id         string
	repository *workflow.Repository
	schedule   *schedule.Trigger
	logger     *slog.Logger
}

func NewDispatcher(id string, repository *workflow.Repository, p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		id:         id,
		repository: repository,
		schedule:   schedule.NewTrigger(p, publisher, logger),
		logger:     logger,
	}
}

// Start registers triggers for all enabled workflows and blocks until
// the context is cancelled or a termination signal arrives.
func (d *Dispatcher) Start(ctx context.Context) error {
	workflows, err := d.repository.FetchEnabled(ctx)
	if err != nil {
		return err
	}

	armed := 0

	for _, wf := range workflows {
		if wf.Trigger == nil || wf.Trigger.Type != "schedule" {
			continue
		}

		if err := d.schedule.Register(ctx, wf.ID, wf.Trigger.Config); err != nil {
			d.logger.ErrorContext(ctx, "Failed to arm trigger, skipping workflow",
				"workflow_id", wf.ID, "error", err)

			continue
		}

		armed++
	}

	d.schedule.Start()
	d.logger.InfoContext(ctx, "Dispatcher started", "workflows_armed", armed)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		d.logger.InfoContext(ctx, "Shutting down dispatcher")
	case <-ctx.Done():
	}

	d.schedule.Stop()

	return nil
}
