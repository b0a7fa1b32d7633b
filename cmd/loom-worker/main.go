package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/loomhq/loom/pkg/cmd"
	"github.com/loomhq/loom/pkg/log"
	"github.com/loomhq/loom/pkg/otelhelper"
	"github.com/loomhq/loom/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "loom-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that consumes execution requests and runs workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.NewString()[:8]
			}

			logger := log.WithModule("loom-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing worker")

			registry := cmd.NewRegistry(logger)

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "loom-worker", logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(command.String("database-url"))
			if err != nil {
				return err
			}
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			executor := workflow.NewExecutor(persistence, registry, eventBus, logger).
				WithWorkerID(workerID)

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "loom-worker")
				if err != nil {
					return err
				}

				executor.WithTracer(tracer)
			}

			worker := NewWorker(workerID, executor, eventBus, logger)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
