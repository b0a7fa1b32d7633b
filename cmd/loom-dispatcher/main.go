package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/loomhq/loom/pkg/cmd"
	"github.com/loomhq/loom/pkg/log"
	"github.com/loomhq/loom/pkg/workflow"
)

func main() {
	command := &cli.Command{
		Name:                  "loom-dispatcher",
		EnableShellCompletion: true,
		Usage:                 "Arm triggers for enabled workflows and request executions when they fire",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("DISPATCHER_ID"),
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			dispatcherID := command.String("dispatcher-id")
			if dispatcherID == "" {
				dispatcherID = "dispatcher-" + uuid.NewString()[:8]
			}

			logger := log.WithModule("loom-dispatcher").With("dispatcher_id", dispatcherID)
			logger.InfoContext(ctx, "Initializing dispatcher")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "loom-dispatcher", logger)
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

			repository := workflow.NewRepository(persistence, cmd.NewRegistry(logger))

			dispatcher := NewDispatcher(dispatcherID, repository, persistence, eventBus, logger)

			return dispatcher.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
