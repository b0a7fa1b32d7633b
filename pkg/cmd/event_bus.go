package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/loomhq/loom/pkg/channels/gochannel"
	"github.com/loomhq/loom/pkg/channels/kafka"
	"github.com/loomhq/loom/pkg/eventbus"
)

// NewEventBus builds the event bus for the given provider. "kafka" needs
// a broker list; "gochannel" is the in-memory bus for single-process
// setups.
func NewEventBus(provider, kafkaBrokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafkaBrokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel channel: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
