// Package protocol defines the contracts for pluggable actions and triggers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/loomhq/loom/pkg/models"
)

// Action is the polymorphic unit of work behind one action type. One
// implementation is registered per type string; the engine dispatches to
// it through the registry. Implementations must be safe for concurrent
// use: the same handler instance serves parallel branches.
type Action interface {
	// Type returns the unique key this handler is registered under.
	Type() string

	// DisplayName returns the human-readable name of the action kind.
	DisplayName() string

	// Execute runs the action against the current execution context and
	// returns an opaque output recorded into the run's step results.
	Execute(ctx context.Context, execCtx *models.ExecutionContext, config map[string]any, logger *slog.Logger) (any, error)

	// ValidateConfig fails fast when required config keys are absent or
	// malformed. It is called at workflow save time, before any execution.
	ValidateConfig(config map[string]any) error
}

// SchemaProvider is implemented by actions that expose a JSON schema for
// their config. The registry validates configs against it on save.
type SchemaProvider interface {
	Schema() map[string]any
}
